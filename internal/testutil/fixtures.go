package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a user with the given display name.
func (f *Fixtures) CreateUser(ctx context.Context, fullName string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:        primitive.NewObjectID(),
		FullName:  fullName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateProject creates a project owned by owner with the given team members.
func (f *Fixtures) CreateProject(ctx context.Context, name string, owner primitive.ObjectID, members ...primitive.ObjectID) models.Project {
	f.t.Helper()

	now := time.Now().UTC()
	if members == nil {
		members = []primitive.ObjectID{}
	}
	p := models.Project{
		ID:          primitive.NewObjectID(),
		Name:        name,
		Owner:       owner,
		TeamMembers: members,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := f.db.Collection("projects").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test project: %v", err)
	}
	return p
}

// SetTeam overwrites a project's team members, the way the team-management
// service would.
func (f *Fixtures) SetTeam(ctx context.Context, projectID primitive.ObjectID, members ...primitive.ObjectID) {
	f.t.Helper()

	if members == nil {
		members = []primitive.ObjectID{}
	}
	_, err := f.db.Collection("projects").UpdateByID(ctx, projectID, bson.M{
		"$set": bson.M{"team_members": members},
	})
	if err != nil {
		f.t.Fatalf("failed to update test project team: %v", err)
	}
}
