// internal/app/store/projects/projectstore.go
package projectstore

import (
	"context"
	"errors"

	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when no project matches the given ID.
var ErrNotFound = errors.New("project not found")

// Store reads projects. Projects are written by the team-management service;
// this side only needs owner and team_members.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("projects")}
}

// GetByID loads a project. A fresh read every call: team composition can
// change between requests and callers authorize against what is returned.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Project, error) {
	var p models.Project
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Project{}, ErrNotFound
	}
	if err != nil {
		return models.Project{}, err
	}
	return p, nil
}
