// internal/app/store/tasks/taskstore.go
package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no task matches the given ID.
	ErrNotFound = errors.New("task not found")
	// ErrVersionConflict is returned when a write carries a stale version.
	ErrVersionConflict = errors.New("task was modified concurrently")
)

// Store persists tasks. Every write is guarded by the document's version:
// a write succeeds only if the stored version still equals the one the
// caller read, and it bumps the version by one.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tasks")}
}

// Create inserts a new task at version 1. ID and timestamps are filled in when zero.
func (s *Store) Create(ctx context.Context, t models.Task) (models.Task, error) {
	now := time.Now().UTC()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Version = 1
	if t.Comments == nil {
		t.Comments = []models.Comment{}
	}
	if _, err := s.c.InsertOne(ctx, t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// GetByID loads a task.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Task, error) {
	var t models.Task
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// ListByProject returns every task in a project, oldest first.
func (s *Store) ListByProject(ctx context.Context, projectID primitive.ObjectID) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"project_id": projectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	tasks := []models.Task{}
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListSweepable returns every task the deadline rules may act on:
// anything not under review and not completed.
func (s *Store) ListSweepable(ctx context.Context) ([]models.Task, error) {
	filter := bson.M{"workflow_status": bson.M{"$nin": []models.WorkflowStatus{
		models.WorkflowSubmittedForReview,
		models.WorkflowApprovedCompleted,
	}}}
	opts := options.Find().SetSort(bson.D{{Key: "deadline", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	tasks := []models.Task{}
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update replaces the stored task with t if the stored version equals t.Version.
// It returns the task as written (version bumped, updated_at refreshed).
func (s *Store) Update(ctx context.Context, t models.Task) (models.Task, error) {
	expected := t.Version
	t.Version = expected + 1
	t.UpdatedAt = time.Now().UTC()

	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": t.ID, "version": expected}, t)
	if err != nil {
		return models.Task{}, err
	}
	if res.MatchedCount == 0 {
		return models.Task{}, s.missOrConflict(ctx, t.ID)
	}
	return t, nil
}

// SetWorkflowStatus moves a task from one workflow phase to another without
// touching any other field. It returns false, nil when the task no longer has
// the expected version or phase; the caller decides whether that matters.
func (s *Store) SetWorkflowStatus(ctx context.Context, id primitive.ObjectID, version int64, from, to models.WorkflowStatus) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "version": version, "workflow_status": from},
		bson.M{
			"$set": bson.M{"workflow_status": to, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// Delete removes a task.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, id primitive.ObjectID) error {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}
