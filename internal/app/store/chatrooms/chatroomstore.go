// internal/app/store/chatrooms/chatroomstore.go
package chatroomstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/taskhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when no room matches the lookup.
	ErrNotFound = errors.New("chat room not found")
	// ErrDuplicateRoom is returned when a room already exists for the project
	// (unique index on project_id).
	ErrDuplicateRoom = errors.New("chat room already exists for project")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("chat_rooms")}
}

// GetByProject loads the room attached to a project.
func (s *Store) GetByProject(ctx context.Context, projectID primitive.ObjectID) (models.ChatRoom, error) {
	return s.findOne(ctx, bson.M{"project_id": projectID})
}

// GetByID loads a room by its own ID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.ChatRoom, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// Create inserts a room. Two requests racing to create the same project's
// room both reach here; the loser gets ErrDuplicateRoom and should re-read.
func (s *Store) Create(ctx context.Context, room models.ChatRoom) (models.ChatRoom, error) {
	if room.ID.IsZero() {
		room.ID = primitive.NewObjectID()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if room.Members == nil {
		room.Members = []primitive.ObjectID{}
	}
	if _, err := s.c.InsertOne(ctx, room); err != nil {
		if wafflemongo.IsDup(err) {
			return models.ChatRoom{}, ErrDuplicateRoom
		}
		return models.ChatRoom{}, err
	}
	return room, nil
}

// SetMembers overwrites the member list.
func (s *Store) SetMembers(ctx context.Context, id primitive.ObjectID, members []primitive.ObjectID) error {
	if members == nil {
		members = []primitive.ObjectID{}
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"members": members}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.c.FindOne(ctx, filter).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ChatRoom{}, ErrNotFound
	}
	if err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}
