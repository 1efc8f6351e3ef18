// internal/app/store/chatmessages/chatmessagestore.go
package chatmessagestore

import (
	"context"
	"time"

	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("chat_messages")}
}

// Create persists a message. The sender is always recorded as having read it.
func (s *Store) Create(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if !containsID(msg.ReadBy, msg.Sender) {
		msg.ReadBy = append(msg.ReadBy, msg.Sender)
	}
	if _, err := s.c.InsertOne(ctx, msg); err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// Cursor marks a position in a room's history. Messages sort by
// (timestamp, _id) descending, so a cursor built from the last message of a
// page resumes exactly after it even when several share a timestamp.
// A zero ID means "older than Timestamp".
type Cursor struct {
	Timestamp time.Time
	ID        primitive.ObjectID
}

// CursorAfter returns the cursor that continues after msg.
func CursorAfter(msg models.ChatMessage) *Cursor {
	return &Cursor{Timestamp: msg.Timestamp, ID: msg.ID}
}

// ListBefore returns up to limit messages of a room, newest first.
// When before is non-nil only messages past the cursor are returned,
// which is how clients page backwards through history.
func (s *Store) ListBefore(ctx context.Context, roomID primitive.ObjectID, before *Cursor, limit int64) ([]models.ChatMessage, error) {
	filter := bson.M{"chat_room_id": roomID}
	if before != nil {
		if before.ID.IsZero() {
			filter["timestamp"] = bson.M{"$lt": before.Timestamp}
		} else {
			filter["$or"] = bson.A{
				bson.M{"timestamp": bson.M{"$lt": before.Timestamp}},
				bson.M{"timestamp": before.Timestamp, "_id": bson.M{"$lt": before.ID}},
			}
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []models.ChatMessage{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRoomRead adds userID to read_by on every message of the room that
// does not have it yet. Returns the number of messages updated.
func (s *Store) MarkRoomRead(ctx context.Context, roomID, userID primitive.ObjectID) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"chat_room_id": roomID, "read_by": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
