// internal/domain/models/chat.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRoom is the single conversation attached to a project.
// Members mirror the project's owner plus team members; they are
// reconciled every time the room is read.
type ChatRoom struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ProjectID primitive.ObjectID   `bson:"project_id" json:"projectId"`
	Name      string               `bson:"name" json:"name"`
	Members   []primitive.ObjectID `bson:"members" json:"members"`
	CreatedAt time.Time            `bson:"created_at" json:"createdAt"`
}

// HasMember reports whether userID is in the room's member list.
func (r ChatRoom) HasMember(userID primitive.ObjectID) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// ChatMessage is immutable after creation apart from ReadBy growing.
type ChatMessage struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ChatRoomID primitive.ObjectID   `bson:"chat_room_id" json:"chatRoomId"`
	Sender     primitive.ObjectID   `bson:"sender" json:"sender"`
	SenderName string               `bson:"sender_name,omitempty" json:"senderName,omitempty"`
	Text       string               `bson:"text" json:"text"`
	Timestamp  time.Time            `bson:"timestamp" json:"timestamp"`
	ReadBy     []primitive.ObjectID `bson:"read_by" json:"readBy"`
}
