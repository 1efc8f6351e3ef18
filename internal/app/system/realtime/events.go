// Package realtime keeps connected clients in step with tasks, chat and
// notifications. It owns the presence registry (which session belongs to
// which user and which channels it listens on), the dispatcher that turns
// domain events into pushes, and the WebSocket client that carries them.
package realtime

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Client to server events.
const (
	EventRegisterUser  = "registerUser"
	EventJoinChatRoom  = "joinChatRoom"
	EventLeaveChatRoom = "leaveChatRoom"
)

// Server to client events.
const (
	EventNewChatMessage  = "newChatMessage"
	EventNewNotification = "newNotification"
	EventTaskUpdated     = "taskUpdated"
	EventTaskDeleted     = "taskDeleted"
	EventAck             = "ack"
	EventError           = "error"
)

// Event is the frame exchanged over the socket in both directions:
//
//	{"event":"joinChatRoom","data":"65f0c0ffee..."}
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes data as the payload of an event called name.
func NewEvent(name string, data any) (Event, error) {
	if data == nil {
		return Event{Name: name}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: raw}, nil
}

// StringData decodes a payload that is a bare JSON string, or an object
// with the string under key.
func (e Event) StringData(key string) (string, bool) {
	if len(e.Data) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s, s != ""
	}
	var obj map[string]string
	if err := json.Unmarshal(e.Data, &obj); err == nil {
		v := obj[key]
		return v, v != ""
	}
	return "", false
}

// UserChannel is the private channel every session of a user listens on.
func UserChannel(userID primitive.ObjectID) string {
	return "user:" + userID.Hex()
}

// RoomChannel is the channel of a chat room.
func RoomChannel(roomID primitive.ObjectID) string {
	return "room:" + roomID.Hex()
}

// TaskDeleted is the payload of a taskDeleted event.
type TaskDeleted struct {
	TaskID    primitive.ObjectID `json:"taskId"`
	ProjectID primitive.ObjectID `json:"projectId"`
}
