// internal/app/features/chat/service.go
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/taskhub/internal/app/policy/projectpolicy"
	chatmessagestore "github.com/dalemusser/taskhub/internal/app/store/chatmessages"
	chatroomstore "github.com/dalemusser/taskhub/internal/app/store/chatrooms"
	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/app/system/realtime"
	"github.com/dalemusser/taskhub/internal/app/system/textsanitize"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 200
)

// RoomStore persists chat rooms. *chatroomstore.Store satisfies it.
type RoomStore interface {
	GetByProject(ctx context.Context, projectID primitive.ObjectID) (models.ChatRoom, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.ChatRoom, error)
	Create(ctx context.Context, room models.ChatRoom) (models.ChatRoom, error)
	SetMembers(ctx context.Context, id primitive.ObjectID, members []primitive.ObjectID) error
}

// MessageStore persists chat messages. *chatmessagestore.Store satisfies it.
type MessageStore interface {
	Create(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	ListBefore(ctx context.Context, roomID primitive.ObjectID, before *chatmessagestore.Cursor, limit int64) ([]models.ChatMessage, error)
	MarkRoomRead(ctx context.Context, roomID, userID primitive.ObjectID) (int64, error)
}

// Emitter broadcasts to a realtime channel. *realtime.Dispatcher satisfies it.
type Emitter interface {
	Emit(channel, name string, data any)
}

// Presence drops a user's live subscriptions. *realtime.Registry satisfies it.
type Presence interface {
	EvictUser(channel string, userID primitive.ObjectID) int
}

// Actor is the signed-in user.
type Actor struct {
	ID   primitive.ObjectID
	Name string
}

// Paging bounds ListMessages. Zero values fall back to the defaults.
type Paging struct {
	PageSize    int
	MaxPageSize int
}

// Service keeps each project's chat room in step with the project team and
// carries the room's messages.
type Service struct {
	rooms    RoomStore
	messages MessageStore
	members  *projectpolicy.Resolver
	emit     Emitter
	presence Presence
	paging   Paging
	log      *zap.Logger
}

func NewService(rooms RoomStore, messages MessageStore, members *projectpolicy.Resolver, emit Emitter, paging Paging, logger *zap.Logger) *Service {
	if paging.PageSize <= 0 {
		paging.PageSize = DefaultPageSize
	}
	if paging.MaxPageSize <= 0 {
		paging.MaxPageSize = DefaultMaxPageSize
	}
	if paging.PageSize > paging.MaxPageSize {
		paging.PageSize = paging.MaxPageSize
	}
	return &Service{
		rooms:    rooms,
		messages: messages,
		members:  members,
		emit:     emit,
		paging:   paging,
		log:      logger,
	}
}

// SetPresence makes reconciliation unsubscribe removed members' sockets
// from the room channel.
func (s *Service) SetPresence(p Presence) {
	s.presence = p
}

// GetOrCreateRoom returns the project's room, creating it on first use.
// The member list is reconciled against the project team on every call.
func (s *Service) GetOrCreateRoom(ctx context.Context, actor Actor, projectID primitive.ObjectID) (models.ChatRoom, error) {
	project, err := s.members.RequireParticipant(ctx, projectID, actor.ID)
	if err != nil {
		return models.ChatRoom{}, err
	}

	room, err := s.rooms.GetByProject(ctx, project.ID)
	if errors.Is(err, chatroomstore.ErrNotFound) {
		room, err = s.rooms.Create(ctx, models.ChatRoom{
			ProjectID: project.ID,
			Name:      project.Name,
			Members:   project.Participants(),
		})
		if err == nil {
			s.log.Info("chat room created",
				zap.String("room_id", room.ID.Hex()),
				zap.String("project_id", project.ID.Hex()))
			return room, nil
		}
		if errors.Is(err, chatroomstore.ErrDuplicateRoom) {
			room, err = s.rooms.GetByProject(ctx, project.ID)
		}
	}
	if err != nil {
		return models.ChatRoom{}, apperr.Fault(err, "load chat room")
	}
	return s.reconcile(ctx, room, project)
}

// PostMessage stores a message from a room member and broadcasts it to the
// room's channel once stored.
func (s *Service) PostMessage(ctx context.Context, actor Actor, roomID primitive.ObjectID, text string) (models.ChatMessage, error) {
	room, err := s.memberRoom(ctx, actor, roomID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	text = textsanitize.Text(text)
	if text == "" {
		return models.ChatMessage{}, apperr.Validation("message text is required")
	}

	msg, err := s.messages.Create(ctx, models.ChatMessage{
		ChatRoomID: room.ID,
		Sender:     actor.ID,
		SenderName: actor.Name,
		Text:       text,
	})
	if err != nil {
		return models.ChatMessage{}, apperr.Fault(err, "store chat message")
	}
	s.emit.Emit(realtime.RoomChannel(room.ID), realtime.EventNewChatMessage, msg)
	return msg, nil
}

// ListMessages returns up to limit messages past the before cursor, newest first.
// A non-positive limit uses the page size; larger limits are capped.
func (s *Service) ListMessages(ctx context.Context, actor Actor, roomID primitive.ObjectID, limit int, before *chatmessagestore.Cursor) ([]models.ChatMessage, error) {
	room, err := s.memberRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.paging.PageSize
	}
	if limit > s.paging.MaxPageSize {
		limit = s.paging.MaxPageSize
	}
	msgs, err := s.messages.ListBefore(ctx, room.ID, before, int64(limit))
	if err != nil {
		return nil, apperr.Fault(err, "list chat messages")
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}

// MarkRead adds the actor to readBy on every message in the room and
// returns how many messages changed.
func (s *Service) MarkRead(ctx context.Context, actor Actor, roomID primitive.ObjectID) (int64, error) {
	room, err := s.memberRoom(ctx, actor, roomID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkRoomRead(ctx, room.ID, actor.ID)
	if err != nil {
		return 0, apperr.Fault(err, "mark chat room read")
	}
	return n, nil
}

// CanJoin reports whether userID may subscribe to the room's channel.
func (s *Service) CanJoin(ctx context.Context, userID, roomID primitive.ObjectID) bool {
	_, err := s.memberRoom(ctx, Actor{ID: userID}, roomID)
	return err == nil
}

// memberRoom loads a room, brings its members up to date with the project,
// and requires the actor to be one of them.
func (s *Service) memberRoom(ctx context.Context, actor Actor, roomID primitive.ObjectID) (models.ChatRoom, error) {
	if roomID.IsZero() {
		return models.ChatRoom{}, apperr.NotFound("chat room not found")
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, chatroomstore.ErrNotFound) {
		return models.ChatRoom{}, apperr.NotFound("chat room not found")
	}
	if err != nil {
		return models.ChatRoom{}, apperr.Fault(err, "load chat room")
	}
	project, err := s.members.Project(ctx, room.ProjectID)
	if err != nil {
		return models.ChatRoom{}, err
	}
	room, err = s.reconcile(ctx, room, project)
	if err != nil {
		return models.ChatRoom{}, err
	}
	if !room.HasMember(actor.ID) {
		return models.ChatRoom{}, apperr.AccessDenied("you are not a member of this chat room")
	}
	return room, nil
}

// reconcile makes room.Members equal the project's participants, writing
// only when they differ.
func (s *Service) reconcile(ctx context.Context, room models.ChatRoom, project models.Project) (models.ChatRoom, error) {
	want := project.Participants()
	if sameMembers(room.Members, want) {
		return room, nil
	}
	if err := s.rooms.SetMembers(ctx, room.ID, want); err != nil {
		if errors.Is(err, chatroomstore.ErrNotFound) {
			return models.ChatRoom{}, apperr.NotFound("chat room not found")
		}
		return models.ChatRoom{}, apperr.Fault(err, "update chat room members")
	}
	s.log.Debug("chat room members reconciled",
		zap.String("room_id", room.ID.Hex()),
		zap.String("change", fmt.Sprintf("%d -> %d", len(room.Members), len(want))))
	if s.presence != nil {
		channel := realtime.RoomChannel(room.ID)
		for _, id := range removed(room.Members, want) {
			if n := s.presence.EvictUser(channel, id); n > 0 {
				s.log.Info("removed member evicted from chat room",
					zap.String("room_id", room.ID.Hex()),
					zap.String("user_id", id.Hex()),
					zap.Int("sessions", n))
			}
		}
	}
	room.Members = want
	return room, nil
}

// removed returns the ids in have that are not in want.
func removed(have, want []primitive.ObjectID) []primitive.ObjectID {
	keep := make(map[primitive.ObjectID]struct{}, len(want))
	for _, id := range want {
		keep[id] = struct{}{}
	}
	var out []primitive.ObjectID
	for _, id := range have {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// sameMembers compares as sets; duplicates in have count as drift.
func sameMembers(have, want []primitive.ObjectID) bool {
	if len(have) != len(want) {
		return false
	}
	set := make(map[primitive.ObjectID]struct{}, len(want))
	for _, id := range want {
		set[id] = struct{}{}
	}
	for _, id := range have {
		if _, ok := set[id]; !ok {
			return false
		}
		delete(set, id)
	}
	return len(set) == 0
}
