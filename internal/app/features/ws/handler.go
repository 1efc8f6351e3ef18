// internal/app/features/ws/handler.go
package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/dalemusser/taskhub/internal/app/system/metrics"
	"github.com/dalemusser/taskhub/internal/app/system/realtime"
	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// RoomAuthorizer decides whether a user may listen on a chat room's
// channel. *chat.Service satisfies it.
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, userID, roomID primitive.ObjectID) bool
}

// Options tunes the socket endpoint.
type Options struct {
	// AllowedOrigins lists Origin values accepted on upgrade. Empty means
	// same host only; "*" accepts any origin.
	AllowedOrigins []string
	SendBuffer     int
}

// Handler upgrades signed-in requests to the realtime channel and serves
// the client event protocol on them.
type Handler struct {
	reg      *realtime.Registry
	rooms    RoomAuthorizer
	upgrader websocket.Upgrader
	buffer   int
	metrics  *metrics.Metrics
	Log      *zap.Logger
}

func NewHandler(reg *realtime.Registry, rooms RoomAuthorizer, opts Options, m *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		reg:   reg,
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		buffer:  opts.SendBuffer,
		metrics: m,
		Log:     logger,
	}
}

// ServeWS handles GET /ws. The connection lives on this goroutine until
// the peer goes away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r)
	if !ok {
		apperr.Write(w, h.Log, apperr.Unauthenticated("sign in required"))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := realtime.NewClient(conn, h.reg, h.events(userID), h.buffer, h.metrics,
		h.Log.With(zap.String("user_id", userID.Hex())))
	client.Run()
}

// events returns the handler for one authenticated connection. A session
// may only register as the user it authenticated as, and must register
// before joining rooms.
func (h *Handler) events(userID primitive.ObjectID) realtime.EventHandler {
	return func(c *realtime.Client, ev realtime.Event) {
		switch ev.Name {
		case realtime.EventRegisterUser:
			hex, _ := ev.StringData("userId")
			if hex != userID.Hex() {
				c.Reply(realtime.EventError, errorReply(ev.Name, "registerUser must name the signed-in user"))
				return
			}
			if err := h.reg.Register(c.ID(), userID); err != nil {
				c.Reply(realtime.EventError, errorReply(ev.Name, "session is closed"))
				return
			}
			c.Reply(realtime.EventAck, ack{Event: ev.Name, ID: hex})

		case realtime.EventJoinChatRoom, realtime.EventLeaveChatRoom:
			if _, ok := h.reg.UserOf(c.ID()); !ok {
				c.Reply(realtime.EventError, errorReply(ev.Name, "registerUser first"))
				return
			}
			hex, _ := ev.StringData("roomId")
			roomID, err := primitive.ObjectIDFromHex(hex)
			if err != nil {
				c.Reply(realtime.EventError, errorReply(ev.Name, "invalid room id"))
				return
			}
			channel := realtime.RoomChannel(roomID)
			if ev.Name == realtime.EventLeaveChatRoom {
				h.reg.Leave(c.ID(), channel)
				c.Reply(realtime.EventAck, ack{Event: ev.Name, ID: hex})
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
			allowed := h.rooms.CanJoin(ctx, userID, roomID)
			cancel()
			if !allowed {
				c.Log().Debug("join refused", zap.String("room_id", hex))
				c.Reply(realtime.EventError, errorReply(ev.Name, "not a member of this chat room"))
				return
			}
			if err := h.reg.Join(c.ID(), channel); err != nil {
				c.Reply(realtime.EventError, errorReply(ev.Name, "session is closed"))
				return
			}
			c.Reply(realtime.EventAck, ack{Event: ev.Name, ID: hex})

		default:
			c.Reply(realtime.EventError, errorReply(ev.Name, "unknown event"))
		}
	}
}

type ack struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
}

type errorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

func errorReply(event, msg string) errorPayload {
	return errorPayload{Event: event, Message: msg}
}

// originChecker returns nil, gorilla's same-host check, when no origins
// are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
