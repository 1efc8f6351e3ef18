// internal/app/features/chat/handler.go
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	chatmessagestore "github.com/dalemusser/taskhub/internal/app/store/chatmessages"
	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/dalemusser/taskhub/internal/app/system/inputval"
	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 10

// Handler serves the chat JSON API.
type Handler struct {
	svc *Service
	Log *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, Log: logger}
}

// ServeRoom handles GET /chat/room/{projectId}.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	projectID, err := inputval.ObjectID("project", chi.URLParam(r, "projectId"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	room, err := h.svc.GetOrCreateRoom(ctx, actor, projectID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// ServeMessages handles GET /chat/messages/{chatRoomId}?limit=&beforeTimestamp=&beforeId=.
// beforeId is the id of the last message already seen; it only applies with beforeTimestamp.
func (h *Handler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	roomID, err := inputval.ObjectID("chat room", chi.URLParam(r, "chatRoomId"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			apperr.Write(w, h.Log, apperr.Validation("limit must be a non-negative integer"))
			return
		}
	}
	var before *chatmessagestore.Cursor
	if v := q.Get("beforeTimestamp"); v != "" {
		ts, err := parseTimestamp(v)
		if err != nil {
			apperr.Write(w, h.Log, apperr.Validation("beforeTimestamp must be RFC 3339 or unix milliseconds"))
			return
		}
		before = &chatmessagestore.Cursor{Timestamp: ts}
		if id := q.Get("beforeId"); id != "" {
			oid, err := primitive.ObjectIDFromHex(id)
			if err != nil {
				apperr.Write(w, h.Log, apperr.Validation("beforeId must be a message id"))
				return
			}
			before.ID = oid
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	msgs, err := h.svc.ListMessages(ctx, actor, roomID, limit, before)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// ServePost handles POST /chat/messages/{chatRoomId}.
func (h *Handler) ServePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	roomID, err := inputval.ObjectID("chat room", chi.URLParam(r, "chatRoomId"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	var req postRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	msg, err := h.svc.PostMessage(ctx, actor, roomID, req.Text)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ServeMarkRead handles POST /chat/messages/{chatRoomId}/read.
func (h *Handler) ServeMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	roomID, err := inputval.ObjectID("chat room", chi.URLParam(r, "chatRoomId"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	n, err := h.svc.MarkRead(ctx, actor, roomID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, readResponse{Updated: n})
}

// parseTimestamp accepts RFC 3339 or unix milliseconds.
func parseTimestamp(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	u, ok := auth.CurrentUser(r)
	if ok {
		if id, ok := u.ObjectID(); ok {
			return Actor{ID: id, Name: u.Name}, true
		}
	}
	apperr.Write(w, h.Log, apperr.Unauthenticated("sign in required"))
	return Actor{}, false
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			apperr.Write(w, h.Log, apperr.Validation("malformed JSON body"))
			return false
		}
	}
	if err := inputval.Struct(v); err != nil {
		apperr.Write(w, h.Log, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
