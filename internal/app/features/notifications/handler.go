// internal/app/features/notifications/handler.go
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	notificationstore "github.com/dalemusser/taskhub/internal/app/store/notifications"
	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/dalemusser/taskhub/internal/app/system/inputval"
	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store is the inbox persistence. *notificationstore.Store satisfies it.
type Store interface {
	ListByRecipient(ctx context.Context, recipient primitive.ObjectID, unreadOnly bool, limit int64) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, id, recipient primitive.ObjectID) error
	MarkAllRead(ctx context.Context, recipient primitive.ObjectID) (int64, error)
}

// Handler serves the caller's notification inbox. Every query is scoped
// to the signed-in recipient.
type Handler struct {
	store Store
	Log   *zap.Logger
}

func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, Log: logger}
}

type countResponse struct {
	Count int64 `json:"count"`
}

type readAllResponse struct {
	Updated int64 `json:"updated"`
}

// ServeList handles GET /notifications?unread=true&limit=N.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.recipient(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	unreadOnly := false
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			apperr.Write(w, h.Log, apperr.Validation("unread must be true or false"))
			return
		}
		unreadOnly = b
	}
	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			apperr.Write(w, h.Log, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = min(n, maxLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.store.ListByRecipient(ctx, uid, unreadOnly, int64(limit))
	if err != nil {
		apperr.Write(w, h.Log, apperr.Fault(err, "list notifications"))
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ServeUnreadCount handles GET /notifications/unread-count.
func (h *Handler) ServeUnreadCount(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.recipient(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	n, err := h.store.CountUnread(ctx, uid)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Fault(err, "count unread notifications"))
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// ServeMarkRead handles POST /notifications/{id}/read. Another user's
// notification reads as not found.
func (h *Handler) ServeMarkRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.recipient(w, r)
	if !ok {
		return
	}
	id, err := inputval.ObjectID("notification", chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.store.MarkRead(ctx, id, uid); err != nil {
		if errors.Is(err, notificationstore.ErrNotFound) {
			apperr.Write(w, h.Log, apperr.NotFound("notification not found"))
			return
		}
		apperr.Write(w, h.Log, apperr.Fault(err, "mark notification read"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeMarkAllRead handles POST /notifications/read-all.
func (h *Handler) ServeMarkAllRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.recipient(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	n, err := h.store.MarkAllRead(ctx, uid)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Fault(err, "mark all notifications read"))
		return
	}
	writeJSON(w, http.StatusOK, readAllResponse{Updated: n})
}

func (h *Handler) recipient(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	uid, ok := auth.UserID(r)
	if !ok {
		apperr.Write(w, h.Log, apperr.Unauthenticated("sign in required"))
		return primitive.NilObjectID, false
	}
	return uid, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
