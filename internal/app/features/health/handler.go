// internal/app/features/health/handler.go
package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger checks the database. *mongo.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// SessionCounter reports connected realtime sessions. *realtime.Registry satisfies it.
type SessionCounter interface {
	SessionCount() int
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB       Pinger
	Sessions SessionCounter
	Log      *zap.Logger
}

// NewHandler constructs a health Handler. sessions may be nil.
func NewHandler(db Pinger, sessions SessionCounter, logger *zap.Logger) *Handler {
	return &Handler{
		DB:       db,
		Sessions: sessions,
		Log:      logger,
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Sessions *int   `json:"sessions,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "sessions":3 }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.DB.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.Sessions != nil {
		n := h.Sessions.SessionCount()
		resp.Sessions = &n
	}

	_ = json.NewEncoder(w).Encode(resp)
}
