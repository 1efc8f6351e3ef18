// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the inbox router, mounted under /notifications.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Get("/unread-count", h.ServeUnreadCount)
	r.Post("/read-all", h.ServeMarkAllRead)
	r.Post("/{id}/read", h.ServeMarkRead)
	return r
}
