// internal/app/features/chat/routes.go
package chat

import (
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the chat API router, mounted under /chat.
// postLimits wrap only the message post endpoint.
func Routes(h *Handler, postLimits ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/room/{projectId}", h.ServeRoom)
	r.Get("/messages/{chatRoomId}", h.ServeMessages)
	r.With(postLimits...).Post("/messages/{chatRoomId}", h.ServePost)
	r.Post("/messages/{chatRoomId}/read", h.ServeMarkRead)
	return r
}
