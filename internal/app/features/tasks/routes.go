// internal/app/features/tasks/routes.go
package tasks

import (
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the task API router, mounted under /tasks.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Post("/", h.ServeCreate)
	r.Get("/project/{projectId}", h.ServeListByProject)

	r.Route("/{taskId}", func(r chi.Router) {
		r.Get("/", h.ServeGet)
		r.Put("/", h.ServeUpdate)
		r.Delete("/", h.ServeDelete)
		r.Post("/submit-review", h.ServeSubmit)
		r.Post("/approve-review", h.ServeApprove)
		r.Post("/reject-review", h.ServeReject)
		r.Post("/complete", h.ServeComplete)
		r.Post("/comments", h.ServeComment)
	})
	return r
}
