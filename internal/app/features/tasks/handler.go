// internal/app/features/tasks/handler.go
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/dalemusser/taskhub/internal/app/system/inputval"
	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// Handler serves the task JSON API.
type Handler struct {
	svc *Service
	Log *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, Log: logger}
}

// ServeCreate handles POST /tasks.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	projectID, err := inputval.ObjectID("project", req.ProjectID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	assignee, _ := primitive.ObjectIDFromHex(req.Assignee)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	t, err := h.svc.Create(ctx, actor, CreateInput{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Assignee:    assignee,
		Deadline:    req.Deadline,
		Priority:    models.Priority(req.Priority),
	})
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ServeListByProject handles GET /tasks/project/{projectId}.
func (h *Handler) ServeListByProject(w http.ResponseWriter, r *http.Request) {
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

	tasks, err := h.svc.ListByProject(ctx, actor, projectID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// ServeGet handles GET /tasks/{taskId}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	h.withTask(w, r, func(actor Actor, taskID primitive.ObjectID, r *http.Request) (models.Task, error) {
		return h.svc.Get(r.Context(), actor, taskID)
	})
}

// ServeUpdate handles PUT /tasks/{taskId}.
func (h *Handler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Version:     req.Version,
	}
	if req.Status != nil {
		st := models.Status(*req.Status)
		in.Status = &st
	}
	if req.Priority != nil {
		p := models.Priority(*req.Priority)
		in.Priority = &p
	}
	if req.Assignee != nil {
		a, _ := primitive.ObjectIDFromHex(*req.Assignee)
		in.Assignee = &a
	}
	h.withTask(w, r, func(actor Actor, taskID primitive.ObjectID, r *http.Request) (models.Task, error) {
		return h.svc.Update(r.Context(), actor, taskID, in)
	})
}

// ServeSubmit handles POST /tasks/{taskId}/submit-review.
func (h *Handler) ServeSubmit(w http.ResponseWriter, r *http.Request) {
	h.withTask(w, r, func(actor Actor, taskID primitive.ObjectID, r *http.Request) (models.Task, error) {
		return h.svc.Submit(r.Context(), actor, taskID)
	})
}

// ServeApprove handles POST /tasks/{taskId}/approve-review.
func (h *Handler) ServeApprove(w http.ResponseWriter, r *http.Request) {
	h.withTask(w, r, func(actor Actor, taskID primitive.ObjectID, r *http.Request) (models.Task, error) {
		return h.svc.Approve(r.Context(), actor, taskID)
	})
}

// ServeReject handles POST /tasks/{taskId}/reject-review.
func (h *Handler) ServeReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withTask(w, r, func(actor Actor, taskID primitive.ObjectID, r *http.Request) (models.Task, error) {
		return h.svc.Reject(r.Context(), actor, taskID, req.Reason)
	})
}

// ServeComplete handles POST /tasks/{taskId}/complete.
func (h *Handler) ServeComplete(w http.ResponseWriter, r *http.Request) {
	h.withTask(w, r, func(actor Actor, taskID primitive.ObjectID, r *http.Request) (models.Task, error) {
		return h.svc.Complete(r.Context(), actor, taskID)
	})
}

// ServeComment handles POST /tasks/{taskId}/comments.
func (h *Handler) ServeComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withTask(w, r, func(actor Actor, taskID primitive.ObjectID, r *http.Request) (models.Task, error) {
		return h.svc.Comment(r.Context(), actor, taskID, req.Text)
	})
}

// ServeDelete handles DELETE /tasks/{taskId}.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	taskID, err := inputval.ObjectID("task", chi.URLParam(r, "taskId"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.svc.Delete(ctx, actor, taskID); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Message: "task deleted", TaskID: taskID.Hex()})
}

/* ------------------------------ helpers ------------------------------ */

// withTask resolves the actor and {taskId}, runs fn under a request timeout,
// and writes the resulting task.
func (h *Handler) withTask(w http.ResponseWriter, r *http.Request, fn func(Actor, primitive.ObjectID, *http.Request) (models.Task, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	taskID, err := inputval.ObjectID("task", chi.URLParam(r, "taskId"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	t, err := fn(actor, taskID, r.WithContext(ctx))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		apperr.Write(w, h.Log, apperr.Unauthenticated("sign in required"))
		return Actor{}, false
	}
	id, ok := u.ObjectID()
	if !ok {
		apperr.Write(w, h.Log, apperr.Unauthenticated("sign in required"))
		return Actor{}, false
	}
	return Actor{ID: id, Name: u.Name}, true
}

// decode reads a JSON body into v and validates it. An empty body decodes
// as the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
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
