// internal/app/features/tasks/service.go
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/taskhub/internal/app/policy/projectpolicy"
	taskstore "github.com/dalemusser/taskhub/internal/app/store/tasks"
	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/app/system/metrics"
	"github.com/dalemusser/taskhub/internal/app/system/realtime"
	"github.com/dalemusser/taskhub/internal/app/system/textsanitize"
	"github.com/dalemusser/taskhub/internal/app/system/workflow"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the persistence the state machine needs. *taskstore.Store satisfies it.
type Store interface {
	Create(ctx context.Context, t models.Task) (models.Task, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Task, error)
	ListByProject(ctx context.Context, projectID primitive.ObjectID) ([]models.Task, error)
	Update(ctx context.Context, t models.Task) (models.Task, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Events receives notifications and pushes. *realtime.Dispatcher satisfies it.
type Events interface {
	Notify(ctx context.Context, n models.Notification) (models.Notification, error)
	EmitToUsers(users []primitive.ObjectID, name string, data any)
}

// Actor is the signed-in user performing an action.
type Actor struct {
	ID   primitive.ObjectID
	Name string
}

// Service is the task state machine. Every action reads the task and the
// project afresh, checks the actor and the current phase, then writes with
// the version it read; a concurrent writer makes the action fail with Conflict.
type Service struct {
	tasks   Store
	members *projectpolicy.Resolver
	events  Events
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewService wires the state machine. m may be nil.
func NewService(tasks Store, members *projectpolicy.Resolver, events Events, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		tasks:   tasks,
		members: members,
		events:  events,
		metrics: m,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput carries the fields of a new task. Deadline is required.
type CreateInput struct {
	ProjectID   primitive.ObjectID
	Title       string
	Description string
	Assignee    primitive.ObjectID
	Deadline    *time.Time
	Priority    models.Priority
}

// Create adds a task to a project. Only the owner may create; the assignee
// must be the owner or a current team member.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (models.Task, error) {
	project, err := s.members.RequireOwner(ctx, in.ProjectID, actor.ID)
	if err != nil {
		return models.Task{}, err
	}

	title := textsanitize.Text(in.Title)
	if title == "" {
		return models.Task{}, apperr.Validation("title is required")
	}
	if in.Deadline == nil || in.Deadline.IsZero() {
		return models.Task{}, apperr.Validation("deadline is required")
	}
	if in.Assignee.IsZero() || !project.IsParticipant(in.Assignee) {
		return models.Task{}, apperr.Validation("assignee must be the project owner or a team member")
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Task{}, apperr.Validation("priority must be Low, Medium or High")
	}

	status, phase := workflow.Initial(in.Assignee, project.Owner)
	t, err := s.tasks.Create(ctx, models.Task{
		ProjectID:      project.ID,
		Title:          title,
		Description:    textsanitize.Text(in.Description),
		Status:         status,
		WorkflowStatus: phase,
		Assignee:       in.Assignee,
		CreatedBy:      actor.ID,
		Deadline:       in.Deadline.UTC(),
		Priority:       priority,
	})
	if err != nil {
		return models.Task{}, apperr.Fault(err, "create task")
	}

	s.metrics.Transition("create")
	s.log.Info("task created",
		zap.String("task_id", t.ID.Hex()),
		zap.String("project_id", project.ID.Hex()),
		zap.String("assignee", t.Assignee.Hex()))

	if t.Assignee != actor.ID {
		s.notify(ctx, t, t.Assignee, models.NotifyTaskAssigned,
			fmt.Sprintf("%s assigned you %q in %s", nameOr(actor.Name, "The project owner"), t.Title, project.Name), actor.ID)
	}
	s.broadcast(project, t)
	return t, nil
}

// Get returns a task to a participant of its project.
func (s *Service) Get(ctx context.Context, actor Actor, taskID primitive.ObjectID) (models.Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if _, err := s.members.RequireParticipant(ctx, t.ProjectID, actor.ID); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// ListByProject returns a project's tasks to a participant.
func (s *Service) ListByProject(ctx context.Context, actor Actor, projectID primitive.ObjectID) ([]models.Task, error) {
	if _, err := s.members.RequireParticipant(ctx, projectID, actor.ID); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, apperr.Fault(err, "list tasks")
	}
	return tasks, nil
}

// UpdateInput is a partial edit; nil fields are left alone. Version, when
// set, must match the stored version.
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *models.Status
	Assignee    *primitive.ObjectID
	Deadline    *time.Time
	Priority    *models.Priority
	Version     *int64
}

// Update is the owner's direct edit path. Any field may change, including
// status; the Done/approved invariant is restored afterwards.
func (s *Service) Update(ctx context.Context, actor Actor, taskID primitive.ObjectID, in UpdateInput) (models.Task, error) {
	t, project, err := s.loadAsOwner(ctx, actor, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if in.Version != nil && *in.Version != t.Version {
		return models.Task{}, apperr.Conflict("task was changed by someone else; reload and try again")
	}

	var changes []string
	if in.Title != nil {
		title := textsanitize.Text(*in.Title)
		if title == "" {
			return models.Task{}, apperr.Validation("title cannot be blank")
		}
		if title != t.Title {
			t.Title = title
			changes = append(changes, "title")
		}
	}
	if in.Description != nil {
		desc := textsanitize.Text(*in.Description)
		if desc != t.Description {
			t.Description = desc
			changes = append(changes, "description")
		}
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return models.Task{}, apperr.Validation("priority must be Low, Medium or High")
		}
		if *in.Priority != t.Priority {
			t.Priority = *in.Priority
			changes = append(changes, "priority")
		}
	}
	if in.Deadline != nil {
		if in.Deadline.IsZero() {
			return models.Task{}, apperr.Validation("deadline cannot be cleared")
		}
		if d := in.Deadline.UTC(); !d.Equal(t.Deadline) {
			t.Deadline = d
			changes = append(changes, "deadline")
		}
	}
	reassigned := false
	if in.Assignee != nil && *in.Assignee != t.Assignee {
		if !project.IsParticipant(*in.Assignee) {
			return models.Task{}, apperr.Validation("assignee must be the project owner or a team member")
		}
		t.Assignee = *in.Assignee
		reassigned = true
		changes = append(changes, "assignee")
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return models.Task{}, apperr.Validation("status must be ToDo, InProgress, Review or Done")
		}
		if *in.Status != t.Status {
			changes = append(changes, fmt.Sprintf("status %s → %s", t.Status, *in.Status))
			t.Status = *in.Status
		}
	}

	if len(changes) == 0 {
		return t, nil
	}
	workflow.Enforce(&t, project.Owner)
	s.appendComment(&t, actor, models.CommentUpdateLog,
		fmt.Sprintf("%s updated %s", nameOr(actor.Name, "Owner"), strings.Join(changes, ", ")))

	saved, err := s.save(ctx, t)
	if err != nil {
		return models.Task{}, err
	}
	s.metrics.Transition("edit")
	if reassigned && saved.Assignee != actor.ID {
		s.notify(ctx, saved, saved.Assignee, models.NotifyTaskAssigned,
			fmt.Sprintf("%s assigned you %q in %s", nameOr(actor.Name, "The project owner"), saved.Title, project.Name), actor.ID)
	}
	s.broadcast(project, saved)
	return saved, nil
}

// Submit hands the task to the owner for review. Only the current assignee,
// still on the project, may submit.
func (s *Service) Submit(ctx context.Context, actor Actor, taskID primitive.ObjectID) (models.Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	project, err := s.members.RequireParticipant(ctx, t.ProjectID, actor.ID)
	if err != nil {
		return models.Task{}, err
	}
	if t.Assignee != actor.ID {
		return models.Task{}, apperr.AccessDenied("only the assignee can submit this task for review")
	}
	if err := workflow.Submit(&t); err != nil {
		return models.Task{}, err
	}
	s.appendComment(&t, actor, models.CommentUpdateLog,
		fmt.Sprintf("%s submitted the task for review", nameOr(actor.Name, "Assignee")))

	saved, err := s.save(ctx, t)
	if err != nil {
		return models.Task{}, err
	}
	s.metrics.Transition("submit")
	if project.Owner != actor.ID {
		s.notify(ctx, saved, project.Owner, models.NotifyTaskSubmitted,
			fmt.Sprintf("%s submitted %q for review", nameOr(actor.Name, "A team member"), saved.Title), actor.ID)
	}
	s.broadcast(project, saved)
	return saved, nil
}

// Approve completes a task under review.
func (s *Service) Approve(ctx context.Context, actor Actor, taskID primitive.ObjectID) (models.Task, error) {
	t, project, err := s.loadAsOwner(ctx, actor, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if err := workflow.Approve(&t); err != nil {
		return models.Task{}, err
	}
	s.appendComment(&t, actor, models.CommentUpdateLog,
		fmt.Sprintf("%s approved the task", nameOr(actor.Name, "Owner")))

	saved, err := s.save(ctx, t)
	if err != nil {
		return models.Task{}, err
	}
	s.metrics.Transition("approve")
	if saved.Assignee != actor.ID {
		s.notify(ctx, saved, saved.Assignee, models.NotifyTaskApproved,
			fmt.Sprintf("%q was approved", saved.Title), actor.ID)
	}
	s.broadcast(project, saved)
	return saved, nil
}

// Reject sends a task under review back to its assignee with a reason,
// recorded as a single rejection comment.
func (s *Service) Reject(ctx context.Context, actor Actor, taskID primitive.ObjectID, reason string) (models.Task, error) {
	t, project, err := s.loadAsOwner(ctx, actor, taskID)
	if err != nil {
		return models.Task{}, err
	}
	reason = textsanitize.Text(reason)
	if reason == "" {
		return models.Task{}, apperr.Validation("a reason is required to reject a task")
	}
	if err := workflow.Reject(&t, project.Owner); err != nil {
		return models.Task{}, err
	}
	s.appendComment(&t, actor, models.CommentRejection, reason)

	saved, err := s.save(ctx, t)
	if err != nil {
		return models.Task{}, err
	}
	s.metrics.Transition("reject")
	if saved.Assignee != actor.ID {
		s.notify(ctx, saved, saved.Assignee, models.NotifyTaskRejected,
			fmt.Sprintf("%q was sent back: %s", saved.Title, reason), actor.ID)
	}
	s.broadcast(project, saved)
	return saved, nil
}

// Complete lets the owner close a task assigned to themselves without review.
func (s *Service) Complete(ctx context.Context, actor Actor, taskID primitive.ObjectID) (models.Task, error) {
	t, project, err := s.loadAsOwner(ctx, actor, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if err := workflow.CompleteSelf(&t, project.Owner); err != nil {
		return models.Task{}, err
	}
	s.appendComment(&t, actor, models.CommentUpdateLog,
		fmt.Sprintf("%s marked the task done", nameOr(actor.Name, "Owner")))

	saved, err := s.save(ctx, t)
	if err != nil {
		return models.Task{}, err
	}
	s.metrics.Transition("complete")
	s.broadcast(project, saved)
	return saved, nil
}

// Comment appends a general comment. Any participant may comment.
func (s *Service) Comment(ctx context.Context, actor Actor, taskID primitive.ObjectID, text string) (models.Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	project, err := s.members.RequireParticipant(ctx, t.ProjectID, actor.ID)
	if err != nil {
		return models.Task{}, err
	}
	text = textsanitize.Text(text)
	if text == "" {
		return models.Task{}, apperr.Validation("comment text is required")
	}
	s.appendComment(&t, actor, models.CommentGeneral, text)

	saved, err := s.save(ctx, t)
	if err != nil {
		return models.Task{}, err
	}
	s.broadcast(project, saved)
	return saved, nil
}

// Delete removes a task. Owner only.
func (s *Service) Delete(ctx context.Context, actor Actor, taskID primitive.ObjectID) error {
	t, project, err := s.loadAsOwner(ctx, actor, taskID)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, t.ID); err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return apperr.NotFound("task not found")
		}
		return apperr.Fault(err, "delete task")
	}
	s.metrics.Transition("delete")
	s.log.Info("task deleted",
		zap.String("task_id", t.ID.Hex()),
		zap.String("project_id", t.ProjectID.Hex()))

	if t.Assignee != actor.ID {
		s.notify(ctx, t, t.Assignee, models.NotifyTaskDeleted,
			fmt.Sprintf("%q was deleted", t.Title), actor.ID)
	}
	s.events.EmitToUsers(project.Participants(), realtime.EventTaskDeleted,
		realtime.TaskDeleted{TaskID: t.ID, ProjectID: t.ProjectID})
	return nil
}

/* ------------------------------ helpers ------------------------------ */

func (s *Service) load(ctx context.Context, taskID primitive.ObjectID) (models.Task, error) {
	if taskID.IsZero() {
		return models.Task{}, apperr.NotFound("task not found")
	}
	t, err := s.tasks.GetByID(ctx, taskID)
	if errors.Is(err, taskstore.ErrNotFound) {
		return models.Task{}, apperr.NotFound("task not found")
	}
	if err != nil {
		return models.Task{}, apperr.Fault(err, "load task")
	}
	return t, nil
}

func (s *Service) loadAsOwner(ctx context.Context, actor Actor, taskID primitive.ObjectID) (models.Task, models.Project, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return models.Task{}, models.Project{}, err
	}
	project, err := s.members.RequireOwner(ctx, t.ProjectID, actor.ID)
	if err != nil {
		return models.Task{}, models.Project{}, err
	}
	return t, project, nil
}

func (s *Service) save(ctx context.Context, t models.Task) (models.Task, error) {
	saved, err := s.tasks.Update(ctx, t)
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, taskstore.ErrVersionConflict):
		return models.Task{}, apperr.Conflict("task was changed by someone else; reload and try again")
	case errors.Is(err, taskstore.ErrNotFound):
		return models.Task{}, apperr.NotFound("task not found")
	default:
		return models.Task{}, apperr.Fault(err, "save task")
	}
}

func (s *Service) appendComment(t *models.Task, actor Actor, kind models.CommentKind, text string) {
	t.Comments = append(t.Comments, models.Comment{
		Text:       text,
		Author:     actor.ID,
		AuthorName: actor.Name,
		Kind:       kind,
		CreatedAt:  s.now(),
	})
}

// notify stores and pushes a notification. Failures are logged; the task
// change they describe has already been committed.
func (s *Service) notify(ctx context.Context, t models.Task, recipient primitive.ObjectID, kind models.NotificationType, msg string, related primitive.ObjectID) {
	projectID, taskID := t.ProjectID, t.ID
	_, err := s.events.Notify(ctx, models.Notification{
		Recipient:   recipient,
		Type:        kind,
		Message:     msg,
		ProjectID:   &projectID,
		TaskID:      &taskID,
		RelatedUser: &related,
	})
	if err != nil {
		s.log.Warn("task notification failed",
			zap.String("task_id", t.ID.Hex()),
			zap.String("type", string(kind)),
			zap.Error(err))
	}
}

func (s *Service) broadcast(project models.Project, t models.Task) {
	s.events.EmitToUsers(project.Participants(), realtime.EventTaskUpdated, t)
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
