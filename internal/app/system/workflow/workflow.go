// Package workflow holds the task review rules: which phase a task starts in,
// which phases each action may be taken from, the Done/approved invariant,
// and the deadline-driven phase derivation used by the sweeper.
//
// Everything here is pure; callers load the task, apply a rule, and persist.
package workflow

import (
	"time"

	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultDueSoonWindow is how far ahead of a deadline a task is flagged due_soon.
const DefaultDueSoonWindow = 72 * time.Hour

// submittable lists the phases a task may be submitted for review from.
var submittable = map[models.WorkflowStatus]bool{
	models.WorkflowAssignedToMember:   true,
	models.WorkflowAssignedToSelfTodo: true,
	models.WorkflowRejectedByOwner:    true,
	models.WorkflowOverdue:            true,
	models.WorkflowDueSoon:            true,
}

// selfCompletable lists the phases a self-assigned task may be closed from
// without review: its resting phase, the deadline phases the sweeper moves
// it into, and rejected (the owner rejected their own submission).
var selfCompletable = map[models.WorkflowStatus]bool{
	models.WorkflowAssignedToSelfTodo: true,
	models.WorkflowDueSoon:            true,
	models.WorkflowOverdue:            true,
	models.WorkflowRejectedByOwner:    true,
}

// AssignedPhase is the resting phase for a task given who holds it.
func AssignedPhase(assignee, owner primitive.ObjectID) models.WorkflowStatus {
	if assignee == owner {
		return models.WorkflowAssignedToSelfTodo
	}
	return models.WorkflowAssignedToMember
}

// openStatus is the board column an open task sits in for its assignee.
func openStatus(assignee, owner primitive.ObjectID) models.Status {
	if assignee == owner {
		return models.StatusToDo
	}
	return models.StatusInProgress
}

// Initial returns the status pair for a freshly created task.
func Initial(assignee, owner primitive.ObjectID) (models.Status, models.WorkflowStatus) {
	return openStatus(assignee, owner), AssignedPhase(assignee, owner)
}

// CanSubmit reports whether a task in phase ws may be submitted for review.
func CanSubmit(ws models.WorkflowStatus) bool {
	return submittable[ws]
}

// Submit moves t into review.
func Submit(t *models.Task) error {
	if !CanSubmit(t.WorkflowStatus) {
		return apperr.InvalidTransition("task cannot be submitted for review from %q", t.WorkflowStatus)
	}
	t.Status = models.StatusReview
	t.WorkflowStatus = models.WorkflowSubmittedForReview
	return nil
}

// Approve completes a task that is under review.
func Approve(t *models.Task) error {
	if t.WorkflowStatus != models.WorkflowSubmittedForReview {
		return apperr.InvalidTransition("only tasks submitted for review can be approved (current %q)", t.WorkflowStatus)
	}
	t.Status = models.StatusDone
	t.WorkflowStatus = models.WorkflowApprovedCompleted
	return nil
}

// Reject sends a reviewed task back to its assignee. The caller appends the
// rejection comment; the reason is validated by the caller too.
func Reject(t *models.Task, owner primitive.ObjectID) error {
	if t.WorkflowStatus != models.WorkflowSubmittedForReview {
		return apperr.InvalidTransition("only tasks submitted for review can be rejected (current %q)", t.WorkflowStatus)
	}
	t.Status = openStatus(t.Assignee, owner)
	t.WorkflowStatus = models.WorkflowRejectedByOwner
	return nil
}

// CompleteSelf lets the owner close a task they assigned to themselves without review.
func CompleteSelf(t *models.Task, owner primitive.ObjectID) error {
	if t.Assignee != owner {
		return apperr.InvalidTransition("only self-assigned tasks can be completed without review")
	}
	if !selfCompletable[t.WorkflowStatus] {
		return apperr.InvalidTransition("task cannot be completed from %q", t.WorkflowStatus)
	}
	t.Status = models.StatusDone
	t.WorkflowStatus = models.WorkflowApprovedCompleted
	return nil
}

// Enforce restores the Done/approved invariant after a direct edit.
//
//   - Status Done forces approved_completed, whatever the previous phase.
//   - Leaving Done drops approved_completed back to the assigned phase.
//   - A task resting in an assigned phase follows a change of assignee.
func Enforce(t *models.Task, owner primitive.ObjectID) {
	switch {
	case t.Status == models.StatusDone:
		t.WorkflowStatus = models.WorkflowApprovedCompleted
	case t.WorkflowStatus == models.WorkflowApprovedCompleted:
		t.WorkflowStatus = AssignedPhase(t.Assignee, owner)
	case t.WorkflowStatus == models.WorkflowAssignedToSelfTodo || t.WorkflowStatus == models.WorkflowAssignedToMember:
		t.WorkflowStatus = AssignedPhase(t.Assignee, owner)
	}
}

// Sweepable reports whether the deadline rules may touch a task in phase ws.
func Sweepable(ws models.WorkflowStatus) bool {
	return ws != models.WorkflowSubmittedForReview && ws != models.WorkflowApprovedCompleted
}

// Derive returns the phase the deadline rules put t in at time now.
// It only ever yields overdue, due_soon, an assigned phase, or t's current phase,
// and it is a pure function of (t, owner, now, window): applying it twice is a no-op.
// owner is the project's current owner, as in Enforce.
func Derive(t models.Task, owner primitive.ObjectID, now time.Time, window time.Duration) models.WorkflowStatus {
	if !Sweepable(t.WorkflowStatus) || t.Deadline.IsZero() {
		return t.WorkflowStatus
	}
	left := t.Deadline.Sub(now)
	switch {
	case left <= 0:
		return models.WorkflowOverdue
	case left <= window:
		return models.WorkflowDueSoon
	case t.WorkflowStatus == models.WorkflowOverdue || t.WorkflowStatus == models.WorkflowDueSoon:
		return AssignedPhase(t.Assignee, owner)
	default:
		return t.WorkflowStatus
	}
}
