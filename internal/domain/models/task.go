// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the owner-facing board column of a task.
type Status string

const (
	StatusToDo       Status = "ToDo"
	StatusInProgress Status = "InProgress"
	StatusReview     Status = "Review"
	StatusDone       Status = "Done"
)

// Valid reports whether s is one of the four board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// WorkflowStatus is the fine-grained review phase of a task.
type WorkflowStatus string

const (
	WorkflowAssignedToSelfTodo WorkflowStatus = "assigned_to_self_todo"
	WorkflowAssignedToMember   WorkflowStatus = "assigned_to_member"
	WorkflowSubmittedForReview WorkflowStatus = "submitted_for_review"
	WorkflowRejectedByOwner    WorkflowStatus = "rejected_by_owner"
	WorkflowApprovedCompleted  WorkflowStatus = "approved_completed"
	WorkflowOverdue            WorkflowStatus = "overdue"
	WorkflowDueSoon            WorkflowStatus = "due_soon"
)

// Valid reports whether w is a known workflow phase.
func (w WorkflowStatus) Valid() bool {
	switch w {
	case WorkflowAssignedToSelfTodo, WorkflowAssignedToMember, WorkflowSubmittedForReview,
		WorkflowRejectedByOwner, WorkflowApprovedCompleted, WorkflowOverdue, WorkflowDueSoon:
		return true
	}
	return false
}

// Priority ranks a task on the board.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// CommentKind separates free-form discussion from workflow-generated entries.
type CommentKind string

const (
	CommentGeneral   CommentKind = "general"
	CommentRejection CommentKind = "rejection"
	CommentUpdateLog CommentKind = "update_log"
)

// Comment is embedded in the task document; comments are never stored on their own.
type Comment struct {
	Text       string             `bson:"text" json:"text"`
	Author     primitive.ObjectID `bson:"author" json:"author"`
	AuthorName string             `bson:"author_name" json:"authorName"`
	Kind       CommentKind        `bson:"kind" json:"kind"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
}

// Task is a unit of work inside a project.
//
// NOTE:
//   - Status and WorkflowStatus move together: Status == Done exactly when
//     WorkflowStatus == approved_completed.
//   - Version is bumped on every write and used as the optimistic-lock token.
type Task struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID      primitive.ObjectID `bson:"project_id" json:"projectId"`
	Title          string             `bson:"title" json:"title"`
	Description    string             `bson:"description" json:"description"`
	Status         Status             `bson:"status" json:"status"`
	WorkflowStatus WorkflowStatus     `bson:"workflow_status" json:"workflowStatus"`
	Assignee       primitive.ObjectID `bson:"assignee" json:"assignee"`
	CreatedBy      primitive.ObjectID `bson:"created_by" json:"createdBy"`
	Deadline       time.Time          `bson:"deadline" json:"deadline"`
	Priority       Priority           `bson:"priority" json:"priority"`
	Comments       []Comment          `bson:"comments" json:"comments"`
	Version        int64              `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// LastComment returns the most recent comment, if any.
func (t Task) LastComment() (Comment, bool) {
	if len(t.Comments) == 0 {
		return Comment{}, false
	}
	return t.Comments[len(t.Comments)-1], true
}
