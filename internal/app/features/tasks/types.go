// internal/app/features/tasks/types.go
package tasks

import (
	"time"
)

type createRequest struct {
	ProjectID   string     `json:"projectId" validate:"required,objectid"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Assignee    string     `json:"assignee" validate:"required,objectid"`
	Deadline    *time.Time `json:"deadline" validate:"required"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=Low Medium High"`
}

type updateRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=ToDo InProgress Review Done"`
	Assignee    *string    `json:"assignee" validate:"omitempty,objectid"`
	Deadline    *time.Time `json:"deadline"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=Low Medium High"`
	Version     *int64     `json:"version" validate:"omitempty,gte=1"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type commentRequest struct {
	Text string `json:"text" validate:"max=2000"`
}

type deleteResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
}
