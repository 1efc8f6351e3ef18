// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType is a closed set; stores reject anything not listed here.
type NotificationType string

const (
	NotifyTaskAssigned  NotificationType = "task_assigned"
	NotifyTaskSubmitted NotificationType = "task_submitted"
	NotifyTaskApproved  NotificationType = "task_approved"
	NotifyTaskRejected  NotificationType = "task_rejected"
	NotifyTaskOverdue   NotificationType = "task_overdue"
	NotifyTaskDueSoon   NotificationType = "task_due_soon"
	NotifyTaskDeleted   NotificationType = "task_deleted"

	NotifyCollaborationInvite   NotificationType = "collaboration_invite"
	NotifyCollaborationAccepted NotificationType = "collaboration_accepted"
	NotifyCollaborationDeclined NotificationType = "collaboration_declined"
)

// NotificationTypes lists every accepted notification type.
var NotificationTypes = []NotificationType{
	NotifyTaskAssigned, NotifyTaskSubmitted, NotifyTaskApproved, NotifyTaskRejected,
	NotifyTaskOverdue, NotifyTaskDueSoon, NotifyTaskDeleted,
	NotifyCollaborationInvite, NotifyCollaborationAccepted, NotifyCollaborationDeclined,
}

// Valid reports whether t belongs to the closed notification type set.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Notification is written once and only ever has IsRead flipped afterwards.
type Notification struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Recipient       primitive.ObjectID  `bson:"recipient" json:"recipient"`
	Type            NotificationType    `bson:"type" json:"type"`
	Message         string              `bson:"message" json:"message"`
	ProjectID       *primitive.ObjectID `bson:"project_id,omitempty" json:"projectId,omitempty"`
	TaskID          *primitive.ObjectID `bson:"task_id,omitempty" json:"taskId,omitempty"`
	RelatedUser     *primitive.ObjectID `bson:"related_user,omitempty" json:"relatedUser,omitempty"`
	CollaborationID *primitive.ObjectID `bson:"collaboration_id,omitempty" json:"collaborationId,omitempty"`
	IsRead          bool                `bson:"is_read" json:"isRead"`
	CreatedAt       time.Time           `bson:"created_at" json:"createdAt"`
}
