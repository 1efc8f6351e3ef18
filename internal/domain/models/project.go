// internal/domain/models/project.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Project is the shared workspace tasks and chat hang off.
//
// NOTE:
//   - Project CRUD and team management live outside this service.
//     This side only reads owner and team_members to authorize actions.
type Project struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name        string               `bson:"name" json:"name"`
	Description string               `bson:"description,omitempty" json:"description,omitempty"`
	Owner       primitive.ObjectID   `bson:"owner" json:"owner"`
	TeamMembers []primitive.ObjectID `bson:"team_members" json:"teamMembers"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Participants returns the owner followed by every team member, deduplicated,
// in first-seen order. Nil IDs are skipped.
func (p Project) Participants() []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(p.TeamMembers)+1)
	out := make([]primitive.ObjectID, 0, len(p.TeamMembers)+1)
	add := func(id primitive.ObjectID) {
		if id.IsZero() {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(p.Owner)
	for _, m := range p.TeamMembers {
		add(m)
	}
	return out
}

// IsParticipant reports whether userID is the owner or a team member.
func (p Project) IsParticipant(userID primitive.ObjectID) bool {
	if userID.IsZero() {
		return false
	}
	if p.Owner == userID {
		return true
	}
	for _, m := range p.TeamMembers {
		if m == userID {
			return true
		}
	}
	return false
}
