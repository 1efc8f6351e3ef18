// internal/app/policy/projectpolicy/projectpolicy.go
package projectpolicy

import (
	"context"
	"errors"

	projectstore "github.com/dalemusser/taskhub/internal/app/store/projects"
	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectGetter loads a project by ID. *projectstore.Store satisfies it.
type ProjectGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Project, error)
}

// Resolver answers membership questions against the authoritative project
// document. Every call reads the project again; team changes made elsewhere
// are visible on the next request.
type Resolver struct {
	projects ProjectGetter
}

// NewResolver builds a Resolver over projects.
func NewResolver(projects ProjectGetter) *Resolver {
	return &Resolver{projects: projects}
}

// Project loads the project, mapping a missing or unaddressable project to
// apperr NotFound and anything else to a server fault.
func (r *Resolver) Project(ctx context.Context, projectID primitive.ObjectID) (models.Project, error) {
	if projectID.IsZero() {
		return models.Project{}, apperr.NotFound("project not found")
	}
	p, err := r.projects.GetByID(ctx, projectID)
	if errors.Is(err, projectstore.ErrNotFound) {
		return models.Project{}, apperr.NotFound("project not found")
	}
	if err != nil {
		return models.Project{}, apperr.Fault(err, "load project %s", projectID.Hex())
	}
	return p, nil
}

// IsParticipant reports whether userID is the owner or a team member of the
// project. It fails closed: zero IDs, a missing project, or a read error all
// yield false.
func (r *Resolver) IsParticipant(ctx context.Context, projectID, userID primitive.ObjectID) bool {
	if userID.IsZero() {
		return false
	}
	p, err := r.Project(ctx, projectID)
	if err != nil {
		return false
	}
	return p.IsParticipant(userID)
}

// IsOwner reports whether userID owns the project. Fails closed like IsParticipant.
func (r *Resolver) IsOwner(ctx context.Context, projectID, userID primitive.ObjectID) bool {
	if userID.IsZero() {
		return false
	}
	p, err := r.Project(ctx, projectID)
	if err != nil {
		return false
	}
	return p.Owner == userID
}

// RequireParticipant loads the project and returns AccessDenied unless
// userID takes part in it.
func (r *Resolver) RequireParticipant(ctx context.Context, projectID, userID primitive.ObjectID) (models.Project, error) {
	p, err := r.Project(ctx, projectID)
	if err != nil {
		return models.Project{}, err
	}
	if !p.IsParticipant(userID) {
		return models.Project{}, apperr.AccessDenied("you are not a member of this project")
	}
	return p, nil
}

// RequireOwner loads the project and returns AccessDenied unless userID owns it.
func (r *Resolver) RequireOwner(ctx context.Context, projectID, userID primitive.ObjectID) (models.Project, error) {
	p, err := r.Project(ctx, projectID)
	if err != nil {
		return models.Project{}, err
	}
	if userID.IsZero() || p.Owner != userID {
		return models.Project{}, apperr.AccessDenied("only the project owner can do this")
	}
	return p, nil
}
