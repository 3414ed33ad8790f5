package domain

import (
	"time"

	"venture-plan-server/pkg/plandoc"
)

type CollaboratorRole string

const (
	RoleEditor CollaboratorRole = "editor"
	RoleViewer CollaboratorRole = "viewer"
)

type Collaborator struct {
	UserID  string           `json:"user_id"`
	Role    CollaboratorRole `json:"role"`
	AddedAt time.Time        `json:"added_at"`
}

// Venture is one business-plan project. State holds the live plan document
// that versions are checkpointed from and restored into.
type Venture struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"owner_id"`
	Name          string           `json:"name"`
	Collaborators []Collaborator   `json:"collaborators"`
	State         plandoc.Document `json:"state"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (v *Venture) roleOf(userID string) (CollaboratorRole, bool) {
	for _, c := range v.Collaborators {
		if c.UserID == userID {
			return c.Role, true
		}
	}
	return "", false
}

func (v *Venture) CanRead(userID string) bool {
	if userID == "" {
		return false
	}
	if v.OwnerID == userID {
		return true
	}
	_, ok := v.roleOf(userID)
	return ok
}

func (v *Venture) CanWrite(userID string) bool {
	if userID == "" {
		return false
	}
	if v.OwnerID == userID {
		return true
	}
	role, ok := v.roleOf(userID)
	return ok && role == RoleEditor
}

type CreateVentureRequest struct {
	Name  string           `json:"name" validate:"required,min=1,max=200"`
	State plandoc.Document `json:"state"`
}

type UpdateStateRequest struct {
	State plandoc.Document `json:"state"`
}

type AddCollaboratorRequest struct {
	UserID string           `json:"user_id" validate:"required"`
	Role   CollaboratorRole `json:"role" validate:"required,oneof=editor viewer"`
}
