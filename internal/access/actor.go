package access

import (
	"github.com/google/uuid"
)

// Role is the closed set of actor classes. It is fixed when the actor is created.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Actor is the authenticated principal every operation is evaluated for.
type Actor struct {
	ID       uuid.UUID `json:"id"`
	Role     Role      `json:"role"`
	Approved bool      `json:"approved"`
	Disabled bool      `json:"disabled"`
}

// Active reports whether the actor may do anything at all.
func (a Actor) Active() bool {
	return a.Approved && !a.Disabled
}
