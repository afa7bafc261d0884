package identity

import (
	"time"

	"github.com/hackgods/clinic-scheduling/internal/access"
)

// Account is an actor plus the profile fields the store keeps about it.
type Account struct {
	access.Actor
	Name       string
	Email      *string
	ApprovedAt *time.Time
	CreatedAt  time.Time
}

type ListFilter struct {
	Role     access.Role // empty means any
	Approved *bool
	Limit    int
	Offset   int
}

// Counts summarizes the actor population. Disabled actors are not counted.
type Counts struct {
	Doctors          int // approved
	Patients         int // approved
	PendingApprovals int // any role
}
