package access

import (
	"fmt"

	"github.com/google/uuid"
)

// ForbiddenError is an authorization denial. It is never retried and is kept
// apart from scheduling errors so callers can tell "not allowed" from "not possible".
type ForbiddenError struct {
	ActorID   uuid.UUID
	Role      Role
	Operation Operation
	Reason    string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s %s cannot %s: %s", e.Role, e.ActorID, e.Operation, e.Reason)
}
