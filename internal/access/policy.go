package access

import (
	"github.com/google/uuid"
)

// Operation names an action on a resource kind.
type Operation string

const (
	OpAppointmentRead       Operation = "appointment:read"
	OpAppointmentBook       Operation = "appointment:book"
	OpAppointmentConfirm    Operation = "appointment:confirm"
	OpAppointmentReschedule Operation = "appointment:reschedule"
	OpAppointmentCancel     Operation = "appointment:cancel"
	OpAppointmentComplete   Operation = "appointment:complete"

	OpRecordRead        Operation = "record:read"
	OpRecordWrite       Operation = "record:write"
	OpPrescriptionWrite Operation = "prescription:write"

	OpAvailabilityRead  Operation = "availability:read"
	OpAvailabilityWrite Operation = "availability:write"

	OpActorManage     Operation = "actor:manage"
	OpAssignmentWrite Operation = "assignment:write"
)

// Scope is the ownership condition a role must satisfy for an operation.
type Scope int

const (
	ScopeNone     Scope = iota // never allowed
	ScopeAll                   // allowed on any resource
	ScopeAsDoctor              // resource DoctorID must be the actor
	ScopeAsPatient             // resource PatientID must be the actor
)

// Resource carries the ownership facts of the thing being accessed. For
// appointments both ids are set; for medical records and prescriptions
// DoctorID is the authoring doctor; for availability DoctorID is the owner.
type Resource struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}

// policy is the role x operation table. Missing entries mean ScopeNone.
var policy = map[Role]map[Operation]Scope{
	RoleAdmin: {
		OpAppointmentRead:       ScopeAll,
		OpAppointmentBook:       ScopeAll,
		OpAppointmentConfirm:    ScopeAll,
		OpAppointmentReschedule: ScopeAll,
		OpAppointmentCancel:     ScopeAll,
		OpAppointmentComplete:   ScopeAll,
		OpRecordRead:            ScopeAll,
		OpAvailabilityRead:      ScopeAll,
		OpActorManage:           ScopeAll,
		OpAssignmentWrite:       ScopeAll,
	},
	RoleDoctor: {
		OpAppointmentRead:       ScopeAsDoctor,
		OpAppointmentBook:       ScopeAsDoctor,
		OpAppointmentConfirm:    ScopeAsDoctor,
		OpAppointmentReschedule: ScopeAsDoctor,
		OpAppointmentCancel:     ScopeAsDoctor,
		OpAppointmentComplete:   ScopeAsDoctor,
		OpRecordRead:            ScopeAsDoctor,
		OpRecordWrite:           ScopeAsDoctor,
		OpPrescriptionWrite:     ScopeAsDoctor,
		OpAvailabilityRead:      ScopeAll,
		OpAvailabilityWrite:     ScopeAsDoctor,
	},
	RolePatient: {
		OpAppointmentRead:       ScopeAsPatient,
		OpAppointmentBook:       ScopeAsPatient,
		OpAppointmentReschedule: ScopeAsPatient,
		OpAppointmentCancel:     ScopeAsPatient,
		OpRecordRead:            ScopeAsPatient,
		OpAvailabilityRead:      ScopeAll,
	},
}

// Decision is the outcome of evaluating one request against the policy.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision              { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// ScopeFor returns the ownership condition the actor's role has for op.
func ScopeFor(actor Actor, op Operation) Scope {
	return policy[actor.Role][op]
}

// Evaluate decides whether actor may perform op on res. It is pure and never blocks.
func Evaluate(actor Actor, op Operation, res Resource) Decision {
	if !actor.Role.Valid() {
		return deny("unknown role")
	}
	if actor.Disabled {
		return deny("actor is disabled")
	}
	if !actor.Approved {
		return deny("actor is not approved")
	}

	switch ScopeFor(actor, op) {
	case ScopeAll:
		return allow()
	case ScopeAsDoctor:
		if res.DoctorID != uuid.Nil && res.DoctorID == actor.ID {
			return allow()
		}
		return deny("resource belongs to another doctor")
	case ScopeAsPatient:
		if res.PatientID != uuid.Nil && res.PatientID == actor.ID {
			return allow()
		}
		return deny("resource belongs to another patient")
	default:
		return deny("role has no access to this operation")
	}
}

// Authorize is Evaluate that turns a deny into a *ForbiddenError.
func Authorize(actor Actor, op Operation, res Resource) error {
	d := Evaluate(actor, op, res)
	if d.Allowed {
		return nil
	}
	return &ForbiddenError{
		ActorID:   actor.ID,
		Role:      actor.Role,
		Operation: op,
		Reason:    d.Reason,
	}
}

// AuthorizeScope checks that the actor may perform op on at least the
// resources it owns, and returns the scope list queries must apply.
func AuthorizeScope(actor Actor, op Operation) (Scope, error) {
	self := Resource{DoctorID: actor.ID, PatientID: actor.ID}
	if err := Authorize(actor, op, self); err != nil {
		return ScopeNone, err
	}
	return ScopeFor(actor, op), nil
}
