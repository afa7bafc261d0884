package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusRescheduled Status = "RESCHEDULED"
	StatusCancelled   Status = "CANCELLED"
	StatusCompleted   Status = "COMPLETED"
)

// transitions lists the legal next states. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed:   {StatusRescheduled, StatusCancelled, StatusCompleted},
	StatusRescheduled: {StatusRescheduled, StatusCancelled, StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRescheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Active appointments hold their interval on the doctor's calendar.
func (s Status) Active() bool {
	return s != StatusCancelled
}

type Kind string

const (
	KindOPD          Kind = "OPD"
	KindFollowUp     Kind = "FOLLOWUP"
	KindConsultation Kind = "CONSULTATION"
	KindCheckup      Kind = "CHECKUP"
)

func (k Kind) Valid() bool {
	switch k {
	case KindOPD, KindFollowUp, KindConsultation, KindCheckup:
		return true
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Start     time.Time `json:"scheduled_start"`
	End       time.Time `json:"scheduled_end"`
	Status    Status    `json:"status"`
	Kind      Kind      `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	CreatedBy uuid.UUID `json:"created_by"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Appointment) Interval() availability.Interval {
	return availability.Interval{Start: a.Start, End: a.End}
}

// Resource is the ownership view used for authorization.
func (a Appointment) Resource() access.Resource {
	return access.Resource{DoctorID: a.DoctorID, PatientID: a.PatientID}
}

// BookRequest asks for a new appointment. Duration zero means the configured slot length.
type BookRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Start     time.Time
	Duration  time.Duration
	Kind      Kind
	Reason    string
}

type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    Status // empty means any
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// PatientVisits summarizes one patient seen by a doctor.
type PatientVisits struct {
	PatientID    uuid.UUID `json:"patient_id"`
	Name         string    `json:"name"`
	Appointments int       `json:"appointments"`
	LastStart    time.Time `json:"last_start"`
}
