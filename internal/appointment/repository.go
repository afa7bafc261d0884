package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/events"
)

// Repository is the appointment store. Every mutation writes its event in the
// same transaction as the row change.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)
	// CountAppointments counts what ListAppointments would return without paging.
	CountAppointments(ctx context.Context, f ListFilter) (int, error)

	// ListActiveForDoctor returns non-cancelled appointments overlapping [from, to).
	ListActiveForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// CreateAppointment inserts a if no active appointment of the doctor overlaps
	// it, and returns a *ConflictError otherwise. The check and the insert run
	// in one transaction serialized per (doctor, date).
	CreateAppointment(ctx context.Context, a *Appointment, ev events.Event) error

	// RescheduleAppointment moves the appointment to [start, end) and sets it
	// RESCHEDULED, if its status is still from and the new interval overlaps
	// no other active appointment.
	RescheduleAppointment(ctx context.Context, id uuid.UUID, from Status, start, end time.Time, ev events.Event) (*Appointment, error)

	// UpdateAppointmentStatus sets status to `to` only if it is currently
	// `from`, returning ErrStatusChanged otherwise.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, ev events.Event) (*Appointment, error)

	ListPatientsOfDoctor(ctx context.Context, doctorID uuid.UUID) ([]PatientVisits, error)
}
