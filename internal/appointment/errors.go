package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidRequest      = errors.New("invalid appointment request")

	// ErrStatusChanged is returned by a Repository when a compare-and-set on
	// status lost to a concurrent writer.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// ConflictError means the requested interval overlaps another active
// appointment of the same doctor. Callers may retry with a freshly computed slot.
type ConflictError struct {
	DoctorID   uuid.UUID
	Start      time.Time
	End        time.Time
	ExistingID uuid.UUID // zero when the store only reported contention
}

func (e *ConflictError) Error() string {
	if e.ExistingID != uuid.Nil {
		return fmt.Sprintf("conflict: doctor %s already has appointment %s overlapping %s-%s",
			e.DoctorID, e.ExistingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("conflict: doctor %s slot %s-%s was taken concurrently",
		e.DoctorID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// InvalidSlotError means the slot is malformed or is not open in the doctor's availability.
type InvalidSlotError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("invalid slot %s-%s: %s", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Reason)
}

// StateError is an illegal status transition.
type StateError struct {
	ID        uuid.UUID
	Current   Status
	Requested Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("appointment %s is %s and cannot become %s", e.ID, e.Current, e.Requested)
}
