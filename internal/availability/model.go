package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const minutesPerDay = 24 * 60

var (
	ErrWindowNotFound    = errors.New("availability window not found")
	ErrExceptionNotFound = errors.New("availability exception not found")
	ErrWindowOverlap     = errors.New("availability window overlaps an existing window")
	ErrInvalidWindow     = errors.New("invalid availability window")
	ErrInvalidRange      = errors.New("invalid date range")
)

type ExceptionKind string

const (
	ExceptionBlocked ExceptionKind = "BLOCKED"
	ExceptionAdded   ExceptionKind = "ADDED"
)

// Window is a recurring weekly block of working hours. Times are minutes
// since midnight in the facility time zone.
type Window struct {
	ID          uuid.UUID    `json:"id"`
	DoctorID    uuid.UUID    `json:"doctor_id"`
	Weekday     time.Weekday `json:"weekday"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (w Window) Validate() error {
	if w.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalidWindow)
	}
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d out of range", ErrInvalidWindow, w.Weekday)
	}
	return validateMinutes(w.StartMinute, w.EndMinute)
}

// Overlaps reports whether two windows share a weekday and any minute.
func (w Window) Overlaps(o Window) bool {
	return w.Weekday == o.Weekday && w.StartMinute < o.EndMinute && o.StartMinute < w.EndMinute
}

// Exception overrides the recurring windows on one date.
type Exception struct {
	ID          uuid.UUID     `json:"id"`
	DoctorID    uuid.UUID     `json:"doctor_id"`
	Date        Date          `json:"date"`
	Kind        ExceptionKind `json:"kind"`
	StartMinute int           `json:"start_minute"`
	EndMinute   int           `json:"end_minute"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (e Exception) Validate() error {
	if e.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalidWindow)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidWindow)
	}
	if e.Kind != ExceptionBlocked && e.Kind != ExceptionAdded {
		return fmt.Errorf("%w: unknown exception kind %q", ErrInvalidWindow, e.Kind)
	}
	return validateMinutes(e.StartMinute, e.EndMinute)
}

func validateMinutes(start, end int) error {
	if start < 0 || end > minutesPerDay {
		return fmt.Errorf("%w: minutes must be within 0..%d", ErrInvalidWindow, minutesPerDay)
	}
	if start >= end {
		return fmt.Errorf("%w: start must be before end", ErrInvalidWindow)
	}
	return nil
}
