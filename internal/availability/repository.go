package availability

import (
	"context"

	"github.com/google/uuid"
)

// Repository holds recurring windows and dated exceptions per doctor.
type Repository interface {
	ListWindows(ctx context.Context, doctorID uuid.UUID) ([]Window, error)
	// CreateWindow fails with ErrWindowOverlap if the doctor already has an
	// overlapping window on that weekday.
	CreateWindow(ctx context.Context, w *Window) error
	DeleteWindow(ctx context.Context, doctorID, id uuid.UUID) error

	ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to Date) ([]Exception, error)
	CreateException(ctx context.Context, e *Exception) error
	DeleteException(ctx context.Context, doctorID, id uuid.UUID) error
}
