package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrActorNotFound   = errors.New("actor not found")
	ErrAlreadyApproved = errors.New("actor is already approved")
	ErrEmailTaken      = errors.New("email is already registered")
	ErrInvalidActor    = errors.New("invalid actor")
)

// Repository is the persistent actor store.
type Repository interface {
	CreateActor(ctx context.Context, acc *Account) error
	GetActorByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ListActors(ctx context.Context, f ListFilter) ([]Account, error)
	CountActors(ctx context.Context) (Counts, error)

	// ApproveActor flips approved false->true. It fails with ErrAlreadyApproved
	// when the flag is already set.
	ApproveActor(ctx context.Context, id uuid.UUID, at time.Time) (*Account, error)
	DisableActor(ctx context.Context, id uuid.UUID) (*Account, error)
}
