package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
)

type Service struct {
	repo       Repository
	loc        *time.Location
	slotLength time.Duration
	log        zerolog.Logger
}

func NewService(repo Repository, loc *time.Location, slotLength time.Duration, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:       repo,
		loc:        loc,
		slotLength: slotLength,
		log:        log.With().Str("component", "availability").Logger(),
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) SlotLength() time.Duration {
	return s.slotLength
}

// AddWindow adds a recurring window for the doctor that owns it.
func (s *Service) AddWindow(ctx context.Context, actor access.Actor, w Window) (*Window, error) {
	if err := access.Authorize(actor, access.OpAvailabilityWrite, access.Resource{DoctorID: w.DoctorID}); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	w.ID = uuid.New()
	if err := s.repo.CreateWindow(ctx, &w); err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	s.log.Debug().
		Str("doctor_id", w.DoctorID.String()).
		Int("weekday", int(w.Weekday)).
		Int("start_minute", w.StartMinute).
		Int("end_minute", w.EndMinute).
		Msg("window added")
	return &w, nil
}

func (s *Service) RemoveWindow(ctx context.Context, actor access.Actor, doctorID, id uuid.UUID) error {
	if err := access.Authorize(actor, access.OpAvailabilityWrite, access.Resource{DoctorID: doctorID}); err != nil {
		return err
	}
	if err := s.repo.DeleteWindow(ctx, doctorID, id); err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	return nil
}

func (s *Service) ListWindows(ctx context.Context, actor access.Actor, doctorID uuid.UUID) ([]Window, error) {
	if err := access.Authorize(actor, access.OpAvailabilityRead, access.Resource{DoctorID: doctorID}); err != nil {
		return nil, err
	}
	windows, err := s.repo.ListWindows(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return windows, nil
}

// AddException blocks or adds hours on one date for the doctor that owns it.
func (s *Service) AddException(ctx context.Context, actor access.Actor, e Exception) (*Exception, error) {
	if err := access.Authorize(actor, access.OpAvailabilityWrite, access.Resource{DoctorID: e.DoctorID}); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	e.ID = uuid.New()
	if err := s.repo.CreateException(ctx, &e); err != nil {
		return nil, fmt.Errorf("create exception: %w", err)
	}

	s.log.Debug().
		Str("doctor_id", e.DoctorID.String()).
		Str("date", e.Date.String()).
		Str("kind", string(e.Kind)).
		Msg("exception added")
	return &e, nil
}

func (s *Service) RemoveException(ctx context.Context, actor access.Actor, doctorID, id uuid.UUID) error {
	if err := access.Authorize(actor, access.OpAvailabilityWrite, access.Resource{DoctorID: doctorID}); err != nil {
		return err
	}
	if err := s.repo.DeleteException(ctx, doctorID, id); err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	return nil
}

func (s *Service) ListExceptions(ctx context.Context, actor access.Actor, doctorID uuid.UUID, from, to Date) ([]Exception, error) {
	if err := access.Authorize(actor, access.OpAvailabilityRead, access.Resource{DoctorID: doctorID}); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidRange)
	}
	exceptions, err := s.repo.ListExceptions(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return exceptions, nil
}

// Snapshot loads the doctor's windows and the exceptions between from and to.
// Callers authorize before using it.
func (s *Service) Snapshot(ctx context.Context, doctorID uuid.UUID, from, to Date) (Schedule, error) {
	windows, err := s.repo.ListWindows(ctx, doctorID)
	if err != nil {
		return Schedule{}, fmt.Errorf("load windows: %w", err)
	}
	exceptions, err := s.repo.ListExceptions(ctx, doctorID, from, to)
	if err != nil {
		return Schedule{}, fmt.Errorf("load exceptions: %w", err)
	}
	return Schedule{
		Windows:    windows,
		Exceptions: exceptions,
		Location:   s.loc,
		SlotLength: s.slotLength,
	}, nil
}
