package identity

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
)

type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "identity").Logger(),
		now:  time.Now,
	}
}

// Register creates an unapproved actor. The role can never change afterwards.
func (s *Service) Register(ctx context.Context, role access.Role, name, email string) (*Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidActor, role)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidActor)
	}

	acc := &Account{
		Actor: access.Actor{ID: uuid.New(), Role: role},
		Name:  name,
	}
	if email = strings.TrimSpace(email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: email is malformed", ErrInvalidActor)
		}
		acc.Email = &email
	}

	if err := s.repo.CreateActor(ctx, acc); err != nil {
		return nil, fmt.Errorf("create actor: %w", err)
	}

	s.log.Info().Str("actor_id", acc.ID.String()).Str("role", string(role)).Msg("actor registered")
	return acc, nil
}

// Approve performs the single legal approval transition.
func (s *Service) Approve(ctx context.Context, admin access.Actor, id uuid.UUID) (*Account, error) {
	if err := access.Authorize(admin, access.OpActorManage, access.Resource{}); err != nil {
		return nil, err
	}

	acc, err := s.repo.ApproveActor(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("approve actor: %w", err)
	}

	s.log.Info().Str("actor_id", id.String()).Str("by", admin.ID.String()).Msg("actor approved")
	return acc, nil
}

// Disable soft-disables an actor. Disabled actors are denied every operation.
func (s *Service) Disable(ctx context.Context, admin access.Actor, id uuid.UUID) (*Account, error) {
	if err := access.Authorize(admin, access.OpActorManage, access.Resource{}); err != nil {
		return nil, err
	}
	if id == admin.ID {
		return nil, fmt.Errorf("%w: an admin cannot disable itself", ErrInvalidActor)
	}

	acc, err := s.repo.DisableActor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("disable actor: %w", err)
	}

	s.log.Info().Str("actor_id", id.String()).Str("by", admin.ID.String()).Msg("actor disabled")
	return acc, nil
}

func (s *Service) List(ctx context.Context, admin access.Actor, f ListFilter) ([]Account, error) {
	if err := access.Authorize(admin, access.OpActorManage, access.Resource{}); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	accounts, err := s.repo.ListActors(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	return accounts, nil
}

// Stats counts approved doctors and patients and the accounts awaiting approval.
func (s *Service) Stats(ctx context.Context, admin access.Actor) (Counts, error) {
	if err := access.Authorize(admin, access.OpActorManage, access.Resource{}); err != nil {
		return Counts{}, err
	}
	c, err := s.repo.CountActors(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("count actors: %w", err)
	}
	return c, nil
}

// Resolve loads the actor behind an authenticated identity.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (access.Actor, error) {
	acc, err := s.repo.GetActorByID(ctx, id)
	if err != nil {
		return access.Actor{}, fmt.Errorf("resolve actor: %w", err)
	}
	return acc.Actor, nil
}

// Get returns an account by id. Used for existence and role checks by other services.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	acc, err := s.repo.GetActorByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get actor: %w", err)
	}
	return acc, nil
}
