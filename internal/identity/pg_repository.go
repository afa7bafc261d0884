package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const actorColumns = `id, role, name, email, approved, disabled, approved_at, created_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Role,
		&a.Name,
		&a.Email,
		&a.Approved,
		&a.Disabled,
		&a.ApprovedAt,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActorNotFound
		}
		return nil, db.Storage("scan actor", err)
	}
	return &a, nil
}

func (r *PgRepository) CreateActor(ctx context.Context, acc *Account) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO actors (id, role, name, email, approved, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, false, now())
		RETURNING `+actorColumns,
		acc.ID, acc.Role, acc.Name, acc.Email, acc.Approved)

	created, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	*acc = *created
	return nil
}

func (r *PgRepository) GetActorByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *PgRepository) ListActors(ctx context.Context, f ListFilter) ([]Account, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Approved != nil {
		args = append(args, *f.Approved)
		where = append(where, fmt.Sprintf("approved = $%d", len(args)))
	}

	q := `SELECT ` + actorColumns + ` FROM actors`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, db.Storage("list actors", err)
	}
	defer rows.Close()

	var result []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Storage("list actors", err)
	}
	return result, nil
}

func (r *PgRepository) CountActors(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE role = $1 AND approved),
			count(*) FILTER (WHERE role = $2 AND approved),
			count(*) FILTER (WHERE NOT approved)
		FROM actors
		WHERE NOT disabled
	`, access.RoleDoctor, access.RolePatient).Scan(&c.Doctors, &c.Patients, &c.PendingApprovals)
	if err != nil {
		return Counts{}, db.Storage("count actors", err)
	}
	return c, nil
}

func (r *PgRepository) ApproveActor(ctx context.Context, id uuid.UUID, at time.Time) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE actors
		SET approved = true,
		    approved_at = $2
		WHERE id = $1
		  AND approved = false
		RETURNING `+actorColumns, id, at)

	acc, err := scanAccount(row)
	if errors.Is(err, ErrActorNotFound) {
		// Either the actor does not exist or it was already approved.
		if _, getErr := r.GetActorByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyApproved
	}
	return acc, err
}

func (r *PgRepository) DisableActor(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE actors
		SET disabled = true
		WHERE id = $1
		RETURNING `+actorColumns, id)
	return scanAccount(row)
}
