package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	windowColumns    = `id, doctor_id, weekday, start_minute, end_minute, created_at`
	exceptionColumns = `id, doctor_id, on_date, kind, start_minute, end_minute, reason, created_at`
)

func scanWindow(row pgx.Row) (*Window, error) {
	var (
		w       Window
		weekday int16
	)
	err := row.Scan(&w.ID, &w.DoctorID, &weekday, &w.StartMinute, &w.EndMinute, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, db.Storage("scan window", err)
	}
	w.Weekday = time.Weekday(weekday)
	return &w, nil
}

func scanException(row pgx.Row) (*Exception, error) {
	var (
		e      Exception
		onDate time.Time
	)
	err := row.Scan(&e.ID, &e.DoctorID, &onDate, &e.Kind, &e.StartMinute, &e.EndMinute, &e.Reason, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, db.Storage("scan exception", err)
	}
	e.Date = DateOf(onDate)
	return &e, nil
}

func (r *PgRepository) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY weekday, start_minute
	`, doctorID)
	if err != nil {
		return nil, db.Storage("list windows", err)
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Storage("list windows", err)
	}
	return result, nil
}

func (r *PgRepository) CreateWindow(ctx context.Context, w *Window) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		key := fmt.Sprintf("availability:%s:%d", w.DoctorID, w.Weekday)
		if err := db.LockKeys(ctx, tx, key); err != nil {
			return err
		}

		var overlapping bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM availability_windows
				WHERE doctor_id = $1
				  AND weekday = $2
				  AND start_minute < $4
				  AND $3 < end_minute
			)
		`, w.DoctorID, int16(w.Weekday), w.StartMinute, w.EndMinute).Scan(&overlapping)
		if err != nil {
			return db.Storage("check window overlap", err)
		}
		if overlapping {
			return ErrWindowOverlap
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO availability_windows (id, doctor_id, weekday, start_minute, end_minute, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			RETURNING `+windowColumns,
			w.ID, w.DoctorID, int16(w.Weekday), w.StartMinute, w.EndMinute)

		created, err := scanWindow(row)
		if err != nil {
			if db.IsContention(err) {
				return ErrWindowOverlap
			}
			return err
		}
		*w = *created
		return nil
	})
}

func (r *PgRepository) DeleteWindow(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return db.Storage("delete window", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to Date) ([]Exception, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE doctor_id = $1
		  AND on_date BETWEEN $2 AND $3
		ORDER BY on_date, start_minute
	`, doctorID, from.Time(), to.Time())
	if err != nil {
		return nil, db.Storage("list exceptions", err)
	}
	defer rows.Close()

	var result []Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Storage("list exceptions", err)
	}
	return result, nil
}

func (r *PgRepository) CreateException(ctx context.Context, e *Exception) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_exceptions (id, doctor_id, on_date, kind, start_minute, end_minute, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING `+exceptionColumns,
		e.ID, e.DoctorID, e.Date.Time(), e.Kind, e.StartMinute, e.EndMinute, e.Reason)

	created, err := scanException(row)
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

func (r *PgRepository) DeleteException(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return db.Storage("delete exception", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}
