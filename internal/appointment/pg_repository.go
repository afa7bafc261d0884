package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, doctor_id, patient_id, start_time, end_time, status, kind, reason,
	created_by, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Kind,
		&a.Reason,
		&a.CreatedBy,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, db.Storage("scan appointment", err)
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows, op string) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Storage(op, err)
	}
	return result, nil
}

// dayKeys returns one advisory lock key per UTC date touched by [start, end),
// in ascending order. Two overlapping intervals always share at least one key.
func dayKeys(doctorID uuid.UUID, start, end time.Time) []string {
	first := start.UTC().Truncate(24 * time.Hour)
	last := end.UTC().Add(-time.Nanosecond).Truncate(24 * time.Hour)

	var keys []string
	for d := first; !d.After(last); d = d.Add(24 * time.Hour) {
		keys = append(keys, fmt.Sprintf("appointments:%s:%s", doctorID, d.Format("2006-01-02")))
	}
	return keys
}

// checkOverlap must run after the interval's day keys are locked.
func checkOverlap(ctx context.Context, tx pgx.Tx, doctorID, self uuid.UUID, start, end time.Time) error {
	var existing uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'CANCELLED'
		  AND id <> $2
		  AND tstzrange(start_time, end_time, '[)') && tstzrange($3, $4, '[)')
		LIMIT 1
	`, doctorID, self, start, end).Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil
	case err != nil:
		return db.Storage("check overlap", err)
	}
	return &ConflictError{DoctorID: doctorID, Start: start, End: end, ExistingID: existing}
}

// asConflict turns store contention on the doctor's calendar into a ConflictError.
func asConflict(err error, doctorID uuid.UUID, start, end time.Time) error {
	if db.IsContention(err) {
		return &ConflictError{DoctorID: doctorID, Start: start, End: end}
	}
	return err
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

// whereClause renders the filter's conditions, numbering placeholders from $1.
func whereClause(f ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("end_time > $%d", *f.From)
	}
	if f.To != nil {
		add("start_time < $%d", *f.To)
	}
	if len(where) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(where, " AND "), args
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	where, args := whereClause(f)
	args = append(args, f.Limit, f.Offset)
	q := `SELECT ` + appointmentColumns + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, db.Storage("list appointments", err)
	}
	return collectAppointments(rows, "list appointments")
}

func (r *PgRepository) CountAppointments(ctx context.Context, f ListFilter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments`+where, args...).Scan(&n); err != nil {
		return 0, db.Storage("count appointments", err)
	}
	return n, nil
}

func (r *PgRepository) ListActiveForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, db.Storage("list doctor appointments", err)
	}
	return collectAppointments(rows, "list doctor appointments")
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment, ev events.Event) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.LockKeys(ctx, tx, dayKeys(a.DoctorID, a.Start, a.End)...); err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, a.DoctorID, a.ID, a.Start, a.End); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, doctor_id, patient_id, start_time, end_time, status, kind, reason, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+appointmentColumns,
			a.ID, a.DoctorID, a.PatientID, a.Start, a.End, a.Status, a.Kind, a.Reason, a.CreatedBy)
		created, err := scanAppointment(row)
		if err != nil {
			return err
		}

		if err := events.InsertTx(ctx, tx, ev); err != nil {
			return err
		}
		*a = *created
		return nil
	})
	return asConflict(err, a.DoctorID, a.Start, a.End)
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, from Status, start, end time.Time, ev events.Event) (*Appointment, error) {
	var (
		updated  *Appointment
		doctorID uuid.UUID
	)

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanAppointment(tx.QueryRow(ctx,
			`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		doctorID = current.DoctorID
		if current.Status != from {
			return ErrStatusChanged
		}

		if err := db.LockKeys(ctx, tx, dayKeys(current.DoctorID, start, end)...); err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, current.DoctorID, id, start, end); err != nil {
			return err
		}

		updated, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET start_time = $2,
			    end_time = $3,
			    status = 'RESCHEDULED',
			    version = version + 1,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+appointmentColumns, id, start, end))
		if err != nil {
			return err
		}

		return events.InsertTx(ctx, tx, ev)
	})
	if err != nil {
		return nil, asConflict(err, doctorID, start, end)
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, ev events.Event) (*Appointment, error) {
	var updated *Appointment

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
			    version = version + 1,
			    updated_at = now()
			WHERE id = $1
			  AND status = $3
			RETURNING `+appointmentColumns, id, to, from))
		if errors.Is(err, ErrAppointmentNotFound) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
				return db.Storage("check appointment", err)
			}
			if exists {
				return ErrStatusChanged
			}
			return ErrAppointmentNotFound
		}
		if err != nil {
			return err
		}

		return events.InsertTx(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) ListPatientsOfDoctor(ctx context.Context, doctorID uuid.UUID) ([]PatientVisits, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.patient_id, p.name, count(*), max(a.start_time)
		FROM appointments a
		JOIN actors p ON p.id = a.patient_id
		WHERE a.doctor_id = $1
		  AND a.status <> 'CANCELLED'
		GROUP BY a.patient_id, p.name
		ORDER BY max(a.start_time) DESC
	`, doctorID)
	if err != nil {
		return nil, db.Storage("list doctor patients", err)
	}
	defer rows.Close()

	var result []PatientVisits
	for rows.Next() {
		var pv PatientVisits
		if err := rows.Scan(&pv.PatientID, &pv.Name, &pv.Appointments, &pv.LastStart); err != nil {
			return nil, db.Storage("scan doctor patient", err)
		}
		result = append(result, pv)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Storage("list doctor patients", err)
	}
	return result, nil
}
