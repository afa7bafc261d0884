package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	recordColumns = `id, patient_id, doctor_id, appointment_id, diagnosis, notes, symptoms,
	blood_pressure_systolic, blood_pressure_diastolic, temperature, heart_rate, weight, height,
	follow_up_date, created_at`
	prescriptionColumns = `id, medical_record_id, medication_name, dosage, frequency, duration, instructions, created_at`
)

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var (
		r        MedicalRecord
		followUp *time.Time
	)
	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.DoctorID,
		&r.AppointmentID,
		&r.Diagnosis,
		&r.Notes,
		&r.Symptoms,
		&r.Vitals.BloodPressureSystolic,
		&r.Vitals.BloodPressureDiastolic,
		&r.Vitals.Temperature,
		&r.Vitals.HeartRate,
		&r.Vitals.Weight,
		&r.Vitals.Height,
		&followUp,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, db.Storage("scan medical record", err)
	}
	if followUp != nil {
		d := availability.DateOf(*followUp)
		r.FollowUpDate = &d
	}
	return &r, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.RecordID, &p.MedicationName, &p.Dosage, &p.Frequency, &p.Duration, &p.Instructions, &p.CreatedAt)
	if err != nil {
		return nil, db.Storage("scan prescription", err)
	}
	return &p, nil
}

func (r *PgRepository) SaveAssignment(ctx context.Context, a *Assignment) error {
	row := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO care_assignments (doctor_id, patient_id, assigned_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (doctor_id, patient_id) DO NOTHING
			RETURNING doctor_id, patient_id, assigned_by, created_at
		)
		SELECT doctor_id, patient_id, assigned_by, created_at FROM inserted
		UNION ALL
		SELECT doctor_id, patient_id, assigned_by, created_at
		FROM care_assignments
		WHERE doctor_id = $1 AND patient_id = $2
		LIMIT 1
	`, a.DoctorID, a.PatientID, a.AssignedBy)

	if err := row.Scan(&a.DoctorID, &a.PatientID, &a.AssignedBy, &a.CreatedAt); err != nil {
		return db.Storage("save assignment", err)
	}
	return nil
}

func (r *PgRepository) HasCareRelationship(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM care_assignments WHERE doctor_id = $1 AND patient_id = $2
		) OR EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND patient_id = $2
			  AND status IN ('CONFIRMED', 'RESCHEDULED', 'COMPLETED')
		)
	`, doctorID, patientID).Scan(&ok)
	if err != nil {
		return false, db.Storage("check care relationship", err)
	}
	return ok, nil
}

func (r *PgRepository) CreateRecord(ctx context.Context, rec *MedicalRecord, ev events.Event) error {
	var followUp *time.Time
	if rec.FollowUpDate != nil {
		t := rec.FollowUpDate.Time()
		followUp = &t
	}

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		created, err := scanRecord(tx.QueryRow(ctx, `
			INSERT INTO medical_records (id, patient_id, doctor_id, appointment_id, diagnosis, notes, symptoms,
				blood_pressure_systolic, blood_pressure_diastolic, temperature, heart_rate, weight, height, follow_up_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING `+recordColumns,
			rec.ID, rec.PatientID, rec.DoctorID, rec.AppointmentID, rec.Diagnosis, rec.Notes, rec.Symptoms,
			rec.Vitals.BloodPressureSystolic, rec.Vitals.BloodPressureDiastolic, rec.Vitals.Temperature,
			rec.Vitals.HeartRate, rec.Vitals.Weight, rec.Vitals.Height, followUp))
		if err != nil {
			return err
		}
		if err := events.InsertTx(ctx, tx, ev); err != nil {
			return err
		}
		*rec = *created
		return nil
	})
}

func (r *PgRepository) GetRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM medical_records WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE medical_record_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, db.Storage("list prescriptions", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		rec.Prescriptions = append(rec.Prescriptions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Storage("list prescriptions", err)
	}
	return rec, nil
}

func (r *PgRepository) ListRecords(ctx context.Context, f ListFilter) ([]MedicalRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}

	q := `SELECT ` + recordColumns + ` FROM medical_records`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, db.Storage("list medical records", err)
	}
	defer rows.Close()

	var result []MedicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Storage("list medical records", err)
	}
	return result, nil
}

func (r *PgRepository) AddPrescription(ctx context.Context, p *Prescription) error {
	created, err := scanPrescription(r.pool.QueryRow(ctx, `
		INSERT INTO prescriptions (id, medical_record_id, medication_name, dosage, frequency, duration, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+prescriptionColumns,
		p.ID, p.RecordID, p.MedicationName, p.Dosage, p.Frequency, p.Duration, p.Instructions))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrRecordNotFound
		}
		return err
	}
	*p = *created
	return nil
}
