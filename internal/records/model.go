package records

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

var (
	ErrRecordNotFound = errors.New("medical record not found")
	ErrInvalidRecord  = errors.New("invalid medical record")
)

// Vitals are optional measurements taken during the visit.
type Vitals struct {
	BloodPressureSystolic  *int     `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *int     `json:"blood_pressure_diastolic,omitempty"`
	Temperature            *float64 `json:"temperature,omitempty"`
	HeartRate              *int     `json:"heart_rate,omitempty"`
	Weight                 *float64 `json:"weight,omitempty"`
	Height                 *float64 `json:"height,omitempty"`
}

func (v Vitals) Validate() error {
	for name, val := range map[string]*int{
		"blood_pressure_systolic":  v.BloodPressureSystolic,
		"blood_pressure_diastolic": v.BloodPressureDiastolic,
		"heart_rate":               v.HeartRate,
	} {
		if val != nil && *val < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidRecord, name)
		}
	}
	for name, val := range map[string]*float64{
		"temperature": v.Temperature,
		"weight":      v.Weight,
		"height":      v.Height,
	} {
		if val != nil && *val < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidRecord, name)
		}
	}
	return nil
}

// MedicalRecord is written once by its authoring doctor. Only prescriptions
// are appended afterwards.
type MedicalRecord struct {
	ID            uuid.UUID          `json:"id"`
	PatientID     uuid.UUID          `json:"patient_id"`
	DoctorID      uuid.UUID          `json:"doctor_id"`
	AppointmentID *uuid.UUID         `json:"appointment_id,omitempty"`
	Diagnosis     string             `json:"diagnosis"`
	Notes         string             `json:"notes"`
	Symptoms      string             `json:"symptoms,omitempty"`
	Vitals        Vitals             `json:"vitals"`
	FollowUpDate  *availability.Date `json:"follow_up_date,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Prescriptions []Prescription     `json:"prescriptions,omitempty"`
}

type Prescription struct {
	ID             uuid.UUID `json:"id"`
	RecordID       uuid.UUID `json:"medical_record_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Frequency      string    `json:"frequency,omitempty"`
	Duration       string    `json:"duration,omitempty"`
	Instructions   string    `json:"instructions,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (p *Prescription) normalize() error {
	p.MedicationName = strings.TrimSpace(p.MedicationName)
	p.Dosage = strings.TrimSpace(p.Dosage)
	if p.MedicationName == "" {
		return fmt.Errorf("%w: medication_name is required", ErrInvalidRecord)
	}
	if p.Dosage == "" {
		return fmt.Errorf("%w: dosage is required", ErrInvalidRecord)
	}
	return nil
}

// Assignment is an explicit doctor-patient care relationship made by an admin.
type Assignment struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	AssignedBy uuid.UUID `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRecord is what a doctor submits. The author is always the caller.
type NewRecord struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	Diagnosis     string
	Notes         string
	Symptoms      string
	Vitals        Vitals
	FollowUpDate  *availability.Date
}

func (n *NewRecord) normalize() error {
	n.Diagnosis = strings.TrimSpace(n.Diagnosis)
	n.Notes = strings.TrimSpace(n.Notes)
	n.Symptoms = strings.TrimSpace(n.Symptoms)
	if n.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidRecord)
	}
	if n.Diagnosis == "" {
		return fmt.Errorf("%w: diagnosis is required", ErrInvalidRecord)
	}
	if n.Notes == "" {
		return fmt.Errorf("%w: notes are required", ErrInvalidRecord)
	}
	return n.Vitals.Validate()
}

type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Limit     int
	Offset    int
}
