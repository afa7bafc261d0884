package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/events"
)

type Repository interface {
	// SaveAssignment records the relationship; saving an existing pair is a no-op.
	SaveAssignment(ctx context.Context, a *Assignment) error

	// HasCareRelationship reports whether the doctor has an explicit
	// assignment with the patient or a confirmed, rescheduled or completed
	// appointment with them.
	HasCareRelationship(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)

	CreateRecord(ctx context.Context, r *MedicalRecord, ev events.Event) error
	// GetRecord returns the record with its prescriptions.
	GetRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	ListRecords(ctx context.Context, f ListFilter) ([]MedicalRecord, error)

	AddPrescription(ctx context.Context, p *Prescription) error
}
