package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/events"
)

// Appointments is the read access the record service needs to check a
// record's linked appointment.
type Appointments interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Directory interface {
	Resolve(ctx context.Context, id uuid.UUID) (access.Actor, error)
}

type Service struct {
	repo         Repository
	appointments Appointments
	directory    Directory
	log          zerolog.Logger
}

func NewService(repo Repository, appointments Appointments, directory Directory, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		directory:    directory,
		log:          log.With().Str("component", "records").Logger(),
	}
}

// AssignPatient links a doctor to a patient so the doctor may write records
// without a prior appointment.
func (s *Service) AssignPatient(ctx context.Context, admin access.Actor, doctorID, patientID uuid.UUID) (*Assignment, error) {
	if err := access.Authorize(admin, access.OpAssignmentWrite, access.Resource{DoctorID: doctorID, PatientID: patientID}); err != nil {
		return nil, err
	}
	if err := s.expectRole(ctx, doctorID, access.RoleDoctor); err != nil {
		return nil, err
	}
	if err := s.expectRole(ctx, patientID, access.RolePatient); err != nil {
		return nil, err
	}

	a := &Assignment{DoctorID: doctorID, PatientID: patientID, AssignedBy: admin.ID}
	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("save assignment: %w", err)
	}

	s.log.Info().Str("doctor_id", doctorID.String()).Str("patient_id", patientID.String()).Msg("patient assigned")
	return a, nil
}

// CreateMedicalRecord stores a record authored by the calling doctor. The
// doctor must be assigned to the patient or hold a confirmed, rescheduled or
// completed appointment with them.
func (s *Service) CreateMedicalRecord(ctx context.Context, doctor access.Actor, in NewRecord) (*MedicalRecord, error) {
	if err := access.Authorize(doctor, access.OpRecordWrite, access.Resource{DoctorID: doctor.ID, PatientID: in.PatientID}); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.expectRole(ctx, in.PatientID, access.RolePatient); err != nil {
		return nil, err
	}

	linked := false
	if in.AppointmentID != nil {
		appt, err := s.appointments.GetAppointmentByID(ctx, *in.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("load linked appointment: %w", err)
		}
		if appt.PatientID != in.PatientID {
			return nil, fmt.Errorf("%w: appointment %s is not with this patient", ErrInvalidRecord, appt.ID)
		}
		if appt.DoctorID != doctor.ID {
			return nil, deny(doctor, "linked appointment belongs to another doctor")
		}
		linked = qualifies(appt.Status)
	}
	if !linked {
		ok, err := s.repo.HasCareRelationship(ctx, doctor.ID, in.PatientID)
		if err != nil {
			return nil, fmt.Errorf("check care relationship: %w", err)
		}
		if !ok {
			return nil, deny(doctor, "no confirmed appointment or assignment with this patient")
		}
	}

	rec := &MedicalRecord{
		ID:            uuid.New(),
		PatientID:     in.PatientID,
		DoctorID:      doctor.ID,
		AppointmentID: in.AppointmentID,
		Diagnosis:     in.Diagnosis,
		Notes:         in.Notes,
		Symptoms:      in.Symptoms,
		Vitals:        in.Vitals,
		FollowUpDate:  in.FollowUpDate,
	}
	ev, err := events.New(events.RecordCreated, rec.ID, map[string]any{
		"record_id":      rec.ID,
		"doctor_id":      rec.DoctorID,
		"patient_id":     rec.PatientID,
		"appointment_id": rec.AppointmentID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateRecord(ctx, rec, ev); err != nil {
		return nil, fmt.Errorf("create medical record: %w", err)
	}

	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("doctor_id", rec.DoctorID.String()).
		Str("patient_id", rec.PatientID.String()).
		Msg("medical record created")
	return rec, nil
}

// AddPrescription appends a prescription to a record. Only the record's author may.
func (s *Service) AddPrescription(ctx context.Context, actor access.Actor, recordID uuid.UUID, p Prescription) (*Prescription, error) {
	rec, err := s.load(ctx, actor, recordID, access.OpPrescriptionWrite)
	if err != nil {
		return nil, err
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	p.Frequency = strings.TrimSpace(p.Frequency)
	p.Duration = strings.TrimSpace(p.Duration)
	p.Instructions = strings.TrimSpace(p.Instructions)

	p.ID = uuid.New()
	p.RecordID = rec.ID
	if err := s.repo.AddPrescription(ctx, &p); err != nil {
		return nil, fmt.Errorf("add prescription: %w", err)
	}

	s.log.Info().Str("record_id", rec.ID.String()).Str("prescription_id", p.ID.String()).Msg("prescription added")
	return &p, nil
}

func (s *Service) GetRecord(ctx context.Context, actor access.Actor, id uuid.UUID) (*MedicalRecord, error) {
	return s.load(ctx, actor, id, access.OpRecordRead)
}

// load fetches a record for op. Records the actor cannot read are reported
// as not found rather than forbidden.
func (s *Service) load(ctx context.Context, actor access.Actor, id uuid.UUID, op access.Operation) (*MedicalRecord, error) {
	if _, err := access.AuthorizeScope(actor, op); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load medical record: %w", err)
	}
	if err := access.Authorize(actor, op, resourceOf(rec)); err != nil {
		if !access.Evaluate(actor, access.OpRecordRead, resourceOf(rec)).Allowed {
			return nil, fmt.Errorf("load medical record: %w", ErrRecordNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// ListRecordsFor returns the records the actor may read: all for admins, the
// authored ones for doctors, the own ones for patients. f narrows further.
func (s *Service) ListRecordsFor(ctx context.Context, actor access.Actor, f ListFilter) ([]MedicalRecord, error) {
	scope, err := access.AuthorizeScope(actor, access.OpRecordRead)
	if err != nil {
		return nil, err
	}
	switch scope {
	case access.ScopeAsDoctor:
		f.DoctorID = &actor.ID
	case access.ScopeAsPatient:
		f.PatientID = &actor.ID
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

	recs, err := s.repo.ListRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	return recs, nil
}

func (s *Service) expectRole(ctx context.Context, id uuid.UUID, role access.Role) error {
	actor, err := s.directory.Resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", strings.ToLower(string(role)), err)
	}
	if actor.Role != role {
		return fmt.Errorf("%w: %s is not a %s", ErrInvalidRecord, id, strings.ToLower(string(role)))
	}
	return nil
}

func qualifies(st appointment.Status) bool {
	return st == appointment.StatusConfirmed || st == appointment.StatusRescheduled || st == appointment.StatusCompleted
}

func resourceOf(rec *MedicalRecord) access.Resource {
	return access.Resource{DoctorID: rec.DoctorID, PatientID: rec.PatientID}
}

func deny(actor access.Actor, reason string) error {
	return &access.ForbiddenError{
		ActorID:   actor.ID,
		Role:      actor.Role,
		Operation: access.OpRecordWrite,
		Reason:    reason,
	}
}
