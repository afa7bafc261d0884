package appointment

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const maxDuration = 8 * time.Hour

// Calendar is the availability the engine validates slots against.
type Calendar interface {
	Snapshot(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) (availability.Schedule, error)
	Location() *time.Location
	SlotLength() time.Duration
}

// Directory resolves actor ids to their current role and approval.
type Directory interface {
	Resolve(ctx context.Context, id uuid.UUID) (access.Actor, error)
}

type Service struct {
	repo      Repository
	calendar  Calendar
	directory Directory
	locker    redisclient.Locker
	metrics   *metrics.Metrics
	cfg       config.Config
	log       zerolog.Logger
}

func NewService(
	repo Repository,
	calendar Calendar,
	directory Directory,
	locker redisclient.Locker,
	m *metrics.Metrics,
	cfg config.Config,
	log zerolog.Logger,
) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	return &Service{
		repo:      repo,
		calendar:  calendar,
		directory: directory,
		locker:    locker,
		metrics:   m,
		cfg:       cfg,
		log:       log.With().Str("component", "scheduling").Logger(),
	}
}

// OpenSlots returns the doctor's open slots from one date through another
// (inclusive). The sequence reflects the appointments at call time only.
func (s *Service) OpenSlots(ctx context.Context, actor access.Actor, doctorID uuid.UUID, from, to availability.Date) (iter.Seq[availability.Slot], error) {
	if err := access.Authorize(actor, access.OpAvailabilityRead, access.Resource{DoctorID: doctorID}); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", availability.ErrInvalidRange)
	}
	if s.cfg.MaxRangeDays > 0 && from.DaysUntil(to) >= s.cfg.MaxRangeDays {
		return nil, fmt.Errorf("%w: at most %d days per query", availability.ErrInvalidRange, s.cfg.MaxRangeDays)
	}

	sched, err := s.calendar.Snapshot(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	loc := s.calendar.Location()
	booked, err := s.repo.ListActiveForDoctor(ctx, doctorID, from.At(0, loc), to.AddDays(1).At(0, loc))
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	intervals := make([]availability.Interval, 0, len(booked))
	for _, a := range booked {
		intervals = append(intervals, a.Interval())
	}

	return sched.OpenSlots(from, to, intervals), nil
}

// Book creates an appointment. Patients get PENDING, doctors and admins CONFIRMED.
func (s *Service) Book(ctx context.Context, actor access.Actor, req BookRequest) (*Appointment, error) {
	appt, err := s.book(ctx, actor, req)
	s.metrics.Booking(outcome(err))
	return appt, err
}

func (s *Service) book(ctx context.Context, actor access.Actor, req BookRequest) (*Appointment, error) {
	if err := access.Authorize(actor, access.OpAppointmentBook, access.Resource{DoctorID: req.DoctorID, PatientID: req.PatientID}); err != nil {
		return nil, err
	}

	if req.Kind == "" {
		req.Kind = KindOPD
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	if err := s.checkParties(ctx, req.DoctorID, req.PatientID); err != nil {
		return nil, err
	}

	slot, err := s.slotFor(req.Start, req.Duration)
	if err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, req.DoctorID, slot); err != nil {
		return nil, err
	}

	status := StatusConfirmed
	if actor.Role == access.RolePatient {
		status = StatusPending
	}
	appt := &Appointment{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Start:     slot.Start,
		End:       slot.End,
		Status:    status,
		Kind:      req.Kind,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedBy: actor.ID,
	}
	ev, err := events.New(events.AppointmentBooked, appt.ID, payloadOf(*appt, actor))
	if err != nil {
		return nil, err
	}

	err = s.withSlotLock(ctx, appt.DoctorID, slot, func(lockCtx context.Context) error {
		return s.repo.CreateAppointment(lockCtx, appt, ev)
	})
	if err != nil {
		return nil, s.storeErr("book appointment", err)
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("patient_id", appt.PatientID.String()).
		Time("start", appt.Start).
		Str("status", string(appt.Status)).
		Msg("appointment booked")
	return appt, nil
}

// Confirm moves a PENDING appointment to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, access.OpAppointmentConfirm, StatusConfirmed, events.AppointmentConfirmed)
}

// Complete ends a CONFIRMED or RESCHEDULED appointment. Billing listens for its event.
func (s *Service) Complete(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, access.OpAppointmentComplete, StatusCompleted, events.AppointmentCompleted)
}

// Cancel is idempotent: cancelling a CANCELLED appointment returns it unchanged
// and emits nothing.
func (s *Service) Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id, access.OpAppointmentCancel)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return appt, nil
	}
	return s.apply(ctx, actor, appt, StatusCancelled, events.AppointmentCancelled)
}

// Reschedule moves an appointment to a new slot of the same doctor. The
// appointment's own interval does not count as a conflict.
func (s *Service) Reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, start time.Time, duration time.Duration) (*Appointment, error) {
	appt, err := s.reschedule(ctx, actor, id, start, duration)
	s.metrics.Booking(outcome(err))
	return appt, err
}

func (s *Service) reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, start time.Time, duration time.Duration) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id, access.OpAppointmentReschedule)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransition(StatusRescheduled) {
		return nil, &StateError{ID: appt.ID, Current: appt.Status, Requested: StatusRescheduled}
	}

	if duration == 0 {
		duration = appt.End.Sub(appt.Start)
	}
	slot, err := s.slotFor(start, duration)
	if err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, appt.DoctorID, slot); err != nil {
		return nil, err
	}

	moved := *appt
	moved.Start, moved.End, moved.Status = slot.Start, slot.End, StatusRescheduled
	payload := payloadOf(moved, actor)
	payload["previous_start"] = appt.Start
	payload["previous_end"] = appt.End
	ev, err := events.New(events.AppointmentRescheduled, appt.ID, payload)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.withSlotLock(ctx, appt.DoctorID, slot, func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.RescheduleAppointment(lockCtx, appt.ID, appt.Status, slot.Start, slot.End, ev)
		return err
	})
	if errors.Is(err, ErrStatusChanged) {
		return s.lostRace(ctx, appt.ID, StatusRescheduled)
	}
	if err != nil {
		return nil, s.storeErr("reschedule appointment", err)
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Time("from", appt.Start).
		Time("to", updated.Start).
		Msg("appointment rescheduled")
	return updated, nil
}

// Get returns one appointment the actor may read.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, actor, id, access.OpAppointmentRead)
}

// List returns appointments narrowed to what the actor may read.
func (s *Service) List(ctx context.Context, actor access.Actor, f ListFilter) ([]Appointment, error) {
	f, err := scoped(actor, f)
	if err != nil {
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

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// Overview is the dashboard view of the appointments an actor may read.
type Overview struct {
	Today  int           // appointments on the facility-local day of now
	Recent []Appointment // latest by start time, newest first
}

const overviewRecent = 10

// Overview counts today's appointments and returns the most recent ones,
// scoped like List.
func (s *Service) Overview(ctx context.Context, actor access.Actor, now time.Time) (*Overview, error) {
	base, err := scoped(actor, ListFilter{})
	if err != nil {
		return nil, err
	}

	loc := s.calendar.Location()
	day := availability.DateOf(now.In(loc))
	from, to := day.At(0, loc), day.AddDays(1).At(0, loc)

	today := base
	today.From, today.To = &from, &to
	n, err := s.repo.CountAppointments(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}

	recent := base
	recent.Limit = overviewRecent
	appts, err := s.repo.ListAppointments(ctx, recent)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return &Overview{Today: n, Recent: appts}, nil
}

// scoped narrows f to what the actor may read.
func scoped(actor access.Actor, f ListFilter) (ListFilter, error) {
	scope, err := access.AuthorizeScope(actor, access.OpAppointmentRead)
	if err != nil {
		return f, err
	}
	switch scope {
	case access.ScopeAsDoctor:
		f.DoctorID = &actor.ID
	case access.ScopeAsPatient:
		f.PatientID = &actor.ID
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, f.Status)
	}
	return f, nil
}

// PatientsOf lists the patients the doctor has active or past appointments with.
func (s *Service) PatientsOf(ctx context.Context, actor access.Actor, doctorID uuid.UUID) ([]PatientVisits, error) {
	if err := access.Authorize(actor, access.OpAppointmentRead, access.Resource{DoctorID: doctorID}); err != nil {
		return nil, err
	}
	patients, err := s.repo.ListPatientsOfDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list patients of doctor: %w", err)
	}
	return patients, nil
}

// load fetches an appointment for op. Appointments the actor cannot even read
// are reported as not found, so ids cannot be enumerated through 403 vs 404.
func (s *Service) load(ctx context.Context, actor access.Actor, id uuid.UUID, op access.Operation) (*Appointment, error) {
	if _, err := access.AuthorizeScope(actor, op); err != nil {
		return nil, err
	}
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := access.Authorize(actor, op, appt.Resource()); err != nil {
		if !access.Evaluate(actor, access.OpAppointmentRead, appt.Resource()).Allowed {
			return nil, fmt.Errorf("load appointment: %w", ErrAppointmentNotFound)
		}
		return nil, err
	}
	return appt, nil
}

func (s *Service) transition(ctx context.Context, actor access.Actor, id uuid.UUID, op access.Operation, to Status, evType events.Type) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id, op)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, appt, to, evType)
}

func (s *Service) apply(ctx context.Context, actor access.Actor, appt *Appointment, to Status, evType events.Type) (*Appointment, error) {
	if !appt.Status.CanTransition(to) {
		return nil, &StateError{ID: appt.ID, Current: appt.Status, Requested: to}
	}

	next := *appt
	next.Status = to
	payload := payloadOf(next, actor)
	payload["previous_status"] = appt.Status
	ev, err := events.New(evType, appt.ID, payload)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to, ev)
	if errors.Is(err, ErrStatusChanged) {
		return s.lostRace(ctx, appt.ID, to)
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("actor_id", actor.ID.String()).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")
	return updated, nil
}

// lostRace re-reads an appointment whose compare-and-set failed and reports
// the state it is now in. Cancelling something a concurrent request already
// cancelled still succeeds.
func (s *Service) lostRace(ctx context.Context, id uuid.UUID, requested Status) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload appointment: %w", err)
	}
	if requested == StatusCancelled && current.Status == StatusCancelled {
		return current, nil
	}
	return nil, &StateError{ID: id, Current: current.Status, Requested: requested}
}

func (s *Service) checkParties(ctx context.Context, doctorID, patientID uuid.UUID) error {
	doctor, err := s.directory.Resolve(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("resolve doctor: %w", err)
	}
	if doctor.Role != access.RoleDoctor {
		return fmt.Errorf("%w: %s is not a doctor", ErrInvalidRequest, doctorID)
	}
	if !doctor.Active() {
		return fmt.Errorf("%w: doctor %s is not accepting appointments", ErrInvalidRequest, doctorID)
	}

	patient, err := s.directory.Resolve(ctx, patientID)
	if err != nil {
		return fmt.Errorf("resolve patient: %w", err)
	}
	if patient.Role != access.RolePatient {
		return fmt.Errorf("%w: %s is not a patient", ErrInvalidRequest, patientID)
	}
	if !patient.Active() {
		return fmt.Errorf("%w: patient %s is not active", ErrInvalidRequest, patientID)
	}
	return nil
}

func (s *Service) slotFor(start time.Time, duration time.Duration) (availability.Interval, error) {
	if duration == 0 {
		duration = s.calendar.SlotLength()
	}
	slot := availability.Interval{Start: start, End: start.Add(duration)}

	switch {
	case start.IsZero():
		return slot, &InvalidSlotError{Start: start, End: slot.End, Reason: "start is required"}
	case duration < 0 || duration > maxDuration:
		return slot, &InvalidSlotError{Start: start, End: slot.End, Reason: fmt.Sprintf("duration must be within 0-%s", maxDuration)}
	case duration%time.Minute != 0 || start.Truncate(time.Minute) != start:
		return slot, &InvalidSlotError{Start: start, End: slot.End, Reason: "slot must be whole minutes"}
	}
	return slot, nil
}

// checkAvailable verifies the slot against availability without bookings.
// Overlap with other appointments is decided in the store transaction.
func (s *Service) checkAvailable(ctx context.Context, doctorID uuid.UUID, slot availability.Interval) error {
	loc := s.calendar.Location()
	day := availability.DateOf(slot.Start.In(loc))

	sched, err := s.calendar.Snapshot(ctx, doctorID, day, day)
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}
	if !sched.Bookable(slot) {
		return &InvalidSlotError{Start: slot.Start, End: slot.End, Reason: "not an open slot in the doctor's availability"}
	}
	return nil
}

func (s *Service) withSlotLock(ctx context.Context, doctorID uuid.UUID, slot availability.Interval, fn func(context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, doctorID, slot.Start, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return &ConflictError{DoctorID: doctorID, Start: slot.Start, End: slot.End}
	}
	return err
}

func (s *Service) storeErr(op string, err error) error {
	var (
		ce *ConflictError
		se *StateError
	)
	if errors.As(err, &ce) || errors.As(err, &se) || errors.Is(err, ErrAppointmentNotFound) {
		return err
	}
	s.log.Error().Err(err).Str("op", op).Msg("store failure")
	return fmt.Errorf("%s: %w", op, err)
}

func payloadOf(a Appointment, actor access.Actor) map[string]any {
	return map[string]any{
		"appointment_id":  a.ID,
		"doctor_id":       a.DoctorID,
		"patient_id":      a.PatientID,
		"scheduled_start": a.Start,
		"scheduled_end":   a.End,
		"status":          a.Status,
		"kind":            a.Kind,
		"actor_id":        actor.ID,
		"actor_role":      actor.Role,
	}
}

func outcome(err error) string {
	var (
		fe *access.ForbiddenError
		ce *ConflictError
		ie *InvalidSlotError
	)
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.As(err, &fe):
		return metrics.OutcomeForbidden
	case errors.As(err, &ce):
		return metrics.OutcomeConflict
	case errors.As(err, &ie):
		return metrics.OutcomeInvalidSlot
	}
	return metrics.OutcomeError
}
