package api

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/identity"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/records"
)

type ActorService interface {
	ActorResolver
	Register(ctx context.Context, role access.Role, name, email string) (*identity.Account, error)
	Approve(ctx context.Context, admin access.Actor, id uuid.UUID) (*identity.Account, error)
	Disable(ctx context.Context, admin access.Actor, id uuid.UUID) (*identity.Account, error)
	List(ctx context.Context, admin access.Actor, f identity.ListFilter) ([]identity.Account, error)
	Stats(ctx context.Context, admin access.Actor) (identity.Counts, error)
}

type AvailabilityService interface {
	AddWindow(ctx context.Context, actor access.Actor, w availability.Window) (*availability.Window, error)
	RemoveWindow(ctx context.Context, actor access.Actor, doctorID, id uuid.UUID) error
	ListWindows(ctx context.Context, actor access.Actor, doctorID uuid.UUID) ([]availability.Window, error)
	AddException(ctx context.Context, actor access.Actor, e availability.Exception) (*availability.Exception, error)
	RemoveException(ctx context.Context, actor access.Actor, doctorID, id uuid.UUID) error
	ListExceptions(ctx context.Context, actor access.Actor, doctorID uuid.UUID, from, to availability.Date) ([]availability.Exception, error)
}

type SchedulingService interface {
	OpenSlots(ctx context.Context, actor access.Actor, doctorID uuid.UUID, from, to availability.Date) (iter.Seq[availability.Slot], error)
	Book(ctx context.Context, actor access.Actor, req appointment.BookRequest) (*appointment.Appointment, error)
	Confirm(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, start time.Time, duration time.Duration) (*appointment.Appointment, error)
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, actor access.Actor, f appointment.ListFilter) ([]appointment.Appointment, error)
	PatientsOf(ctx context.Context, actor access.Actor, doctorID uuid.UUID) ([]appointment.PatientVisits, error)
	Overview(ctx context.Context, actor access.Actor, now time.Time) (*appointment.Overview, error)
}

type RecordService interface {
	AssignPatient(ctx context.Context, admin access.Actor, doctorID, patientID uuid.UUID) (*records.Assignment, error)
	CreateMedicalRecord(ctx context.Context, doctor access.Actor, in records.NewRecord) (*records.MedicalRecord, error)
	AddPrescription(ctx context.Context, actor access.Actor, recordID uuid.UUID, p records.Prescription) (*records.Prescription, error)
	GetRecord(ctx context.Context, actor access.Actor, id uuid.UUID) (*records.MedicalRecord, error)
	ListRecordsFor(ctx context.Context, actor access.Actor, f records.ListFilter) ([]records.MedicalRecord, error)
}

type RouterConfig struct {
	Actors       ActorService
	Availability AvailabilityService
	Scheduling   SchedulingService
	Records      RecordService

	Postgres Pinger
	Redis    Pinger // optional

	Metrics *metrics.Metrics
	Auth    AuthConfig
	Log     zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log, cfg.Metrics))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Post("/actors", registerActorHandler(cfg.Actors))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth, cfg.Actors))

		r.Get("/actors", listActorsHandler(cfg.Actors))
		r.Post("/actors/{id}/approve", approveActorHandler(cfg.Actors))
		r.Post("/actors/{id}/disable", disableActorHandler(cfg.Actors))
		r.Get("/summary", summaryHandler(cfg.Actors, cfg.Scheduling))

		r.Route("/doctors/{id}", func(r chi.Router) {
			r.Get("/availability", listWindowsHandler(cfg.Availability))
			r.Post("/availability", addWindowHandler(cfg.Availability))
			r.Delete("/availability/{windowID}", removeWindowHandler(cfg.Availability))
			r.Get("/exceptions", listExceptionsHandler(cfg.Availability))
			r.Post("/exceptions", addExceptionHandler(cfg.Availability))
			r.Delete("/exceptions/{exceptionID}", removeExceptionHandler(cfg.Availability))
			r.Get("/slots", openSlotsHandler(cfg.Scheduling))
			r.Get("/patients", patientsOfHandler(cfg.Scheduling))
		})

		r.Post("/appointments", bookAppointmentHandler(cfg.Scheduling))
		r.Get("/appointments", listAppointmentsHandler(cfg.Scheduling))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Scheduling))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Scheduling))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Scheduling))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Scheduling))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Scheduling))

		r.Post("/assignments", assignPatientHandler(cfg.Records))
		r.Post("/records", createRecordHandler(cfg.Records))
		r.Get("/records", listRecordsHandler(cfg.Records))
		r.Get("/records/{id}", getRecordHandler(cfg.Records))
		r.Post("/records/{id}/prescriptions", addPrescriptionHandler(cfg.Records))
	})

	return r
}
