package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/identity"
	"github.com/hackgods/clinic-scheduling/internal/records"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type RegisterActorRequest struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ActorResponse struct {
	ID         uuid.UUID  `json:"id"`
	Role       string     `json:"role"`
	Name       string     `json:"name"`
	Email      *string    `json:"email,omitempty"`
	Approved   bool       `json:"approved"`
	Disabled   bool       `json:"disabled"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func actorResponse(a *identity.Account) ActorResponse {
	return ActorResponse{
		ID:         a.ID,
		Role:       string(a.Role),
		Name:       a.Name,
		Email:      a.Email,
		Approved:   a.Approved,
		Disabled:   a.Disabled,
		ApprovedAt: a.ApprovedAt,
		CreatedAt:  a.CreatedAt,
	}
}

// Times of day travel as "HH:MM" in the facility time zone.
type WindowRequest struct {
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type WindowResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Weekday   int       `json:"weekday"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

func windowResponse(w availability.Window) WindowResponse {
	return WindowResponse{
		ID:        w.ID,
		DoctorID:  w.DoctorID,
		Weekday:   int(w.Weekday),
		StartTime: formatClock(w.StartMinute),
		EndTime:   formatClock(w.EndMinute),
	}
}

type ExceptionRequest struct {
	Date      availability.Date `json:"date"`
	Kind      string            `json:"kind"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Reason    string            `json:"reason"`
}

type ExceptionResponse struct {
	ID        uuid.UUID         `json:"id"`
	DoctorID  uuid.UUID         `json:"doctor_id"`
	Date      availability.Date `json:"date"`
	Kind      string            `json:"kind"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Reason    string            `json:"reason,omitempty"`
}

func exceptionResponse(e availability.Exception) ExceptionResponse {
	return ExceptionResponse{
		ID:        e.ID,
		DoctorID:  e.DoctorID,
		Date:      e.Date,
		Kind:      string(e.Kind),
		StartTime: formatClock(e.StartMinute),
		EndTime:   formatClock(e.EndMinute),
		Reason:    e.Reason,
	}
}

type SlotsResponse struct {
	DoctorID uuid.UUID           `json:"doctor_id"`
	From     availability.Date   `json:"from"`
	To       availability.Date   `json:"to"`
	Slots    []availability.Slot `json:"slots"`
}

// SummaryResponse is the admin dashboard.
type SummaryResponse struct {
	Doctors            int                       `json:"total_doctors"`
	Patients           int                       `json:"total_patients"`
	PendingApprovals   int                       `json:"pending_approvals"`
	TodayAppointments  int                       `json:"today_appointments"`
	RecentAppointments []appointment.Appointment `json:"recent_appointments"`
}

type BookAppointmentRequest struct {
	DoctorID        string    `json:"doctor_id"`
	PatientID       string    `json:"patient_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Kind            string    `json:"kind"`
	Reason          string    `json:"reason"`
}

type RescheduleRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

type AssignmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
}

type RecordRequest struct {
	PatientID     string             `json:"patient_id"`
	AppointmentID *uuid.UUID         `json:"appointment_id"`
	Diagnosis     string             `json:"diagnosis"`
	Notes         string             `json:"notes"`
	Symptoms      string             `json:"symptoms"`
	Vitals        records.Vitals     `json:"vitals"`
	FollowUpDate  *availability.Date `json:"follow_up_date"`
}

type PrescriptionRequest struct {
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
	Instructions   string `json:"instructions"`
}

// parseClock turns "HH:MM" into minutes since midnight. "24:00" is accepted
// as the end of the day.
func parseClock(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
