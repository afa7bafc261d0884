package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AppointmentBooked      Type = "APPOINTMENT_BOOKED"
	AppointmentConfirmed   Type = "APPOINTMENT_CONFIRMED"
	AppointmentRescheduled Type = "APPOINTMENT_RESCHEDULED"
	AppointmentCancelled   Type = "APPOINTMENT_CANCELLED"
	AppointmentCompleted   Type = "APPOINTMENT_COMPLETED"
	RecordCreated          Type = "RECORD_CREATED"
)

// Event is one fact written to the outbox in the same transaction as the
// state change it describes.
type Event struct {
	ID          int64           `json:"id"`
	Type        Type            `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// New builds an unsaved event with payload marshalled to JSON.
func New(t Type, aggregateID uuid.UUID, payload any) (Event, error) {
	ev := Event{Type: t, AggregateID: aggregateID, CreatedAt: time.Now().UTC()}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	ev.Payload = data
	return ev, nil
}
