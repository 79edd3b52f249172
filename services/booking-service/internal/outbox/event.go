package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table in the same
// transaction as the state change it describes. The Kafka topic equals
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	TypeBooked                = "booking.appointment.booked.v1"
	TypeConfirmed             = "booking.appointment.confirmed.v1"
	TypeCompleted             = "booking.appointment.completed.v1"
	TypeCancelled             = "booking.appointment.cancelled.v1"
	TypeRescheduled           = "booking.appointment.rescheduled.v1"
	TypeNeedsManualReschedule = "booking.appointment.needs_manual_reschedule.v1"
)

// Appointment builds an appointment-aggregate event with a JSON payload.
func Appointment(id, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// EventsFunc builds the events for a write once the final row is known.
// Stores persist the returned events atomically with the row.
type EventsFunc func(model.Appointment) ([]Event, error)

// AppointmentPayload is the JSON body shared by every appointment event.
type AppointmentPayload struct {
	BookingID             string         `json:"booking_id"`
	ProviderID            string         `json:"provider_id"`
	StaffID               string         `json:"staff_id,omitempty"`
	ClientID              string         `json:"client_id"`
	ServiceID             string         `json:"service_id"`
	Status                string         `json:"status"`
	PaymentStatus         string         `json:"payment_status"`
	TokenNumber           int            `json:"token_number"`
	ScheduledStart        string         `json:"scheduled_start"`
	ScheduledEnd          string         `json:"scheduled_end"`
	ActualEnd             string         `json:"actual_end,omitempty"`
	NeedsManualReschedule bool           `json:"needs_manual_reschedule,omitempty"`
	Details               map[string]any `json:"details,omitempty"`
}

const wallClockLayout = "2006-01-02T15:04"

func NewAppointmentPayload(a model.Appointment) AppointmentPayload {
	p := AppointmentPayload{
		BookingID:             a.ID,
		ProviderID:            a.ProviderID,
		StaffID:               a.StaffKey(),
		ClientID:              a.ClientID,
		ServiceID:             a.ServiceID,
		Status:                string(a.Status),
		PaymentStatus:         string(a.PaymentStatus),
		TokenNumber:           a.TokenNumber,
		ScheduledStart:        a.ScheduledStart.Format(wallClockLayout),
		ScheduledEnd:          a.ScheduledEnd.Format(wallClockLayout),
		NeedsManualReschedule: a.NeedsManualReschedule,
	}
	if a.ActualEnd != nil {
		p.ActualEnd = a.ActualEnd.Format(wallClockLayout)
	}
	return p
}

// Emit returns an EventsFunc producing a single appointment event of
// eventType. details, when non-nil, is attached to the payload.
func Emit(eventType string, details map[string]any) EventsFunc {
	return func(a model.Appointment) ([]Event, error) {
		p := NewAppointmentPayload(a)
		p.Details = details
		evt, err := Appointment(a.ID, eventType, p)
		if err != nil {
			return nil, err
		}
		return []Event{evt}, nil
	}
}
