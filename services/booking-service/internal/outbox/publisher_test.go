package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func TestToMessage(t *testing.T) {
	msg := ToMessage(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   TypeRescheduled,
		Payload:     []byte(`{"booking_id":"appt-1"}`),
	})
	if msg.Topic != TypeRescheduled {
		t.Fatalf("unexpected topic %s", msg.Topic)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected key %s", msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != TypeRescheduled {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestAppointmentEvent(t *testing.T) {
	evt, err := Appointment("appt-9", TypeBooked, map[string]any{"booking_id": "appt-9"})
	if err != nil {
		t.Fatalf("Appointment: %v", err)
	}
	if evt.AggregateType != "appointment" || evt.AggregateID != "appt-9" || evt.EventType != TypeBooked {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	if string(evt.Payload) != `{"booking_id":"appt-9"}` {
		t.Fatalf("unexpected payload %s", evt.Payload)
	}
}

func TestEmitCarriesAppointmentState(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	staff := "s1"
	appt := model.Appointment{
		ID:             "appt-3",
		ProviderID:     "p1",
		StaffID:        &staff,
		Status:         model.StatusPending,
		TokenNumber:    4,
		ScheduledStart: start,
		ScheduledEnd:   model.EndFor(start, 45),
	}
	evts, err := Emit(TypeRescheduled, map[string]any{"previous_start": "2026-03-02T09:30"})(appt)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one event, got %d", len(evts))
	}
	var p AppointmentPayload
	if err := json.Unmarshal(evts[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.StaffID != "s1" || p.ScheduledEnd != "2026-03-02T10:45" || p.TokenNumber != 4 {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.Details["previous_start"] != "2026-03-02T09:30" {
		t.Fatalf("details not carried: %+v", p.Details)
	}
}
