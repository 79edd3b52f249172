package storage

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
)

type EventsFunc = outbox.EventsFunc

// GuardFunc vetoes an Update after the row has been locked.
type GuardFunc func(model.Appointment) error

// MutateFunc edits the mutable fields of a locked row. Schedule fields
// (start, duration, end, staff) are ignored; only MoveIfFree changes them.
type MutateFunc func(*model.Appointment)

var ErrDuplicate = errors.New("record already exists")

func buildEvents(fn EventsFunc, appt model.Appointment) ([]outbox.Event, error) {
	if fn == nil {
		return nil, nil
	}
	return fn(appt)
}

// dayBounds returns [midnight, next midnight) of day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

func keepSchedule(dst *model.Appointment, src model.Appointment) {
	dst.ID = src.ID
	dst.ProviderID = src.ProviderID
	dst.StaffID = src.StaffID
	dst.ScheduledStart = src.ScheduledStart
	dst.DurationMinutes = src.DurationMinutes
	dst.ScheduledEnd = src.ScheduledEnd
	dst.TokenNumber = src.TokenNumber
	dst.CreatedAt = src.CreatedAt
}

// RefundOutcome is the result of one refund attempt.
type RefundOutcome struct {
	Status    model.SettlementStatus
	RefundID  string
	LastError string
}

// PayoutOutcome is the result of one payout attempt.
type PayoutOutcome struct {
	Status               model.SettlementStatus
	PayoutID             string
	TransactionReference string
	LastError            string
}
