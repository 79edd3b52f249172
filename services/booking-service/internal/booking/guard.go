package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/shopspring/decimal"
)

// Store is the atomic half of the guard: the conflict check and the write
// must happen in one critical section per provider.
type Store interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	CommitIfFree(ctx context.Context, appt *model.Appointment, rule Rule, events outbox.EventsFunc) error
	MoveIfFree(ctx context.Context, id string, expectVersion int, newStart time.Time, rule Rule, events outbox.EventsFunc) (model.Appointment, error)
}

type Roster interface {
	ListStaff(ctx context.Context, providerID string) ([]model.StaffMember, error)
	ScheduleDay(ctx context.Context, providerID string, weekday int) (model.ProviderScheduleDay, bool, error)
}

// Intent is a client's request for a slot. An empty StaffID, or
// model.DefaultStaffID, books against provider capacity.
type Intent struct {
	ProviderID       string
	StaffID          string
	ClientID         string
	ClientPhone      string
	ServiceID        string
	Start            time.Time
	DurationMinutes  int
	ServicePrice     decimal.Decimal
	PlatformFee      decimal.Decimal
	PaymentMethod    model.PaymentMethod
	PaymentReference string
	IdempotencyKey   string
	// Paid marks a payment captured synchronously; the booking is stored
	// confirmed instead of pending.
	Paid bool
}

type Guard struct {
	store  Store
	roster Roster
	now    func() time.Time
}

// NewGuard builds a guard. now must return the provider's wall-clock time in
// the frame appointments are stored in.
func NewGuard(store Store, roster Roster, now func() time.Time) *Guard {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Guard{store: store, roster: roster, now: now}
}

// TryCommit validates in and persists it unless it would overlap the same
// staff member or exceed provider capacity. A reused idempotency key returns
// the original booking together with ErrReplayed.
func (g *Guard) TryCommit(ctx context.Context, in Intent) (model.Appointment, error) {
	if in.ProviderID == "" || in.ClientID == "" || in.ServiceID == "" {
		return model.Appointment{}, fmt.Errorf("%w: provider, client and service are required", ErrInvalidIntent)
	}
	if in.DurationMinutes <= 0 {
		return model.Appointment{}, invalidInterval("duration must be positive, got %d", in.DurationMinutes)
	}
	if in.ServicePrice.IsNegative() || in.PlatformFee.IsNegative() {
		return model.Appointment{}, fmt.Errorf("%w: negative price", ErrInvalidIntent)
	}
	start := in.Start.Truncate(time.Minute)
	if start.Before(g.now()) {
		return model.Appointment{}, invalidInterval("start %s is in the past", start.Format(time.RFC3339))
	}

	staff, err := g.roster.ListStaff(ctx, in.ProviderID)
	if err != nil {
		return model.Appointment{}, err
	}
	staffID, err := resolveStaff(in.StaffID, staff)
	if err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		ID:               uuid.NewString(),
		ProviderID:       in.ProviderID,
		StaffID:          staffID,
		ClientID:         in.ClientID,
		ClientPhone:      in.ClientPhone,
		ServiceID:        in.ServiceID,
		ScheduledStart:   start,
		DurationMinutes:  in.DurationMinutes,
		ScheduledEnd:     model.EndFor(start, in.DurationMinutes),
		Status:           model.StatusPending,
		PaymentStatus:    model.PaymentPending,
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: in.PaymentReference,
		IdempotencyKey:   in.IdempotencyKey,
		ServicePrice:     in.ServicePrice,
		PlatformFee:      in.PlatformFee,
	}
	if appt.PaymentMethod == "" {
		appt.PaymentMethod = model.PaymentOnline
	}
	if in.Paid {
		appt.Status = model.StatusConfirmed
		appt.PaymentStatus = model.PaymentPaid
	}

	if err := g.checkBusinessHours(ctx, appt.ProviderID, appt.ScheduledStart, appt.ScheduledEnd); err != nil {
		return model.Appointment{}, err
	}
	err = g.store.CommitIfFree(ctx, &appt, Rule{Capacity: model.Capacity(staff)}, outbox.Emit(outbox.TypeBooked, nil))
	if errors.Is(err, ErrReplayed) {
		return appt, err
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Reschedule moves a booking to newStart through the same critical section
// and conflict rule as TryCommit, ignoring the booking itself. Past starts are
// allowed: a cascade may target the instant an overrunning service ended.
func (g *Guard) Reschedule(ctx context.Context, id string, newStart time.Time) (model.Appointment, error) {
	current, err := g.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status.Terminal() {
		return model.Appointment{}, &model.TransitionError{From: current.Status, To: current.Status}
	}
	newStart = newStart.Truncate(time.Minute)
	if err := g.checkBusinessHours(ctx, current.ProviderID, newStart, model.EndFor(newStart, current.DurationMinutes)); err != nil {
		return model.Appointment{}, err
	}
	staff, err := g.roster.ListStaff(ctx, current.ProviderID)
	if err != nil {
		return model.Appointment{}, err
	}

	details := map[string]any{"previous_start": current.ScheduledStart.Format("2006-01-02T15:04")}
	return g.store.MoveIfFree(ctx, id, current.Version, newStart, Rule{Capacity: model.Capacity(staff)}, outbox.Emit(outbox.TypeRescheduled, details))
}

// BusinessWindow loads the provider's window for the calendar day of day.
func BusinessWindow(ctx context.Context, roster Roster, providerID string, day time.Time) (calendar.Window, error) {
	schedule, ok, err := roster.ScheduleDay(ctx, providerID, int(day.Weekday()))
	if err != nil {
		return calendar.Window{}, err
	}
	if !ok {
		return calendar.Window{}, nil
	}
	return calendar.BusinessWindow(day, schedule)
}

func (g *Guard) checkBusinessHours(ctx context.Context, providerID string, start, end time.Time) error {
	w, err := BusinessWindow(ctx, g.roster, providerID, start)
	if err != nil {
		return err
	}
	if !w.Fits(start, end) {
		return fmt.Errorf("%w: %s-%s", ErrOutsideBusinessHours, start.Format("15:04"), end.Format("15:04"))
	}
	return nil
}

func resolveStaff(requested string, staff []model.StaffMember) (*string, error) {
	if requested == "" || requested == model.DefaultStaffID {
		return nil, nil
	}
	for _, s := range model.ActiveStaff(staff) {
		if s.ID == requested {
			id := s.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStaff, requested)
}

// IsConflict reports whether err is a staff or capacity conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
