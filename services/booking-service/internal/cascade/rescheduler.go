package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

// ErrRescheduleExhausted means no opening was left before the end of the
// business day. The booking is flagged for manual handling.
var ErrRescheduleExhausted = errors.New("no opening left for rescheduled booking")

type Store interface {
	ListProviderDay(ctx context.Context, providerID string, day time.Time) ([]model.Appointment, error)
	Update(ctx context.Context, id string, guard storage.GuardFunc, mutate storage.MutateFunc, events outbox.EventsFunc) (model.Appointment, error)
}

type Mover interface {
	Reschedule(ctx context.Context, id string, newStart time.Time) (model.Appointment, error)
}

type Roster interface {
	booking.Roster
	GetProvider(ctx context.Context, id string) (model.Provider, error)
}

type Shift struct {
	BookingID string
	From      time.Time
	To        time.Time
}

type Result struct {
	Shifted []Shift
	Flagged []string
}

// IDs returns every booking touched by the cascade.
func (r Result) IDs() []string {
	out := make([]string, 0, len(r.Shifted)+len(r.Flagged))
	for _, s := range r.Shifted {
		out = append(out, s.BookingID)
	}
	return append(out, r.Flagged...)
}

// Rescheduler pushes back bookings displaced by an overrun. Every move goes
// through the conflict guard.
type Rescheduler struct {
	store    Store
	mover    Mover
	roster   Roster
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewRescheduler(store Store, mover Mover, roster Roster, notifier notify.Notifier, logger *slog.Logger) *Rescheduler {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Rescheduler{store: store, mover: mover, roster: roster, notifier: notifier, logger: logger}
}

// Cascade handles an appointment whose actual end is past its scheduled end.
// Affected bookings share its staff, are still pending or confirmed, and are
// scheduled to start in [scheduledEnd, actualEnd).
func (r *Rescheduler) Cascade(ctx context.Context, overrun model.Appointment) (Result, error) {
	var res Result
	if overrun.OvertimeMinutes() == 0 {
		return res, nil
	}
	actualEnd := *overrun.ActualEnd
	day := calendar.StartOfDay(overrun.ScheduledStart)

	appts, err := r.store.ListProviderDay(ctx, overrun.ProviderID, day)
	if err != nil {
		return res, err
	}
	var affected []model.Appointment
	for _, a := range appts {
		if a.ID == overrun.ID || a.StaffKey() != overrun.StaffKey() || a.Status.Terminal() {
			continue
		}
		if !a.ScheduledStart.Before(overrun.ScheduledEnd) && a.ScheduledStart.Before(actualEnd) {
			affected = append(affected, a)
		}
	}
	if len(affected) == 0 {
		return res, nil
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i].ScheduledStart.Before(affected[j].ScheduledStart) })

	window, err := booking.BusinessWindow(ctx, r.roster, overrun.ProviderID, day)
	if err != nil {
		return res, err
	}
	provider, err := r.roster.GetProvider(ctx, overrun.ProviderID)
	if err != nil {
		r.logger.Warn("provider lookup failed; provider will not be notified", "provider_id", overrun.ProviderID, "err", err)
	}

	for _, a := range affected {
		moved, err := r.shift(ctx, a, actualEnd, window)
		switch {
		case err == nil:
			res.Shifted = append(res.Shifted, Shift{BookingID: a.ID, From: a.ScheduledStart, To: moved.ScheduledStart})
			r.logger.Info("booking rescheduled after overrun", "booking_id", a.ID, "from", a.ScheduledStart.Format(calendar.ClockLayout), "to", moved.ScheduledStart.Format(calendar.ClockLayout), "overrun_booking_id", overrun.ID)
			r.notifyBoth(ctx, moved, provider.Phone, notify.KindRescheduled, map[string]any{
				"booking_id": a.ID,
				"from":       a.ScheduledStart.Format("2006-01-02 15:04"),
				"to":         moved.ScheduledStart.Format("2006-01-02 15:04"),
			})
		case errors.Is(err, ErrRescheduleExhausted):
			if err := r.flag(ctx, a.ID, overrun.ID); err != nil {
				r.logger.Error("flag for manual reschedule failed", "booking_id", a.ID, "err", err)
				continue
			}
			res.Flagged = append(res.Flagged, a.ID)
			r.logger.Warn("booking needs manual reschedule", "booking_id", a.ID, "overrun_booking_id", overrun.ID)
			r.notifyBoth(ctx, a, provider.Phone, notify.KindManualReschedule, map[string]any{"booking_id": a.ID})
		default:
			r.logger.Error("cascade reschedule failed", "booking_id", a.ID, "err", err)
		}
	}
	return res, nil
}

// shift moves a to the nearest opening at or after notBefore. Candidate
// starts are notBefore and each later end of a booking or break that day.
func (r *Rescheduler) shift(ctx context.Context, a model.Appointment, notBefore time.Time, window calendar.Window) (model.Appointment, error) {
	duration := time.Duration(a.DurationMinutes) * time.Minute
	appts, err := r.store.ListProviderDay(ctx, a.ProviderID, a.ScheduledStart)
	if err != nil {
		return model.Appointment{}, err
	}

	candidates := []time.Time{notBefore}
	for _, other := range appts {
		if end := other.EffectiveEnd(); end.After(notBefore) {
			candidates = append(candidates, end)
		}
	}
	for _, b := range window.Breaks {
		if b.End.After(notBefore) {
			candidates = append(candidates, b.End)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	for _, t := range candidates {
		end := t.Add(duration)
		if !window.Fits(t, end) || staffBusy(appts, a, t, end) {
			continue
		}
		moved, err := r.mover.Reschedule(ctx, a.ID, t)
		if err == nil {
			return moved, nil
		}
		if booking.IsConflict(err) || errors.Is(err, booking.ErrOutsideBusinessHours) {
			continue
		}
		return model.Appointment{}, err
	}
	return model.Appointment{}, fmt.Errorf("%w: booking %s", ErrRescheduleExhausted, a.ID)
}

func (r *Rescheduler) flag(ctx context.Context, id, overrunID string) error {
	_, err := r.store.Update(ctx, id,
		func(current model.Appointment) error {
			if current.Status.Terminal() {
				return &model.TransitionError{From: current.Status, To: current.Status}
			}
			return nil
		},
		func(a *model.Appointment) { a.NeedsManualReschedule = true },
		outbox.Emit(outbox.TypeNeedsManualReschedule, map[string]any{"overrun_booking_id": overrunID}),
	)
	return err
}

func (r *Rescheduler) notifyBoth(ctx context.Context, a model.Appointment, providerPhone, kind string, data map[string]any) {
	notify.Send(ctx, r.notifier, r.logger, a.ClientPhone, kind, data)
	notify.Send(ctx, r.notifier, r.logger, providerPhone, kind, data)
}

// staffBusy reports whether a's staff is taken by some other booking during
// [start, end), honouring actual ends.
func staffBusy(appts []model.Appointment, a model.Appointment, start, end time.Time) bool {
	for _, other := range appts {
		if other.ID == a.ID || other.StaffKey() != a.StaffKey() || !other.Blocking() {
			continue
		}
		if calendar.Overlaps(other.ScheduledStart, other.EffectiveEnd(), start, end) {
			return true
		}
	}
	return false
}
