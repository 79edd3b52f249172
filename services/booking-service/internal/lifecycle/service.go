package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/cascade"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/settlement"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type Store interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	ListProviderDay(ctx context.Context, providerID string, day time.Time) ([]model.Appointment, error)
	Update(ctx context.Context, id string, guard storage.GuardFunc, mutate storage.MutateFunc, events outbox.EventsFunc) (model.Appointment, error)
}

type Committer interface {
	TryCommit(ctx context.Context, in booking.Intent) (model.Appointment, error)
}

type Cascader interface {
	Cascade(ctx context.Context, overrun model.Appointment) (cascade.Result, error)
}

type Settler interface {
	OnCompleted(ctx context.Context, appt model.Appointment) (model.PayoutRecord, error)
	OnCancelled(ctx context.Context, appt model.Appointment, d settlement.Decision) (model.RefundRecord, error)
}

// Service runs the booking state machine. State changes commit first;
// cascade and settlement side effects follow and never roll them back.
type Service struct {
	store    Store
	guard    Committer
	cascader Cascader
	settler  Settler
	policy   settlement.Policy
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

type Deps struct {
	Store    Store
	Guard    Committer
	Cascader Cascader
	Settler  Settler
	Policy   settlement.Policy
	Notifier notify.Notifier
	Logger   *slog.Logger
	// Now returns the provider's wall-clock time.
	Now func() time.Time
}

func NewService(d Deps) *Service {
	if d.Notifier == nil {
		d.Notifier = notify.Noop{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    d.Store,
		guard:    d.Guard,
		cascader: d.Cascader,
		settler:  d.Settler,
		policy:   d.Policy,
		notifier: d.Notifier,
		logger:   d.Logger,
		now:      d.Now,
	}
}

var errUnchanged = errors.New("no change")

// Book commits a new booking. On an idempotent replay the stored booking is
// returned with booking.ErrReplayed.
func (s *Service) Book(ctx context.Context, in booking.Intent) (model.Appointment, error) {
	appt, err := s.guard.TryCommit(ctx, in)
	if err != nil {
		return appt, err
	}
	s.logger.Info("booking committed", "booking_id", appt.ID, "provider_id", appt.ProviderID, "staff_id", appt.StaffKey(), "token", appt.TokenNumber)
	return appt, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListDay(ctx context.Context, providerID string, day time.Time) ([]model.Appointment, error) {
	return s.store.ListProviderDay(ctx, providerID, day)
}

// Confirm records a captured payment and moves a pending booking to
// confirmed. Confirming an already confirmed booking is a no-op.
func (s *Service) Confirm(ctx context.Context, id, paymentReference string) (model.Appointment, error) {
	appt, err := s.store.Update(ctx, id,
		func(current model.Appointment) error {
			if current.Status == model.StatusConfirmed && current.PaymentStatus == model.PaymentPaid {
				return errUnchanged
			}
			return model.CheckTransition(current.Status, model.StatusConfirmed)
		},
		func(a *model.Appointment) {
			a.Status = model.StatusConfirmed
			a.PaymentStatus = model.PaymentPaid
			if paymentReference != "" {
				a.PaymentReference = paymentReference
			}
		},
		outbox.Emit(outbox.TypeConfirmed, nil),
	)
	if errors.Is(err, errUnchanged) {
		return s.store.Get(ctx, id)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	notify.Send(ctx, s.notifier, s.logger, appt.ClientPhone, notify.KindBookingConfirmed, map[string]any{
		"booking_id": appt.ID,
		"token":      appt.TokenNumber,
		"start":      appt.ScheduledStart.Format("2006-01-02 15:04"),
	})
	return appt, nil
}

type CompleteResult struct {
	Appointment     model.Appointment
	OvertimeMinutes int
	Cascaded        []string
	Flagged         []string
}

// Complete records a manual completion. actualEnd defaults to the scheduled
// end. Repeating the call returns the stored result. A booking the sweep
// already completed may still have a later actual end recorded once.
func (s *Service) Complete(ctx context.Context, id string, actualEnd *time.Time) (CompleteResult, error) {
	appt, err := s.store.Update(ctx, id,
		func(current model.Appointment) error {
			if current.Status == model.StatusCompleted {
				if current.CompletionSource == model.CompletedBySweep && actualEnd != nil && actualEnd.After(current.EffectiveEnd()) {
					return nil
				}
				return errUnchanged
			}
			if err := model.CheckTransition(current.Status, model.StatusCompleted); err != nil {
				return err
			}
			if actualEnd != nil && actualEnd.Before(current.ScheduledStart) {
				return fmt.Errorf("%w: actual end %s before start %s", booking.ErrInvalidInterval,
					actualEnd.Format(time.RFC3339), current.ScheduledStart.Format(time.RFC3339))
			}
			return nil
		},
		func(a *model.Appointment) {
			end := a.ScheduledEnd
			if actualEnd != nil {
				end = actualEnd.Truncate(time.Minute)
			}
			a.ActualEnd = &end
			a.Status = model.StatusCompleted
			a.CompletionSource = model.CompletedManually
		},
		func(a model.Appointment) ([]outbox.Event, error) {
			return outbox.Emit(outbox.TypeCompleted, map[string]any{
				"source":           string(model.CompletedManually),
				"overtime_minutes": a.OvertimeMinutes(),
			})(a)
		},
	)
	if errors.Is(err, errUnchanged) {
		stored, err := s.store.Get(ctx, id)
		if err != nil {
			return CompleteResult{}, err
		}
		return CompleteResult{Appointment: stored, OvertimeMinutes: stored.OvertimeMinutes()}, nil
	}
	if err != nil {
		return CompleteResult{}, err
	}

	res := CompleteResult{Appointment: appt, OvertimeMinutes: appt.OvertimeMinutes()}
	s.logger.Info("booking completed", "booking_id", appt.ID, "overtime_minutes", res.OvertimeMinutes)

	if res.OvertimeMinutes > 0 && s.cascader != nil {
		shifted, err := s.cascader.Cascade(ctx, appt)
		if err != nil {
			s.logger.Error("cascade failed", "booking_id", appt.ID, "err", err)
		}
		for _, sh := range shifted.Shifted {
			res.Cascaded = append(res.Cascaded, sh.BookingID)
		}
		res.Flagged = shifted.Flagged
	}
	if s.settler != nil {
		if _, err := s.settler.OnCompleted(ctx, appt); err != nil {
			s.logger.Warn("payout after completion failed", "booking_id", appt.ID, "err", err)
		}
	}
	return res, nil
}

type CancelResult struct {
	Appointment model.Appointment
	Decision    settlement.Decision
	Refund      *model.RefundRecord
}

// Cancel cancels a pending or confirmed booking and settles the refund the
// policy allows. cancelledAt defaults to now. Cancelling twice returns the
// original decision.
func (s *Service) Cancel(ctx context.Context, id string, cancelledAt *time.Time, reason model.CancelReason) (CancelResult, error) {
	if !settlement.ValidReason(reason) {
		return CancelResult{}, fmt.Errorf("%w: unknown cancellation reason %q", booking.ErrInvalidIntent, reason)
	}
	at := s.now()
	if cancelledAt != nil {
		at = *cancelledAt
	}

	appt, err := s.store.Update(ctx, id,
		func(current model.Appointment) error {
			if current.Status == model.StatusCancelled {
				return errUnchanged
			}
			return model.CheckTransition(current.Status, model.StatusCancelled)
		},
		func(a *model.Appointment) {
			a.Status = model.StatusCancelled
			a.CancelledAt = &at
			a.CancelReason = string(reason)
		},
		func(a model.Appointment) ([]outbox.Event, error) {
			d := s.policy.RefundDecision(a, at, reason)
			return outbox.Emit(outbox.TypeCancelled, map[string]any{
				"reason":          string(reason),
				"hours_notice":    d.HoursNotice,
				"refund_eligible": d.Eligible,
			})(a)
		},
	)
	if errors.Is(err, errUnchanged) {
		stored, err := s.store.Get(ctx, id)
		if err != nil {
			return CancelResult{}, err
		}
		return s.storedCancel(ctx, stored), nil
	}
	if err != nil {
		return CancelResult{}, err
	}

	res := CancelResult{Appointment: appt, Decision: s.policy.RefundDecision(appt, at, reason)}
	s.logger.Info("booking cancelled", "booking_id", appt.ID, "reason", reason, "refund_eligible", res.Decision.Eligible)
	if s.settler != nil && res.Decision.Amount != nil {
		rec, err := s.settler.OnCancelled(ctx, appt, res.Decision)
		if err != nil {
			s.logger.Warn("refund after cancellation failed", "booking_id", appt.ID, "err", err)
		}
		if rec.BookingID != "" {
			res.Refund = &rec
		}
		if rec.Status == model.SettlementSucceeded {
			if refreshed, err := s.store.Get(ctx, appt.ID); err == nil {
				res.Appointment = refreshed
			}
		}
	}
	return res, nil
}

func (s *Service) storedCancel(ctx context.Context, appt model.Appointment) CancelResult {
	at := appt.UpdatedAt
	if appt.CancelledAt != nil {
		at = *appt.CancelledAt
	}
	res := CancelResult{Appointment: appt, Decision: s.policy.RefundDecision(appt, at, model.CancelReason(appt.CancelReason))}
	if s.settler != nil && res.Decision.Amount != nil {
		if rec, err := s.settler.OnCancelled(ctx, appt, res.Decision); err == nil && rec.BookingID != "" {
			res.Refund = &rec
		}
	}
	return res
}
