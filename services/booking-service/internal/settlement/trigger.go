package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type Store interface {
	InsertRefund(ctx context.Context, rec model.RefundRecord) (bool, error)
	GetRefund(ctx context.Context, bookingID string) (model.RefundRecord, error)
	MarkRefund(ctx context.Context, bookingID string, outcome storage.RefundOutcome) (model.RefundRecord, error)
	ListRefunds(ctx context.Context, status model.SettlementStatus, limit int) ([]model.RefundRecord, error)
	InsertPayout(ctx context.Context, rec model.PayoutRecord) (bool, error)
	GetPayout(ctx context.Context, bookingID string) (model.PayoutRecord, error)
	MarkPayout(ctx context.Context, bookingID string, outcome storage.PayoutOutcome) (model.PayoutRecord, error)
	ListPayouts(ctx context.Context, status model.SettlementStatus, limit int) ([]model.PayoutRecord, error)
}

type Providers interface {
	GetProvider(ctx context.Context, id string) (model.Provider, error)
}

type Bookings interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	Update(ctx context.Context, id string, guard storage.GuardFunc, mutate storage.MutateFunc, events storage.EventsFunc) (model.Appointment, error)
}

type Config struct {
	MaxAttempts   int
	RetryInterval time.Duration
	BatchSize     int
	Now           func() time.Time
}

var errNotPaid = errors.New("booking is not in paid state")

// Trigger turns booking lifecycle changes into refund and payout records and
// drives the gateways. The only booking field it writes is the payment status
// after a refund goes through.
type Trigger struct {
	store     Store
	providers Providers
	bookings  Bookings
	refunds   payments.RefundGateway
	payouts   payments.PayoutGateway
	notifier  notify.Notifier
	logger    *slog.Logger
	cfg       Config
}

func NewTrigger(store Store, providers Providers, bookings Bookings, refunds payments.RefundGateway, payouts payments.PayoutGateway, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Trigger {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Trigger{
		store:     store,
		providers: providers,
		bookings:  bookings,
		refunds:   refunds,
		payouts:   payouts,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// OnCancelled records and issues the refund a decision calls for. A second
// call for the same booking is a no-op.
func (t *Trigger) OnCancelled(ctx context.Context, appt model.Appointment, d Decision) (model.RefundRecord, error) {
	if !d.Eligible || d.Amount == nil {
		return model.RefundRecord{}, nil
	}
	cancelledAt := time.Now().UTC()
	if appt.CancelledAt != nil {
		cancelledAt = *appt.CancelledAt
	}
	rec := model.RefundRecord{
		BookingID:   appt.ID,
		PaymentID:   appt.PaymentReference,
		Amount:      *d.Amount,
		Reason:      d.Reason,
		Status:      model.SettlementPending,
		HoursNotice: d.HoursNotice,
		CancelledAt: cancelledAt,
	}
	inserted, err := t.store.InsertRefund(ctx, rec)
	if err != nil {
		return model.RefundRecord{}, &Failure{Op: "refund", BookingID: appt.ID, Err: err}
	}
	if !inserted {
		return t.store.GetRefund(ctx, appt.ID)
	}
	return t.refund(ctx, rec, appt.ClientPhone)
}

func (t *Trigger) refund(ctx context.Context, rec model.RefundRecord, phone string) (model.RefundRecord, error) {
	res, err := t.refunds.RefundPayment(ctx, rec.PaymentID, rec.Amount, rec.BookingID)
	if err != nil {
		updated, markErr := t.store.MarkRefund(ctx, rec.BookingID, storage.RefundOutcome{Status: model.SettlementFailed, LastError: err.Error()})
		if markErr != nil {
			t.logger.Error("refund status update failed", "booking_id", rec.BookingID, "err", markErr)
			updated = rec
		}
		t.logger.Warn("refund failed", "booking_id", rec.BookingID, "attempts", updated.Attempts, "err", err)
		return updated, &Failure{Op: "refund", BookingID: rec.BookingID, Err: err}
	}
	updated, err := t.store.MarkRefund(ctx, rec.BookingID, storage.RefundOutcome{Status: model.SettlementSucceeded, RefundID: res.RefundID})
	if err != nil {
		return rec, &Failure{Op: "refund", BookingID: rec.BookingID, Err: err}
	}
	t.logger.Info("refund issued", "booking_id", rec.BookingID, "refund_id", res.RefundID, "amount", rec.Amount.StringFixed(2))
	t.markRefunded(ctx, rec.BookingID)
	notify.Send(ctx, t.notifier, t.logger, phone, notify.KindRefundInitiated, map[string]any{
		"booking_id": rec.BookingID,
		"amount":     rec.Amount.StringFixed(2),
	})
	return updated, nil
}

// OnCompleted pays the provider the service price for a booking paid online.
// Records are unique per booking, so the sweep and manual completion can both
// call it safely.
func (t *Trigger) OnCompleted(ctx context.Context, appt model.Appointment) (model.PayoutRecord, error) {
	if appt.Status != model.StatusCompleted || !appt.PaidOnline() {
		return model.PayoutRecord{}, nil
	}
	rec := model.PayoutRecord{
		ProviderID:     appt.ProviderID,
		BookingID:      appt.ID,
		ProviderAmount: appt.ServicePrice,
		PlatformFee:    appt.PlatformFee,
		Status:         model.SettlementPending,
	}
	inserted, err := t.store.InsertPayout(ctx, rec)
	if err != nil {
		return model.PayoutRecord{}, &Failure{Op: "payout", BookingID: appt.ID, Err: err}
	}
	if !inserted {
		return t.store.GetPayout(ctx, appt.ID)
	}
	return t.payout(ctx, rec)
}

func (t *Trigger) payout(ctx context.Context, rec model.PayoutRecord) (model.PayoutRecord, error) {
	provider, err := t.providers.GetProvider(ctx, rec.ProviderID)
	if err == nil {
		var res payments.PayoutResult
		res, err = t.payouts.SendPayout(ctx, provider.BankAccount, rec.ProviderAmount, rec.BookingID)
		if err == nil {
			updated, markErr := t.store.MarkPayout(ctx, rec.BookingID, storage.PayoutOutcome{
				Status:               model.SettlementSucceeded,
				PayoutID:             res.PayoutID,
				TransactionReference: res.UTR,
			})
			if markErr != nil {
				return rec, &Failure{Op: "payout", BookingID: rec.BookingID, Err: markErr}
			}
			t.logger.Info("payout sent", "booking_id", rec.BookingID, "payout_id", res.PayoutID, "amount", rec.ProviderAmount.StringFixed(2))
			notify.Send(ctx, t.notifier, t.logger, provider.Phone, notify.KindPayoutSent, map[string]any{
				"booking_id": rec.BookingID,
				"amount":     rec.ProviderAmount.StringFixed(2),
				"utr":        res.UTR,
			})
			return updated, nil
		}
	}

	updated, markErr := t.store.MarkPayout(ctx, rec.BookingID, storage.PayoutOutcome{Status: model.SettlementFailed, LastError: err.Error()})
	if markErr != nil {
		t.logger.Error("payout status update failed", "booking_id", rec.BookingID, "err", markErr)
		updated = rec
	}
	t.logger.Warn("payout failed", "booking_id", rec.BookingID, "attempts", updated.Attempts, "err", err)
	return updated, &Failure{Op: "payout", BookingID: rec.BookingID, Err: err}
}

func (t *Trigger) markRefunded(ctx context.Context, bookingID string) {
	_, err := t.bookings.Update(ctx, bookingID,
		func(a model.Appointment) error {
			if a.PaymentStatus != model.PaymentPaid {
				return errNotPaid
			}
			return nil
		},
		func(a *model.Appointment) { a.PaymentStatus = model.PaymentRefunded },
		nil,
	)
	if err != nil && !errors.Is(err, errNotPaid) {
		t.logger.Error("payment status update failed", "booking_id", bookingID, "err", err)
	}
}

// RetryReport summarises one pass over failed settlements.
type RetryReport struct {
	Retried   int
	Succeeded int
	GaveUp    int
}

// RetryFailed attempts every failed refund and payout again until it succeeds
// or reaches MaxAttempts. Records left pending for longer than RetryInterval
// never reached the gateway and are retried too.
func (t *Trigger) RetryFailed(ctx context.Context) (RetryReport, error) {
	var report RetryReport

	refunds, payouts, err := t.unsettled(ctx, t.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	for _, rec := range refunds {
		if rec.Attempts >= t.cfg.MaxAttempts {
			report.GaveUp++
			continue
		}
		report.Retried++
		phone := ""
		if appt, err := t.bookings.Get(ctx, rec.BookingID); err == nil {
			phone = appt.ClientPhone
		}
		if _, err := t.refund(ctx, rec, phone); err == nil {
			report.Succeeded++
		}
	}

	for _, rec := range payouts {
		if rec.Attempts >= t.cfg.MaxAttempts {
			report.GaveUp++
			continue
		}
		report.Retried++
		if _, err := t.payout(ctx, rec); err == nil {
			report.Succeeded++
		}
	}
	return report, nil
}

// Failed lists failed and stuck refunds and payouts for the operator view.
func (t *Trigger) Failed(ctx context.Context, limit int) ([]model.RefundRecord, []model.PayoutRecord, error) {
	return t.unsettled(ctx, limit)
}

// unsettled returns failed records plus pending ones older than RetryInterval,
// at most limit of each kind.
func (t *Trigger) unsettled(ctx context.Context, limit int) ([]model.RefundRecord, []model.PayoutRecord, error) {
	cutoff := t.cfg.Now().Add(-t.cfg.RetryInterval)

	refunds, err := t.store.ListRefunds(ctx, model.SettlementFailed, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list failed refunds: %w", err)
	}
	pendingRefunds, err := t.store.ListRefunds(ctx, model.SettlementPending, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list pending refunds: %w", err)
	}
	for _, rec := range pendingRefunds {
		if (limit <= 0 || len(refunds) < limit) && rec.UpdatedAt.Before(cutoff) {
			refunds = append(refunds, rec)
		}
	}

	payouts, err := t.store.ListPayouts(ctx, model.SettlementFailed, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list failed payouts: %w", err)
	}
	pendingPayouts, err := t.store.ListPayouts(ctx, model.SettlementPending, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list pending payouts: %w", err)
	}
	for _, rec := range pendingPayouts {
		if (limit <= 0 || len(payouts) < limit) && rec.UpdatedAt.Before(cutoff) {
			payouts = append(payouts, rec)
		}
	}
	return refunds, payouts, nil
}

// Run retries failed settlements every RetryInterval until ctx is done.
func (t *Trigger) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := t.RetryFailed(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Error("settlement retry failed", "err", err)
				continue
			}
			if report.Retried > 0 {
				t.logger.Info("settlement retry pass", "retried", report.Retried, "succeeded", report.Succeeded, "gave_up", report.GaveUp)
			}
		}
	}
}
