package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

var start = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func paidAppt() model.Appointment {
	return model.Appointment{
		ID:               "b1",
		ProviderID:       "p1",
		ClientPhone:      "+15550100",
		ScheduledStart:   start,
		DurationMinutes:  30,
		ScheduledEnd:     model.EndFor(start, 30),
		Status:           model.StatusConfirmed,
		PaymentStatus:    model.PaymentPaid,
		PaymentMethod:    model.PaymentOnline,
		PaymentReference: "pi_123",
		ServicePrice:     decimal.RequireFromString("40.00"),
		PlatformFee:      decimal.RequireFromString("2.50"),
	}
}

func TestRefundDecisionBoundary(t *testing.T) {
	p := DefaultPolicy()
	appt := paidAppt()

	d := p.RefundDecision(appt, start.Add(-60*time.Minute), model.ReasonClientCancelled)
	if !d.Eligible || d.HoursNotice != 1 {
		t.Fatalf("60 minutes notice should be eligible, got %+v", d)
	}
	if d.Amount == nil || !d.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Fatalf("expected refund of price plus fee, got %v", d.Amount)
	}

	d = p.RefundDecision(appt, start.Add(-59*time.Minute), model.ReasonClientCancelled)
	if d.Eligible || d.Amount != nil {
		t.Fatalf("59 minutes notice should not be eligible, got %+v", d)
	}
}

func TestRefundDecisionCarveOuts(t *testing.T) {
	p := Policy{ExcessiveWait: 10 * time.Minute}
	appt := paidAppt()

	cases := []struct {
		name     string
		at       time.Time
		reason   model.CancelReason
		eligible bool
	}{
		{"provider cancels 10 minutes before", start.Add(-10 * time.Minute), model.ReasonProviderCancelled, true},
		{"client waited past threshold", start.Add(12 * time.Minute), model.ReasonExcessiveWait, true},
		{"client waited exactly threshold", start.Add(10 * time.Minute), model.ReasonExcessiveWait, true},
		{"client waited too little", start.Add(5 * time.Minute), model.ReasonExcessiveWait, false},
		{"late client cancellation", start.Add(-5 * time.Minute), model.ReasonClientCancelled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if d := p.RefundDecision(appt, tc.at, tc.reason); d.Eligible != tc.eligible {
				t.Fatalf("expected eligible=%v, got %+v", tc.eligible, d)
			}
		})
	}

	cash := appt
	cash.PaymentMethod = model.PaymentCash
	if d := p.RefundDecision(cash, start.Add(-2*time.Hour), model.ReasonClientCancelled); !d.Eligible || d.Amount != nil {
		t.Fatalf("eligible cash booking should carry no amount, got %+v", d)
	}
}

type fakeGateway struct {
	mu       sync.Mutex
	fail     error
	refunds  int
	payouts  int
	lastDest string
}

func (g *fakeGateway) RefundPayment(_ context.Context, ref string, _ decimal.Decimal, key string) (payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds++
	if g.fail != nil {
		return payments.RefundResult{}, g.fail
	}
	return payments.RefundResult{RefundID: "re_" + key, Status: "succeeded"}, nil
}

func (g *fakeGateway) SendPayout(_ context.Context, dest string, _ decimal.Decimal, key string) (payments.PayoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payouts++
	g.lastDest = dest
	if g.fail != nil {
		return payments.PayoutResult{}, g.fail
	}
	return payments.PayoutResult{PayoutID: "tr_" + key, UTR: "utr_" + key}, nil
}

func newTrigger(gw *fakeGateway) (*Trigger, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	store.PutProvider(model.Provider{ID: "p1", Name: "Salon", BankAccount: "acct_p1"}, nil, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTrigger(store, store, store, gw, gw, nil, logger, Config{MaxAttempts: 2}), store
}

func TestOnCompletedPaysOnce(t *testing.T) {
	gw := &fakeGateway{}
	trig, _ := newTrigger(gw)
	ctx := context.Background()
	appt := paidAppt()
	appt.Status = model.StatusCompleted

	rec, err := trig.OnCompleted(ctx, appt)
	if err != nil {
		t.Fatalf("OnCompleted: %v", err)
	}
	if rec.Status != model.SettlementSucceeded || !rec.ProviderAmount.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("unexpected payout %+v", rec)
	}
	if rec.TransactionReference != "utr_b1" || gw.lastDest != "acct_p1" {
		t.Fatalf("unexpected payout reference %+v dest %s", rec, gw.lastDest)
	}
	if _, err := trig.OnCompleted(ctx, appt); err != nil {
		t.Fatalf("second OnCompleted: %v", err)
	}
	if gw.payouts != 1 {
		t.Fatalf("expected a single payout, got %d", gw.payouts)
	}

	cash := appt
	cash.ID = "b2"
	cash.PaymentMethod = model.PaymentCash
	if rec, err := trig.OnCompleted(ctx, cash); err != nil || rec.BookingID != "" {
		t.Fatalf("cash booking should not pay out: %+v %v", rec, err)
	}
}

func TestFailedRefundIsRetried(t *testing.T) {
	gw := &fakeGateway{fail: errors.New("gateway down")}
	trig, store := newTrigger(gw)
	ctx := context.Background()
	appt := paidAppt()
	cancelledAt := start.Add(-3 * time.Hour)
	appt.CancelledAt = &cancelledAt
	d := DefaultPolicy().RefundDecision(appt, cancelledAt, model.ReasonClientCancelled)

	_, err := trig.OnCancelled(ctx, appt, d)
	var failure *Failure
	if !errors.As(err, &failure) || failure.Op != "refund" {
		t.Fatalf("expected refund Failure, got %v", err)
	}
	rec, _ := store.GetRefund(ctx, "b1")
	if rec.Status != model.SettlementFailed || rec.Attempts != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}

	gw.fail = nil
	report, err := trig.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if report.Retried != 1 || report.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	rec, _ = store.GetRefund(ctx, "b1")
	if rec.Status != model.SettlementSucceeded || rec.RefundID != "re_b1" {
		t.Fatalf("unexpected record after retry %+v", rec)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	gw := &fakeGateway{fail: errors.New("declined")}
	trig, _ := newTrigger(gw)
	ctx := context.Background()
	appt := paidAppt()
	appt.Status = model.StatusCompleted

	if _, err := trig.OnCompleted(ctx, appt); err == nil {
		t.Fatal("expected payout failure")
	}
	if _, err := trig.RetryFailed(ctx); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	report, err := trig.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if report.GaveUp != 1 || report.Retried != 0 {
		t.Fatalf("expected record to be given up, got %+v", report)
	}
	if gw.payouts != 2 {
		t.Fatalf("expected 2 gateway calls, got %d", gw.payouts)
	}
}

func TestSucceededRefundMarksBookingRefunded(t *testing.T) {
	gw := &fakeGateway{}
	trig, store := newTrigger(gw)
	ctx := context.Background()
	appt := paidAppt()
	if err := store.CommitIfFree(ctx, &appt, booking.Rule{Capacity: 1}, nil); err != nil {
		t.Fatalf("CommitIfFree: %v", err)
	}
	cancelledAt := start.Add(-2 * time.Hour)
	d := DefaultPolicy().RefundDecision(appt, cancelledAt, model.ReasonClientCancelled)

	if _, err := trig.OnCancelled(ctx, appt, d); err != nil {
		t.Fatalf("OnCancelled: %v", err)
	}
	got, err := store.Get(ctx, appt.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PaymentStatus != model.PaymentRefunded {
		t.Fatalf("expected refunded payment status, got %s", got.PaymentStatus)
	}
	if !got.PaidOnline() {
		t.Fatal("a refunded online booking still counts as paid online")
	}
}

func TestStuckPendingSettlementsAreRetried(t *testing.T) {
	gw := &fakeGateway{}
	store := storage.NewMemoryStore()
	store.PutProvider(model.Provider{ID: "p1", Name: "Salon", BankAccount: "acct_p1"}, nil, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := time.Now().UTC()
	trig := NewTrigger(store, store, store, gw, gw, nil, logger, Config{
		MaxAttempts:   3,
		RetryInterval: time.Minute,
		Now:           func() time.Time { return clock },
	})
	ctx := context.Background()

	// Records inserted but never sent, as after a crash before the gateway call.
	if _, err := store.InsertRefund(ctx, model.RefundRecord{BookingID: "b1", PaymentID: "pi_1", Amount: decimal.NewFromInt(10), Status: model.SettlementPending}); err != nil {
		t.Fatalf("InsertRefund: %v", err)
	}
	if _, err := store.InsertPayout(ctx, model.PayoutRecord{BookingID: "b2", ProviderID: "p1", ProviderAmount: decimal.NewFromInt(20), Status: model.SettlementPending}); err != nil {
		t.Fatalf("InsertPayout: %v", err)
	}

	report, err := trig.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if report.Retried != 0 {
		t.Fatalf("fresh pending records must be left alone, got %+v", report)
	}

	clock = clock.Add(2 * time.Minute)
	refunds, payouts, err := trig.Failed(ctx, 10)
	if err != nil {
		t.Fatalf("Failed: %v", err)
	}
	if len(refunds) != 1 || len(payouts) != 1 {
		t.Fatalf("expected stuck records in the operator view, got %d refunds %d payouts", len(refunds), len(payouts))
	}
	report, err = trig.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if report.Retried != 2 || report.Succeeded != 2 {
		t.Fatalf("expected both stuck records retried, got %+v", report)
	}
	rec, _ := store.GetRefund(ctx, "b1")
	if rec.Status != model.SettlementSucceeded {
		t.Fatalf("unexpected refund after retry %+v", rec)
	}
	if gw.refunds != 1 || gw.payouts != 1 {
		t.Fatalf("expected one gateway call each, got %d refunds %d payouts", gw.refunds, gw.payouts)
	}
}
