package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotConfigured = errors.New("payment gateway not configured")

type RefundResult struct {
	RefundID string
	Status   string
}

type PayoutResult struct {
	PayoutID string
	// UTR is the bank-side transaction reference, when the gateway has one.
	UTR string
}

// RefundGateway returns money to the client for a captured payment.
type RefundGateway interface {
	RefundPayment(ctx context.Context, paymentReference string, amount decimal.Decimal, idempotencyKey string) (RefundResult, error)
}

// PayoutGateway pays a provider for a completed service.
type PayoutGateway interface {
	SendPayout(ctx context.Context, destination string, amount decimal.Decimal, idempotencyKey string) (PayoutResult, error)
}

// NoopGateway accepts every request without contacting a gateway. It is used
// when no Stripe key is configured.
type NoopGateway struct{}

func (NoopGateway) RefundPayment(_ context.Context, paymentReference string, _ decimal.Decimal, key string) (RefundResult, error) {
	return RefundResult{RefundID: "noop_re_" + key, Status: "succeeded"}, nil
}

func (NoopGateway) SendPayout(_ context.Context, _ string, _ decimal.Decimal, key string) (PayoutResult, error) {
	return PayoutResult{PayoutID: "noop_tr_" + key, UTR: "noop_utr_" + key}, nil
}

// MinorUnits converts an amount to the currency's smallest unit, assuming two
// decimal places.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
