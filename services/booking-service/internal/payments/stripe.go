package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/refund"
	"github.com/stripe/stripe-go/v79/transfer"
)

// StripeGateway issues refunds against charges or payment intents and pays
// providers with transfers to their connected account.
type StripeGateway struct {
	refunds   *refund.Client
	transfers *transfer.Client
	currency  string
}

func NewStripeGateway(secretKey, currency string) *StripeGateway {
	backend := stripe.GetBackend(stripe.APIBackend)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{
		refunds:   &refund.Client{B: backend, Key: secretKey},
		transfers: &transfer.Client{B: backend, Key: secretKey},
		currency:  strings.ToLower(currency),
	}
}

func (g *StripeGateway) RefundPayment(ctx context.Context, paymentReference string, amount decimal.Decimal, idempotencyKey string) (RefundResult, error) {
	if g == nil || g.refunds.Key == "" {
		return RefundResult{}, ErrNotConfigured
	}
	if paymentReference == "" {
		return RefundResult{}, fmt.Errorf("refund: missing payment reference")
	}
	params := &stripe.RefundParams{Amount: stripe.Int64(MinorUnits(amount))}
	if strings.HasPrefix(paymentReference, "ch_") {
		params.Charge = stripe.String(paymentReference)
	} else {
		params.PaymentIntent = stripe.String(paymentReference)
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String("refund:" + idempotencyKey)
	}

	re, err := g.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe refund: %w", err)
	}
	if re.Status == stripe.RefundStatusFailed || re.Status == stripe.RefundStatusCanceled {
		return RefundResult{RefundID: re.ID, Status: string(re.Status)}, fmt.Errorf("stripe refund %s ended %s", re.ID, re.Status)
	}
	return RefundResult{RefundID: re.ID, Status: string(re.Status)}, nil
}

func (g *StripeGateway) SendPayout(ctx context.Context, destination string, amount decimal.Decimal, idempotencyKey string) (PayoutResult, error) {
	if g == nil || g.transfers.Key == "" {
		return PayoutResult{}, ErrNotConfigured
	}
	if destination == "" {
		return PayoutResult{}, fmt.Errorf("payout: provider has no payout destination")
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(MinorUnits(amount)),
		Currency:    stripe.String(g.currency),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String("payout:" + idempotencyKey)
	}

	tr, err := g.transfers.New(params)
	if err != nil {
		return PayoutResult{}, fmt.Errorf("stripe transfer: %w", err)
	}
	res := PayoutResult{PayoutID: tr.ID}
	if tr.BalanceTransaction != nil {
		res.UTR = tr.BalanceTransaction.ID
	}
	return res, nil
}
