package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"25":     2500,
		"19.99":  1999,
		"0.005":  1,
		"120.10": 12010,
	}
	for in, want := range cases {
		if got := MinorUnits(decimal.RequireFromString(in)); got != want {
			t.Fatalf("%s: expected %d, got %d", in, want, got)
		}
	}
}

func TestStripeGatewayRequiresKey(t *testing.T) {
	g := NewStripeGateway("", "usd")
	if _, err := g.RefundPayment(context.Background(), "pi_1", decimal.NewFromInt(10), "b1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := g.SendPayout(context.Background(), "acct_1", decimal.NewFromInt(10), "b1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
