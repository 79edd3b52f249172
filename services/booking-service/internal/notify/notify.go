package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Template kinds sent to clients and providers.
const (
	KindRescheduled      = "booking_rescheduled"
	KindManualReschedule = "booking_needs_manual_reschedule"
	KindRefundInitiated  = "refund_initiated"
	KindPayoutSent       = "payout_sent"
	KindBookingConfirmed = "booking_confirmed"
)

// Notifier delivers a templated message. Callers treat delivery as best
// effort and never fail a booking operation on a notification error.
type Notifier interface {
	Notify(ctx context.Context, phone, kind string, data map[string]any) error
}

type WebhookNotifier struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookNotifier(url, token string) *WebhookNotifier {
	return &WebhookNotifier{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, phone, kind string, data map[string]any) error {
	if n.url == "" {
		return fmt.Errorf("notify webhook url not configured")
	}
	raw, err := json.Marshal(map[string]any{
		"to":       phone,
		"template": kind,
		"data":     data,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook returned %d", resp.StatusCode)
	}
	return nil
}

type Noop struct{}

func (Noop) Notify(context.Context, string, string, map[string]any) error { return nil }

// Send fires n.Notify and logs a failure instead of returning it. An empty
// phone is skipped.
func Send(ctx context.Context, n Notifier, logger *slog.Logger, phone, kind string, data map[string]any) {
	if n == nil || phone == "" {
		return
	}
	if err := n.Notify(ctx, phone, kind, data); err != nil && logger != nil {
		logger.Warn("notification failed", "kind", kind, "err", err)
	}
}
