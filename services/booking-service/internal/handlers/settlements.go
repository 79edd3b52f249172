package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

type Settlements interface {
	Failed(ctx context.Context, limit int) ([]model.RefundRecord, []model.PayoutRecord, error)
}

// SettlementHandler is the operator view over refunds and payouts that could
// not be delivered.
type SettlementHandler struct {
	settlements Settlements
	logger      *slog.Logger
}

func NewSettlementHandler(settlements Settlements, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

type failedRefundItem struct {
	BookingID   string `json:"booking_id"`
	PaymentID   string `json:"payment_id"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error"`
	CancelledAt string `json:"cancelled_at"`
}

type failedPayoutItem struct {
	BookingID      string `json:"booking_id"`
	ProviderID     string `json:"provider_id"`
	ProviderAmount string `json:"provider_amount"`
	PlatformFee    string `json:"platform_fee"`
	Attempts       int    `json:"attempts"`
	LastError      string `json:"last_error"`
}

func (h *SettlementHandler) Failed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	refunds, payouts, err := h.settlements.Failed(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, "list failed settlements", err)
		return
	}

	refundItems := make([]failedRefundItem, 0, len(refunds))
	for _, rec := range refunds {
		refundItems = append(refundItems, failedRefundItem{
			BookingID:   rec.BookingID,
			PaymentID:   rec.PaymentID,
			Amount:      rec.Amount.StringFixed(2),
			Reason:      string(rec.Reason),
			Attempts:    rec.Attempts,
			LastError:   rec.LastError,
			CancelledAt: rec.CancelledAt.Format(WallClockLayout),
		})
	}
	payoutItems := make([]failedPayoutItem, 0, len(payouts))
	for _, rec := range payouts {
		payoutItems = append(payoutItems, failedPayoutItem{
			BookingID:      rec.BookingID,
			ProviderID:     rec.ProviderID,
			ProviderAmount: rec.ProviderAmount.StringFixed(2),
			PlatformFee:    rec.PlatformFee.StringFixed(2),
			Attempts:       rec.Attempts,
			LastError:      rec.LastError,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"refunds": refundItems,
		"payouts": payoutItems,
	})
}
