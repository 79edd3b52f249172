package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// PayoutSent is the payload of payments.payout.sent.v1, published by the
// payment service when it pays a provider on the primary path.
type PayoutSent struct {
	BookingID            string          `json:"booking_id"`
	ProviderID           string          `json:"provider_id"`
	ProviderAmount       decimal.Decimal `json:"provider_amount"`
	PlatformFee          decimal.Decimal `json:"platform_fee"`
	PayoutID             string          `json:"payout_id"`
	TransactionReference string          `json:"transaction_reference"`
}

type PayoutRecorder interface {
	RecordPayoutSent(ctx context.Context, rec model.PayoutRecord) error
}

// PayoutSentHandler stores primary-path payouts so the sweep's backup path
// finds them and does not pay twice.
func PayoutSentHandler(recorder PayoutRecorder) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt PayoutSent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode payout event: %w", err)
		}
		if evt.BookingID == "" || evt.ProviderID == "" {
			return fmt.Errorf("payout event missing booking or provider id")
		}
		return recorder.RecordPayoutSent(ctx, model.PayoutRecord{
			ProviderID:           evt.ProviderID,
			BookingID:            evt.BookingID,
			ProviderAmount:       evt.ProviderAmount,
			PlatformFee:          evt.PlatformFee,
			Status:               model.SettlementSucceeded,
			PayoutID:             evt.PayoutID,
			TransactionReference: evt.TransactionReference,
		})
	}
}
