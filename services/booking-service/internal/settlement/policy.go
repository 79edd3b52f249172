package settlement

import (
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// MinNotice is the cancellation notice that always qualifies for a refund.
const MinNotice = time.Hour

// Policy holds the tunable refund rules.
type Policy struct {
	// ExcessiveWait is how long past the scheduled start a client must have
	// waited before an excessive_wait cancellation qualifies without notice.
	ExcessiveWait time.Duration
}

func DefaultPolicy() Policy {
	return Policy{ExcessiveWait: 10 * time.Minute}
}

// Decision is the outcome of a refund eligibility check. Amount is nil when
// nothing is owed back (not eligible, or nothing was paid online).
type Decision struct {
	Eligible    bool
	HoursNotice float64
	Reason      model.CancelReason
	Amount      *decimal.Decimal
}

// RefundDecision applies the refund rules to appt cancelled at cancelledAt.
func (p Policy) RefundDecision(appt model.Appointment, cancelledAt time.Time, reason model.CancelReason) Decision {
	notice := appt.ScheduledStart.Sub(cancelledAt)
	d := Decision{HoursNotice: notice.Hours(), Reason: reason}

	switch {
	case notice >= MinNotice:
		d.Eligible = true
	case reason == model.ReasonProviderCancelled:
		d.Eligible = true
	case reason == model.ReasonExcessiveWait:
		d.Eligible = !cancelledAt.Before(appt.ScheduledStart.Add(p.ExcessiveWait))
	}

	if d.Eligible && appt.PaidOnline() {
		amount := appt.TotalCharged()
		d.Amount = &amount
	}
	return d
}

// ValidReason reports whether r is a known cancellation reason.
func ValidReason(r model.CancelReason) bool {
	switch r {
	case model.ReasonClientCancelled, model.ReasonProviderCancelled, model.ReasonExcessiveWait:
		return true
	}
	return false
}
