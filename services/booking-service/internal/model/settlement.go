package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementSucceeded SettlementStatus = "succeeded"
	SettlementFailed    SettlementStatus = "failed"
)

type CancelReason string

const (
	ReasonClientCancelled   CancelReason = "client_cancelled"
	ReasonProviderCancelled CancelReason = "provider_cancelled"
	ReasonExcessiveWait     CancelReason = "excessive_wait"
)

type RefundRecord struct {
	BookingID   string
	PaymentID   string
	Amount      decimal.Decimal
	Reason      CancelReason
	Status      SettlementStatus
	HoursNotice float64
	CancelledAt time.Time
	RefundID    string
	Attempts    int
	LastError   string
	UpdatedAt   time.Time
}

type PayoutRecord struct {
	ProviderID           string
	BookingID            string
	ProviderAmount       decimal.Decimal
	PlatformFee          decimal.Decimal
	Status               SettlementStatus
	PayoutID             string
	TransactionReference string
	Attempts             int
	LastError            string
	UpdatedAt            time.Time
}
