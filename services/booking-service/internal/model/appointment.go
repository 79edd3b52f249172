package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentCash   PaymentMethod = "cash"
)

type CompletionSource string

const (
	CompletedBySweep  CompletionSource = "sweep"
	CompletedManually CompletionSource = "manual"
)

// Appointment is a committed booking. ScheduledEnd is derived once at commit
// time and never recomputed; ActualEnd, once set, is authoritative for
// overrun calculations.
type Appointment struct {
	ID                    string
	ProviderID            string
	StaffID               *string
	ClientID              string
	ClientPhone           string
	ServiceID             string
	ScheduledStart        time.Time
	DurationMinutes       int
	ScheduledEnd          time.Time
	ActualEnd             *time.Time
	Status                Status
	PaymentStatus         PaymentStatus
	PaymentMethod         PaymentMethod
	PaymentReference      string
	IdempotencyKey        string
	TokenNumber           int
	ServicePrice          decimal.Decimal
	PlatformFee           decimal.Decimal
	CompletionSource      CompletionSource
	NeedsManualReschedule bool
	CancelledAt           *time.Time
	CancelReason          string
	Version               int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// EndFor returns start plus the given duration in minutes.
func EndFor(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}

// StaffKey is the staff id, or "" for provider-level bookings.
func (a Appointment) StaffKey() string {
	if a.StaffID == nil {
		return ""
	}
	return *a.StaffID
}

// EffectiveEnd is the time the staff member is actually free again.
func (a Appointment) EffectiveEnd() time.Time {
	if a.ActualEnd != nil {
		return *a.ActualEnd
	}
	return a.ScheduledEnd
}

// OvertimeMinutes is actualEnd - scheduledEnd, or zero when not overrun.
func (a Appointment) OvertimeMinutes() int {
	if a.ActualEnd == nil || !a.ActualEnd.After(a.ScheduledEnd) {
		return 0
	}
	return int(a.ActualEnd.Sub(a.ScheduledEnd) / time.Minute)
}

// Blocking reports whether the appointment still holds its time slot.
func (a Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}

// PaidOnline reports whether the client paid through the platform. A refunded
// booking still counts; the refund record carries the amount returned.
func (a Appointment) PaidOnline() bool {
	paid := a.PaymentStatus == PaymentPaid || a.PaymentStatus == PaymentRefunded
	return paid && a.PaymentMethod == PaymentOnline
}

// TotalCharged is what the client paid: service price plus platform fee.
func (a Appointment) TotalCharged() decimal.Decimal {
	return a.ServicePrice.Add(a.PlatformFee)
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
