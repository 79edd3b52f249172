package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInterval      = errors.New("invalid interval")
	ErrInvalidIntent        = errors.New("invalid booking intent")
	ErrOutsideBusinessHours = errors.New("requested time is outside business hours")
	ErrUnknownStaff         = errors.New("staff member is not an active member of the provider")
	ErrStaffDoubleBooked    = errors.New("staff member already booked for this time")
	ErrCapacityExhausted    = errors.New("provider capacity exhausted for this time")

	// ErrReplayed accompanies the stored booking when an idempotency key is
	// reused.
	ErrReplayed = errors.New("booking already created for this idempotency key")
)

type ConflictKind string

const (
	KindStaffConflict    ConflictKind = "staff_conflict"
	KindProviderCapacity ConflictKind = "provider_capacity"
)

// ConflictError is returned when a commit would violate the no-overlap rule.
// Callers should send the client back to availability rather than retry.
type ConflictError struct {
	Kind       ConflictKind
	ProviderID string
	StaffID    string
	Start      time.Time
	End        time.Time
}

func (e *ConflictError) Error() string {
	if e.Kind == KindStaffConflict {
		return fmt.Sprintf("staff %s already booked between %s and %s", e.StaffID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("provider %s has no capacity between %s and %s", e.ProviderID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	switch target {
	case ErrStaffDoubleBooked:
		return e.Kind == KindStaffConflict
	case ErrCapacityExhausted:
		return e.Kind == KindProviderCapacity
	}
	return false
}

func invalidInterval(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInterval, fmt.Sprintf(format, args...))
}
