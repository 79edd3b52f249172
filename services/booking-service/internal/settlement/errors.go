package settlement

import "fmt"

// Failure reports a refund or payout that could not be completed. The
// triggering booking change has already been committed.
type Failure struct {
	Op        string
	BookingID string
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s for booking %s failed: %v", f.Op, f.BookingID, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
