package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func appt(id, staff string, start time.Time, minutes int) model.Appointment {
	return model.Appointment{
		ID:             id,
		ProviderID:     "p1",
		StaffID:        model.StringPtr(staff),
		ScheduledStart: start,
		ScheduledEnd:   model.EndFor(start, minutes),
		Status:         model.StatusConfirmed,
	}
}

func TestFindConflict(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	existing := []model.Appointment{
		appt("a", "s1", base, 60),
		appt("b", "s2", base.Add(30*time.Minute), 60),
	}
	cancelled := appt("c", "s1", base.Add(2*time.Hour), 60)
	cancelled.Status = model.StatusCancelled
	existing = append(existing, cancelled)

	cases := []struct {
		name      string
		candidate model.Appointment
		capacity  int
		want      error
	}{
		{"same staff overlap", appt("x", "s1", base.Add(45*time.Minute), 30), 3, ErrStaffDoubleBooked},
		{"touching is free", appt("x", "s1", base.Add(60*time.Minute), 30), 3, nil},
		{"cancelled does not block", appt("x", "s1", base.Add(2*time.Hour), 30), 3, nil},
		{"other staff within capacity", appt("x", "s3", base.Add(30*time.Minute), 30), 3, nil},
		{"peak reaches capacity", appt("x", "s3", base.Add(30*time.Minute), 30), 2, ErrCapacityExhausted},
		{"sequential overlaps below capacity", appt("x", "", base.Add(75*time.Minute), 30), 2, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := FindConflict(tc.candidate, existing, Rule{Capacity: tc.capacity})
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected no conflict, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPeakConcurrencyClipsToWindow(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		appt("a", "s1", base, 60),
		appt("b", "s2", base.Add(60*time.Minute), 60),
		appt("c", "", base.Add(30*time.Minute), 60),
	}
	if got := PeakConcurrency(appts, base, base.Add(2*time.Hour)); got != 2 {
		t.Fatalf("expected peak 2, got %d", got)
	}
	if got := PeakConcurrency(appts, base.Add(90*time.Minute), base.Add(2*time.Hour)); got != 1 {
		t.Fatalf("expected peak 1, got %d", got)
	}
}

func TestFindConflictHonoursActualEnd(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	overrun := appt("a", "s1", base, 30)
	overrun.Status = model.StatusCompleted
	late := base.Add(50 * time.Minute)
	overrun.ActualEnd = &late
	existing := []model.Appointment{overrun}

	err := FindConflict(appt("x", "s1", base.Add(30*time.Minute), 20), existing, Rule{Capacity: 3})
	if !errors.Is(err, ErrStaffDoubleBooked) {
		t.Fatalf("expected staff conflict inside the overrun, got %v", err)
	}
	if err := FindConflict(appt("x", "s1", late, 20), existing, Rule{Capacity: 3}); err != nil {
		t.Fatalf("expected the slot at the actual end to be free, got %v", err)
	}
	if err := FindConflict(appt("x", "", base.Add(35*time.Minute), 10), existing, Rule{Capacity: 1}); !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected the overrun to hold capacity, got %v", err)
	}
}
