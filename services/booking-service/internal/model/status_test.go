package model

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusConfirmed, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}

	var te *TransitionError
	if err := CheckTransition(StatusCompleted, StatusConfirmed); !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestOvertimeMinutes(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt := Appointment{ScheduledStart: start, ScheduledEnd: EndFor(start, 30)}
	if appt.OvertimeMinutes() != 0 {
		t.Fatal("expected no overtime without actual end")
	}
	late := start.Add(50 * time.Minute)
	appt.ActualEnd = &late
	if appt.OvertimeMinutes() != 20 {
		t.Fatalf("expected 20 minutes, got %d", appt.OvertimeMinutes())
	}
	if !appt.EffectiveEnd().Equal(late) {
		t.Fatal("effective end should follow actual end")
	}
}

func TestCapacity(t *testing.T) {
	if Capacity(nil) != 1 {
		t.Fatal("staff-less provider should have capacity 1")
	}
	staff := []StaffMember{{ID: "a", IsActive: true}, {ID: "b", IsActive: false}, {ID: "c", IsActive: true}}
	if Capacity(staff) != 2 {
		t.Fatalf("expected 2, got %d", Capacity(staff))
	}
}
