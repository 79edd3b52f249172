package booking_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func newGuard(t *testing.T, staff ...string) (*booking.Guard, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	var members []model.StaffMember
	for _, id := range staff {
		members = append(members, model.StaffMember{ID: id, ProviderID: "p1", Name: id, IsActive: true})
	}
	store.PutProvider(model.Provider{ID: "p1", Name: "Salon"}, members, []model.ProviderScheduleDay{{
		DayOfWeek:   int(time.Monday),
		IsAvailable: true,
		StartTime:   "09:00",
		EndTime:     "17:00",
		HasBreak:    true,
		BreakStart:  "13:00",
		BreakEnd:    "14:00",
	}})
	return booking.NewGuard(store, store, func() time.Time { return at(8, 0) }), store
}

func intent(staff string, start time.Time, minutes int) booking.Intent {
	return booking.Intent{
		ProviderID:      "p1",
		StaffID:         staff,
		ClientID:        "c1",
		ServiceID:       "haircut",
		Start:           start,
		DurationMinutes: minutes,
	}
}

func TestTryCommitAssignsTokensAndEmitsEvent(t *testing.T) {
	g, store := newGuard(t, "s1")
	ctx := context.Background()

	first, err := g.TryCommit(ctx, intent("s1", at(9, 0), 45))
	if err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	if first.TokenNumber != 1 || first.Status != model.StatusPending {
		t.Fatalf("unexpected booking %+v", first)
	}
	if !first.ScheduledEnd.Equal(at(9, 45)) {
		t.Fatalf("expected end 09:45, got %s", first.ScheduledEnd)
	}
	second, err := g.TryCommit(ctx, intent("s1", at(9, 45), 30))
	if err != nil {
		t.Fatalf("back-to-back booking: %v", err)
	}
	if second.TokenNumber != 2 {
		t.Fatalf("expected token 2, got %d", second.TokenNumber)
	}
	events := store.Events()
	if len(events) != 2 || events[0].EventType != outbox.TypeBooked {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestTryCommitRejections(t *testing.T) {
	g, _ := newGuard(t, "s1")
	ctx := context.Background()
	if _, err := g.TryCommit(ctx, intent("s1", at(10, 0), 60)); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	cases := []struct {
		name string
		in   booking.Intent
		want error
	}{
		{"staff overlap", intent("s1", at(10, 30), 30), booking.ErrStaffDoubleBooked},
		{"capacity", intent("", at(10, 15), 30), booking.ErrCapacityExhausted},
		{"zero duration", intent("s1", at(11, 0), 0), booking.ErrInvalidInterval},
		{"past start", intent("s1", at(7, 30), 30), booking.ErrInvalidInterval},
		{"across break", intent("s1", at(12, 30), 60), booking.ErrOutsideBusinessHours},
		{"after close", intent("s1", at(16, 45), 30), booking.ErrOutsideBusinessHours},
		{"unknown staff", intent("ghost", at(11, 0), 30), booking.ErrUnknownStaff},
		{"missing client", booking.Intent{ProviderID: "p1", ServiceID: "x", Start: at(11, 0), DurationMinutes: 30}, booking.ErrInvalidIntent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.TryCommit(ctx, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestStafflessProviderUsesDefaultCapacity(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()
	appt, err := g.TryCommit(ctx, intent(model.DefaultStaffID, at(9, 0), 30))
	if err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	if appt.StaffID != nil {
		t.Fatalf("default pseudo-staff should store a nil staff id")
	}
	_, err = g.TryCommit(ctx, intent("", at(9, 15), 30))
	var ce *booking.ConflictError
	if !errors.As(err, &ce) || ce.Kind != booking.KindProviderCapacity {
		t.Fatalf("expected provider_capacity conflict, got %v", err)
	}
}

func TestRescheduleIgnoresItself(t *testing.T) {
	g, store := newGuard(t, "s1")
	ctx := context.Background()
	appt, err := g.TryCommit(ctx, intent("s1", at(9, 0), 60))
	if err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	moved, err := g.Reschedule(ctx, appt.ID, at(9, 30))
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !moved.ScheduledEnd.Equal(at(10, 30)) || moved.DurationMinutes != 60 {
		t.Fatalf("duration not preserved: %+v", moved)
	}
	if moved.Version != appt.Version+1 {
		t.Fatalf("expected version bump, got %d", moved.Version)
	}
	events := store.Events()
	if events[len(events)-1].EventType != outbox.TypeRescheduled {
		t.Fatalf("expected rescheduled event, got %s", events[len(events)-1].EventType)
	}

	other, err := g.TryCommit(ctx, intent("s1", at(11, 0), 30))
	if err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	if _, err := g.Reschedule(ctx, other.ID, at(10, 0)); !errors.Is(err, booking.ErrStaffDoubleBooked) {
		t.Fatalf("expected staff conflict, got %v", err)
	}
}

// Concurrent commits against a two-staff provider must leave no staff with
// overlapping bookings and never exceed two bookings at any instant.
func TestConcurrentCommitsStayDisjoint(t *testing.T) {
	g, store := newGuard(t, "s1", "s2")
	ctx := context.Background()
	staffChoices := []string{"s1", "s2", ""}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			start := at(9, 0).Add(time.Duration(rng.Intn(16)) * 15 * time.Minute)
			in := intent(staffChoices[rng.Intn(len(staffChoices))], start, 15*(1+rng.Intn(4)))
			in.ClientID = fmt.Sprintf("c%d", seed)
			_, err := g.TryCommit(ctx, in)
			if err != nil && !booking.IsConflict(err) && !errors.Is(err, booking.ErrOutsideBusinessHours) {
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	all := store.All()
	if len(all) == 0 {
		t.Fatal("expected some bookings to succeed")
	}
	for i, a := range all {
		for _, b := range all[i+1:] {
			overlap := a.ScheduledStart.Before(b.ScheduledEnd) && b.ScheduledStart.Before(a.ScheduledEnd)
			if overlap && a.StaffID != nil && b.StaffID != nil && *a.StaffID == *b.StaffID {
				t.Fatalf("staff %s double booked: %s and %s", *a.StaffID, a.ID, b.ID)
			}
		}
	}
	for _, a := range all {
		if peak := booking.PeakConcurrency(all, a.ScheduledStart, a.ScheduledEnd); peak > 2 {
			t.Fatalf("capacity exceeded around %s: %d concurrent", a.ScheduledStart, peak)
		}
	}
}

func TestTryCommitIdempotencyKeyReplays(t *testing.T) {
	g, store := newGuard(t, "s1")
	ctx := context.Background()
	in := intent("s1", at(15, 0), 30)
	in.IdempotencyKey = "req-42"

	first, err := g.TryCommit(ctx, in)
	if err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	again, err := g.TryCommit(ctx, in)
	if !errors.Is(err, booking.ErrReplayed) {
		t.Fatalf("expected ErrReplayed, got %v", err)
	}
	if again.ID != first.ID || again.TokenNumber != first.TokenNumber {
		t.Fatalf("replay should return the original booking, got %+v", again)
	}
	if n := len(store.All()); n != 1 {
		t.Fatalf("expected one stored booking, got %d", n)
	}
}

func TestTryCommitRespectsRecordedOverrun(t *testing.T) {
	g, store := newGuard(t, "s1")
	ctx := context.Background()

	a, err := g.TryCommit(ctx, intent("s1", at(10, 0), 30))
	if err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	actualEnd := at(10, 50)
	if _, err := store.Update(ctx, a.ID, nil, func(appt *model.Appointment) {
		appt.Status = model.StatusCompleted
		appt.ActualEnd = &actualEnd
	}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := g.TryCommit(ctx, intent("s1", at(10, 30), 20)); !errors.Is(err, booking.ErrStaffDoubleBooked) {
		t.Fatalf("expected staff conflict before the actual end, got %v", err)
	}
	if _, err := g.TryCommit(ctx, intent("s1", at(10, 50), 20)); err != nil {
		t.Fatalf("booking at the actual end: %v", err)
	}
}
