package availability_test

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func clock(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func setup(t *testing.T, staff ...string) (*availability.Resolver, *booking.Guard) {
	t.Helper()
	store := storage.NewMemoryStore()
	var members []model.StaffMember
	for _, id := range staff {
		members = append(members, model.StaffMember{ID: id, ProviderID: "p1", Name: id, IsActive: true})
	}
	store.PutProvider(model.Provider{ID: "p1"}, members, []model.ProviderScheduleDay{{
		DayOfWeek: int(time.Monday), IsAvailable: true, StartTime: "09:00", EndTime: "17:00",
	}})
	now := func() time.Time { return clock(8, 0) }
	return availability.NewResolver(store, store, availability.Config{SlotInterval: 30 * time.Minute, Now: now}),
		booking.NewGuard(store, store, now)
}

func hasTime(times []time.Time, want time.Time) bool {
	for _, t := range times {
		if t.Equal(want) {
			return true
		}
	}
	return false
}

func TestResolveIncludesBookingEndSlot(t *testing.T) {
	resolver, guard := setup(t, "s1")
	ctx := context.Background()
	if _, err := guard.TryCommit(ctx, booking.Intent{
		ProviderID: "p1", StaffID: "s1", ClientID: "c1", ServiceID: "color",
		Start: clock(10, 0), DurationMinutes: 45,
	}); err != nil {
		t.Fatalf("TryCommit: %v", err)
	}

	grid, err := resolver.Resolve(ctx, "p1", monday, 30)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	free := grid.Available()
	if !hasTime(free, clock(10, 45)) {
		t.Fatalf("expected derived 10:45 slot, got %v", free)
	}
	for _, blocked := range []time.Time{clock(10, 0), clock(10, 30)} {
		if hasTime(free, blocked) {
			t.Fatalf("%s should be booked", blocked.Format("15:04"))
		}
	}
	if hasTime(free, clock(16, 45)) {
		t.Fatal("a 30 minute service cannot start at 16:45")
	}
	if !hasTime(free, clock(16, 30)) {
		t.Fatal("expected 16:30 to be offered")
	}
}

func TestResolveThenBookRoundTrip(t *testing.T) {
	resolver, guard := setup(t, "s1", "s2")
	ctx := context.Background()

	grid, err := resolver.Resolve(ctx, "p1", monday, 60)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, slot := range grid.Slots {
		if !slot.IsAvailable || slot.Time.Minute() != 0 || slot.Time.Hour() > 12 {
			continue
		}
		if _, err := guard.TryCommit(ctx, booking.Intent{
			ProviderID: "p1", StaffID: slot.StaffID, ClientID: "c", ServiceID: "cut",
			Start: slot.Time, DurationMinutes: 60,
		}); err != nil {
			t.Fatalf("slot %s/%s offered but rejected: %v", slot.StaffID, slot.Time.Format("15:04"), err)
		}
	}

	after, err := resolver.Resolve(ctx, "p1", monday, 60)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, slot := range after.Slots {
		if slot.Time.Before(clock(13, 0)) && slot.IsAvailable {
			t.Fatalf("slot %s/%s should now be booked", slot.StaffID, slot.Time.Format("15:04"))
		}
	}
}

func TestResolveDefaultStaffAndSoleSelection(t *testing.T) {
	resolver, guard := setup(t, "s1", "s2")
	ctx := context.Background()
	if _, err := guard.TryCommit(ctx, booking.Intent{
		ProviderID: "p1", StaffID: "s1", ClientID: "c1", ServiceID: "cut",
		Start: clock(9, 0), DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	grid, err := resolver.Resolve(ctx, "p1", monday, 30)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id, ok := grid.SoleAvailableStaff(clock(9, 0)); !ok || id != "s2" {
		t.Fatalf("expected s2 auto-selected, got %q %v", id, ok)
	}
	if _, ok := grid.SoleAvailableStaff(clock(9, 30)); ok {
		t.Fatal("two staff are free at 09:30")
	}

	solo, _ := setup(t)
	g, err := solo.Resolve(ctx, "p1", monday, 30)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(g.StaffMembers) != 1 || g.StaffMembers[0].ID != model.DefaultStaffID {
		t.Fatalf("expected default pseudo-staff, got %+v", g.StaffMembers)
	}
}

func TestResolveUnassignedBookingConsumesCapacity(t *testing.T) {
	resolver, guard := setup(t, "s1")
	ctx := context.Background()
	if _, err := guard.TryCommit(ctx, booking.Intent{
		ProviderID: "p1", ClientID: "c1", ServiceID: "cut", Start: clock(11, 0), DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("TryCommit: %v", err)
	}
	grid, err := resolver.Resolve(ctx, "p1", monday, 30)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if hasTime(grid.Available(), clock(11, 30)) {
		t.Fatal("unassigned booking should exhaust the single staff capacity")
	}
}
