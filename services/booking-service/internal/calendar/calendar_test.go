package calendar

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	return d
}

func clocks(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Format(ClockLayout))
	}
	return out
}

func TestBusinessWindow_Unavailable(t *testing.T) {
	day := mustDay(t, "2026-03-02")
	w, err := BusinessWindow(day, model.ProviderScheduleDay{IsAvailable: false, StartTime: "09:00", EndTime: "17:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Empty() {
		t.Fatal("expected empty window for a day off")
	}
	if got := EnumerateCandidateSlots(w, nil, 30*time.Minute); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", clocks(got))
	}
}

func TestBusinessWindow_BreakClippedAndOpen(t *testing.T) {
	day := mustDay(t, "2026-03-02")
	w, err := BusinessWindow(day, model.ProviderScheduleDay{
		IsAvailable: true, StartTime: "09:00", EndTime: "17:00",
		HasBreak: true, BreakStart: "13:00", BreakEnd: "14:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	open := w.Open()
	if len(open) != 2 {
		t.Fatalf("expected 2 open intervals, got %d", len(open))
	}
	if open[0].End.Format(ClockLayout) != "13:00" || open[1].Start.Format(ClockLayout) != "14:00" {
		t.Fatalf("unexpected open intervals: %+v", open)
	}
	if !w.InBreak(At(day, 13*60+30)) {
		t.Fatal("13:30 should be in break")
	}
	if w.Fits(At(day, 12*60+30), At(day, 13*60+15)) {
		t.Fatal("interval crossing the break must not fit")
	}
}

func TestBusinessWindow_InvalidHours(t *testing.T) {
	day := mustDay(t, "2026-03-02")
	if _, err := BusinessWindow(day, model.ProviderScheduleDay{IsAvailable: true, StartTime: "17:00", EndTime: "09:00"}); err == nil {
		t.Fatal("expected error when end precedes start")
	}
	if _, err := BusinessWindow(day, model.ProviderScheduleDay{IsAvailable: true, StartTime: "9am", EndTime: "17:00"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnumerateCandidateSlots_PlainDay(t *testing.T) {
	day := mustDay(t, "2026-03-02")
	w, _ := BusinessWindow(day, model.ProviderScheduleDay{IsAvailable: true, StartTime: "09:00", EndTime: "17:00"})

	got := clocks(EnumerateCandidateSlots(w, nil, 30*time.Minute))
	if len(got) != 16 {
		t.Fatalf("expected 16 slots, got %d: %v", len(got), got)
	}
	if got[0] != "09:00" || got[1] != "09:30" || got[len(got)-1] != "16:30" {
		t.Fatalf("unexpected slots: %v", got)
	}
}

func TestEnumerateCandidateSlots_BookingEndAndBreak(t *testing.T) {
	day := mustDay(t, "2026-03-02")
	w, _ := BusinessWindow(day, model.ProviderScheduleDay{
		IsAvailable: true, StartTime: "09:00", EndTime: "12:00",
		HasBreak: true, BreakStart: "10:15", BreakEnd: "10:45",
	})
	busy := []Interval{
		{Start: At(day, 9*60), End: At(day, 9*60+45)},
		{Start: At(day, 11*60), End: At(day, 11*60+30)}, // on-grid end collapses
		{Start: At(day, 7*60), End: At(day, 8*60)},      // outside the window
	}

	got := clocks(EnumerateCandidateSlots(w, busy, 30*time.Minute))
	want := []string{"09:00", "09:30", "09:45", "10:00", "10:45", "11:15", "11:30", "11:45"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestWallClock(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	wall := WallClock(now, loc)
	if wall.Format("15:04") != "09:30" || wall.Location() != time.UTC {
		t.Fatalf("unexpected wall clock %s", wall)
	}
}
