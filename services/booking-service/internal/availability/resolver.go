package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

type Bookings interface {
	ListProviderDay(ctx context.Context, providerID string, day time.Time) ([]model.Appointment, error)
}

// Slot is one (time, staff) cell of the availability grid. It is derived per
// request and never stored.
type Slot struct {
	Time        time.Time
	StaffID     string
	IsAvailable bool
	IsBooked    bool
	IsBreakTime bool
}

type Grid struct {
	Date         time.Time
	Slots        []Slot
	StaffMembers []model.StaffMember
}

// SoleAvailableStaff returns the only staff member free at t, if exactly one
// is.
func (g Grid) SoleAvailableStaff(t time.Time) (string, bool) {
	found := ""
	n := 0
	for _, s := range g.Slots {
		if s.Time.Equal(t) && s.IsAvailable {
			found = s.StaffID
			n++
		}
	}
	return found, n == 1
}

// Available returns the distinct times at which at least one staff member is
// free, in order.
func (g Grid) Available() []time.Time {
	var out []time.Time
	for _, s := range g.Slots {
		if !s.IsAvailable {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Equal(s.Time) {
			continue
		}
		out = append(out, s.Time)
	}
	return out
}

type Config struct {
	SlotInterval time.Duration
	// Now returns the provider's wall-clock time.
	Now func() time.Time
}

// Resolver computes availability from persisted bookings on every call. It
// holds no mutable state and is safe for concurrent use.
type Resolver struct {
	roster   booking.Roster
	bookings Bookings
	interval time.Duration
	now      func() time.Time
}

func NewResolver(roster booking.Roster, bookings Bookings, cfg Config) *Resolver {
	if cfg.SlotInterval <= 0 {
		cfg.SlotInterval = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Resolver{roster: roster, bookings: bookings, interval: cfg.SlotInterval, now: cfg.Now}
}

func (r *Resolver) Resolve(ctx context.Context, providerID string, date time.Time, durationMinutes int) (Grid, error) {
	if durationMinutes <= 0 {
		return Grid{}, fmt.Errorf("%w: duration must be positive, got %d", booking.ErrInvalidInterval, durationMinutes)
	}
	day := calendar.StartOfDay(date)
	staff, err := r.roster.ListStaff(ctx, providerID)
	if err != nil {
		return Grid{}, err
	}
	active := model.ActiveStaff(staff)
	if len(active) == 0 {
		active = []model.StaffMember{{ID: model.DefaultStaffID, ProviderID: providerID, Name: "Any", IsActive: true}}
	}
	grid := Grid{Date: day, StaffMembers: active}

	window, err := booking.BusinessWindow(ctx, r.roster, providerID, day)
	if err != nil {
		return Grid{}, err
	}
	if window.Empty() {
		return grid, nil
	}

	appts, err := r.bookings.ListProviderDay(ctx, providerID, day)
	if err != nil {
		return Grid{}, err
	}
	busy := make([]calendar.Interval, 0, len(appts))
	occupied := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if !a.Blocking() {
			continue
		}
		end := a.EffectiveEnd()
		busy = append(busy, calendar.Interval{Start: a.ScheduledStart, End: end})
		// Capacity is measured against the time staff are really occupied.
		a.ScheduledEnd = end
		occupied = append(occupied, a)
	}

	capacity := model.Capacity(staff)
	now := r.now()
	duration := time.Duration(durationMinutes) * time.Minute
	for _, t := range calendar.EnumerateCandidateSlots(window, busy, r.interval) {
		end := t.Add(duration)
		full := booking.PeakConcurrency(occupied, t, end) >= capacity
		inBreak := window.InBreak(t)
		bookable := window.Fits(t, end) && !t.Before(now)
		for _, s := range active {
			slot := Slot{Time: t, StaffID: s.ID, IsBreakTime: inBreak}
			slot.IsBooked = full || staffBusy(occupied, s.ID, t, end)
			slot.IsAvailable = bookable && !slot.IsBooked && !inBreak
			grid.Slots = append(grid.Slots, slot)
		}
	}
	return grid, nil
}

func staffBusy(appts []model.Appointment, staffID string, start, end time.Time) bool {
	for _, a := range appts {
		held := a.StaffKey() == staffID || (staffID == model.DefaultStaffID && a.StaffID == nil)
		if held && calendar.Overlaps(a.ScheduledStart, a.ScheduledEnd, start, end) {
			return true
		}
	}
	return false
}
