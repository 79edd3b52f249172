package booking

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// Rule carries what the conflict check needs beyond the bookings themselves.
type Rule struct {
	Capacity int
}

// FindConflict checks candidate against the provider's other bookings.
// A staff-held candidate may not overlap another booking of the same staff
// member; any candidate is rejected when the provider is already serving
// Capacity bookings at some instant of the candidate's interval. An overrun
// booking holds its staff member until its actual end.
func FindConflict(candidate model.Appointment, existing []model.Appointment, rule Rule) error {
	start, end := candidate.ScheduledStart, candidate.ScheduledEnd

	var overlapping []model.Appointment
	for _, other := range existing {
		if other.ID == candidate.ID || !other.Blocking() || other.ProviderID != candidate.ProviderID {
			continue
		}
		if !other.ScheduledStart.Before(end) || !start.Before(other.EffectiveEnd()) {
			continue
		}
		if candidate.StaffID != nil && other.StaffID != nil && *other.StaffID == *candidate.StaffID {
			return &ConflictError{
				Kind:       KindStaffConflict,
				ProviderID: candidate.ProviderID,
				StaffID:    *candidate.StaffID,
				Start:      start,
				End:        end,
			}
		}
		overlapping = append(overlapping, other)
	}

	capacity := rule.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	if PeakConcurrency(overlapping, start, end) >= capacity {
		return &ConflictError{
			Kind:       KindProviderCapacity,
			ProviderID: candidate.ProviderID,
			StaffID:    candidate.StaffKey(),
			Start:      start,
			End:        end,
		}
	}
	return nil
}

// PeakConcurrency is the largest number of appts running at the same instant
// within [start, end).
func PeakConcurrency(appts []model.Appointment, start, end time.Time) int {
	type edge struct {
		at    time.Time
		delta int
	}
	edges := make([]edge, 0, 2*len(appts))
	for _, a := range appts {
		s, e := a.ScheduledStart, a.EffectiveEnd()
		if s.Before(start) {
			s = start
		}
		if e.After(end) {
			e = end
		}
		if !e.After(s) {
			continue
		}
		edges = append(edges, edge{at: s, delta: 1}, edge{at: e, delta: -1})
	}
	// Ends sort before starts at the same instant: half-open intervals that
	// touch do not run concurrently.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})

	peak, cur := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}
