package calendar

import (
	"sort"
	"time"
)

// EnumerateCandidateSlots returns the sorted, de-duplicated union of
//
//  1. the window start,
//  2. the end of every busy interval that lands inside the window, so the next
//     client can start the moment staff frees up,
//  3. a fill-in grid every interval minutes, jumping over breaks and resuming
//     at each break's end.
//
// All times are expected to be in the same location.
func EnumerateCandidateSlots(w Window, busy []Interval, interval time.Duration) []time.Time {
	if w.Empty() {
		return nil
	}

	seen := map[int64]struct{}{}
	var out []time.Time
	add := func(t time.Time) {
		key := t.Unix()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}

	add(w.Start)
	for _, b := range busy {
		if !b.End.Before(w.Start) && b.End.Before(w.End) {
			add(b.End)
		}
	}
	if interval > 0 {
		for t := w.Start; t.Before(w.End); t = t.Add(interval) {
			if br, ok := w.breakAt(t); ok {
				t = br.End
				if !t.Before(w.End) {
					break
				}
			}
			add(t)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
