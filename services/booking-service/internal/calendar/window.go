package calendar

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// Window is the bookable span of one business day. Breaks lie inside
// [Start, End) and are not bookable.
type Window struct {
	Start  time.Time
	End    time.Time
	Breaks []Interval
}

func (w Window) Empty() bool {
	return !w.End.After(w.Start)
}

// InBreak reports whether t falls inside a break.
func (w Window) InBreak(t time.Time) bool {
	for _, b := range w.Breaks {
		if b.Contains(t) {
			return true
		}
	}
	return false
}

// breakAt returns the break containing t, if any.
func (w Window) breakAt(t time.Time) (Interval, bool) {
	for _, b := range w.Breaks {
		if b.Contains(t) {
			return b, true
		}
	}
	return Interval{}, false
}

// Fits reports whether [start, end) lies inside the window without touching a
// break.
func (w Window) Fits(start, end time.Time) bool {
	if w.Empty() || start.Before(w.Start) || end.After(w.End) || !end.After(start) {
		return false
	}
	for _, b := range w.Breaks {
		if b.Overlaps(start, end) {
			return false
		}
	}
	return true
}

// Open returns the bookable sub-intervals with breaks removed.
func (w Window) Open() []Interval {
	if w.Empty() {
		return nil
	}
	var out []Interval
	cursor := w.Start
	for _, b := range w.Breaks {
		if b.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if w.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: w.End})
	}
	return out
}

// BusinessWindow returns the bookable window of day under schedule. A day the
// provider does not work yields an empty window and no error.
func BusinessWindow(day time.Time, schedule model.ProviderScheduleDay) (Window, error) {
	if !schedule.IsAvailable {
		return Window{}, nil
	}
	startMin, err := ParseClock(schedule.StartTime)
	if err != nil {
		return Window{}, err
	}
	endMin, err := ParseClock(schedule.EndTime)
	if err != nil {
		return Window{}, err
	}
	if endMin <= startMin {
		return Window{}, fmt.Errorf("business hours end %s is not after start %s", schedule.EndTime, schedule.StartTime)
	}

	w := Window{Start: At(day, startMin), End: At(day, endMin)}
	if !schedule.HasBreak {
		return w, nil
	}

	bStart, err := ParseClock(schedule.BreakStart)
	if err != nil {
		return Window{}, err
	}
	bEnd, err := ParseClock(schedule.BreakEnd)
	if err != nil {
		return Window{}, err
	}
	// Clip to business hours; a break entirely outside them is ignored.
	if bStart < startMin {
		bStart = startMin
	}
	if bEnd > endMin {
		bEnd = endMin
	}
	if bEnd > bStart {
		w.Breaks = []Interval{{Start: At(day, bStart), End: At(day, bEnd)}}
	}
	return w, nil
}
