package calendar

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Interval is a half-open [Start, End) span.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

func (i Interval) Overlaps(start, end time.Time) bool {
	return Overlaps(i.Start, i.End, start, end)
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ParseDate parses a YYYY-MM-DD date into midnight of that day. The result is
// UTC-located but represents the provider's local calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// ParseClock parses HH:MM into minutes after midnight.
func ParseClock(s string) (int, error) {
	c, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return c.Hour()*60 + c.Minute(), nil
}

// At returns the instant minute minutes after the start of day.
func At(day time.Time, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(time.Duration(minute) * time.Minute)
}

func StartOfDay(t time.Time) time.Time {
	return At(t, 0)
}

func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// WallClock expresses now as the provider's local wall-clock time in the
// UTC-located frame every stored appointment uses.
func WallClock(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), 0, time.UTC)
}
