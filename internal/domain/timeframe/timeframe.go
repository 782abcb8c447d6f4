// Package timeframe converts instants into calendar windows (day, week,
// month, year) of a single fixed operating timezone.
//
// Every window is half-open: [Start, End). End is the start of the following
// window, so adjacent windows never overlap and never leave a gap.
package timeframe

import (
	"strings"
	"time"
	_ "time/tzdata" // operating zone must resolve on hosts without zoneinfo

	"github.com/go-faster/errors"
)

// DefaultZone is the operating timezone of the restaurant.
const DefaultZone = "Asia/Ho_Chi_Minh"

// Granularity selects the calendar unit of a window.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
	Yearly  Granularity = "yearly"
)

// ErrInvalidGranularity is returned by ParseGranularity for unknown values.
var ErrInvalidGranularity = errors.New("invalid timeframe granularity")

// ParseGranularity parses a case-insensitive granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Daily, Weekly, Monthly, Yearly:
		return g, nil
	default:
		return "", errors.Wrapf(ErrInvalidGranularity, "%q", s)
	}
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Zone anchors window arithmetic to one location.
type Zone struct {
	loc *time.Location
}

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, errors.Wrapf(err, "load zone %q", name)
	}
	return Zone{loc: loc}, nil
}

// NewZone wraps an already resolved location.
func NewZone(loc *time.Location) Zone {
	return Zone{loc: loc}
}

// Location returns the underlying location, UTC for the zero Zone.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// In converts t into the zone.
func (z Zone) In(t time.Time) time.Time {
	return t.In(z.Location())
}

// Start returns the first instant of the window containing t. Weeks start on
// Monday.
func (z Zone) Start(t time.Time, g Granularity) time.Time {
	t = z.In(t)
	y, m, d := t.Date()
	switch g {
	case Weekly:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, z.Location())
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, z.Location())
	case Yearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, z.Location())
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, z.Location())
	}
}

// End returns the exclusive end of the window containing t, which is the
// start of the next window.
func (z Zone) End(t time.Time, g Granularity) time.Time {
	start := z.Start(t, g)
	y, m, d := start.Date()
	switch g {
	case Weekly:
		return time.Date(y, m, d+7, 0, 0, 0, 0, z.Location())
	case Monthly:
		return time.Date(y, m+1, 1, 0, 0, 0, 0, z.Location())
	case Yearly:
		return time.Date(y+1, time.January, 1, 0, 0, 0, 0, z.Location())
	default:
		return time.Date(y, m, d+1, 0, 0, 0, 0, z.Location())
	}
}

// WindowOf returns the full window containing t.
func (z Zone) WindowOf(t time.Time, g Granularity) Window {
	return Window{Start: z.Start(t, g), End: z.End(t, g)}
}

// Same reports whether a and b fall in the same window.
func (z Zone) Same(a, b time.Time, g Granularity) bool {
	return z.Start(a, g).Equal(z.Start(b, g))
}

// Shift moves t by n windows. Month and year shifts clamp the day of month,
// so 31 March shifted back one month is 29 February in a leap year.
func (z Zone) Shift(t time.Time, g Granularity, n int) time.Time {
	t = z.In(t)
	switch g {
	case Weekly:
		return t.AddDate(0, 0, 7*n)
	case Monthly:
		return addMonthsClamped(t, n)
	case Yearly:
		return addMonthsClamped(t, 12*n)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Previous returns the full window preceding the one containing t.
func (z Zone) Previous(t time.Time, g Granularity) Window {
	return z.WindowOf(z.Shift(t, g, -1), g)
}

// Current returns the running window from the start of now's window through
// to, inclusive.
func (z Zone) Current(now, to time.Time, g Granularity) Window {
	return Window{Start: z.Start(now, g), End: to.Add(time.Nanosecond)}
}

// Buckets splits the window containing t into chart columns: 24 hours for a
// day, 7 days for a week, one day per day of month, 12 months for a year.
func (z Zone) Buckets(t time.Time, g Granularity) []Window {
	start := z.Start(t, g)
	end := z.End(t, g)

	step := func(b time.Time) time.Time { return b.AddDate(0, 0, 1) }
	switch g {
	case Daily:
		step = func(b time.Time) time.Time {
			y, m, d := b.Date()
			return time.Date(y, m, d, b.Hour()+1, 0, 0, 0, z.Location())
		}
	case Yearly:
		step = func(b time.Time) time.Time { return b.AddDate(0, 1, 0) }
	}

	var out []Window
	for b := start; b.Before(end); {
		next := step(b)
		out = append(out, Window{Start: b, End: next})
		b = next
	}
	return out
}

func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
