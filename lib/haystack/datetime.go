package haystack

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// DateTime
// --------------------------------------------------------------------------

// DateTime is an instant with an associated IANA time zone name. The engine
// works in millisecond precision throughout; constructors truncate.
//
// The zone name is the city portion of the IANA identifier ("New_York"),
// matching the convention of the surrounding platform. Zone resolution tries
// the short form under every continent prefix and falls back to UTC.
type DateTime struct {
	ts time.Time
	tz string
}

// continents tried when resolving a short zone name to an IANA location.
var continents = []string{
	"America", "Europe", "Asia", "Africa", "Australia", "Pacific",
	"Atlantic", "Indian", "Antarctica",
}

// LoadTZ resolves a short zone name ("New_York", "Berlin", "UTC") to a
// time.Location. Full IANA names ("America/New_York") are accepted too.
func LoadTZ(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	for _, c := range continents {
		if loc, err := time.LoadLocation(c + "/" + tz); err == nil {
			return loc, nil
		}
	}
	return nil, fmt.Errorf("unknown time zone %q", tz)
}

// tzName derives the short zone name from a location.
func tzName(loc *time.Location) string {
	s := loc.String()
	if s == "UTC" || s == "Local" || s == "" {
		return "UTC"
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[i+1:]
		}
	}
	return s
}

// NewDateTime creates a DateTime from a time.Time, deriving the zone name
// from the time's location and truncating to millisecond precision.
func NewDateTime(t time.Time) DateTime {
	return DateTime{ts: t.Truncate(time.Millisecond), tz: tzName(t.Location())}
}

// Now returns the current instant in UTC, millisecond precision.
func Now() DateTime {
	return DateTime{ts: time.Now().UTC().Truncate(time.Millisecond), tz: "UTC"}
}

// FromUnixMilli creates a DateTime from epoch milliseconds in the given zone.
// An unresolvable zone falls back to UTC.
func FromUnixMilli(ms int64, tz string) DateTime {
	loc, err := LoadTZ(tz)
	if err != nil {
		loc, tz = time.UTC, "UTC"
	}
	return DateTime{ts: time.UnixMilli(ms).In(loc), tz: tz}
}

func (DateTime) Kind() Kind { return KindDateTime }

func (d DateTime) eq(o Val) bool {
	od := o.(DateTime)
	return d.ts.Equal(od.ts) && d.tz == od.tz
}

// Time returns the underlying time.Time.
func (d DateTime) Time() time.Time { return d.ts }

// TZ returns the short zone name.
func (d DateTime) TZ() string { return d.tz }

// UnixMilli returns the instant as epoch milliseconds.
func (d DateTime) UnixMilli() int64 { return d.ts.UnixMilli() }

// IsZero reports whether this is the zero DateTime.
func (d DateTime) IsZero() bool { return d.ts.IsZero() }

// Same reports whether two date-times denote the same instant, ignoring the
// zone name. Used for mod comparison in optimistic concurrency checks.
func (d DateTime) Same(o DateTime) bool { return d.ts.Equal(o.ts) }

// Before reports whether d is strictly before o.
func (d DateTime) Before(o DateTime) bool { return d.ts.Before(o.ts) }

// After reports whether d is strictly after o.
func (d DateTime) After(o DateTime) bool { return d.ts.After(o.ts) }

// AddMillis returns the instant shifted by n milliseconds, same zone.
func (d DateTime) AddMillis(n int64) DateTime {
	return DateTime{ts: d.ts.Add(time.Duration(n) * time.Millisecond), tz: d.tz}
}

// In converts the instant into the given short zone name. An unresolvable
// zone returns the receiver unchanged.
func (d DateTime) In(tz string) DateTime {
	loc, err := LoadTZ(tz)
	if err != nil {
		return d
	}
	return DateTime{ts: d.ts.In(loc), tz: tz}
}

func (d DateTime) String() string {
	return d.ts.Format("2006-01-02T15:04:05.000Z07:00") + " " + d.tz
}

// --------------------------------------------------------------------------
// Date
// --------------------------------------------------------------------------

// Date is a calendar date with no time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (Date) Kind() Kind { return KindDate }

func (d Date) eq(o Val) bool { return d == o.(Date) }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// --------------------------------------------------------------------------
// Time
// --------------------------------------------------------------------------

// Time is a time of day with millisecond precision and no date or zone.
type Time struct {
	Hour int
	Min  int
	Sec  int
	Ms   int
}

func (Time) Kind() Kind { return KindTime }

func (t Time) eq(o Val) bool { return t == o.(Time) }

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Min, t.Sec, t.Ms)
}
