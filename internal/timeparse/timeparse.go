// Package timeparse normalises the date and time text found in provider
// documents. Parsing never fails loudly: an unusable value is reported as
// absent and the caller drops the field.
package timeparse

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

type Precision uint8

const (
	DateTime Precision = iota + 1
	Date
)

// Instant is a parsed wall-clock value. Source systems send local times
// without a zone, so Time carries the wall clock in UTC.
type Instant struct {
	Time      time.Time
	Precision Precision
}

func (i Instant) IsZero() bool { return i.Time.IsZero() }

// Day returns the calendar day as yyyy-mm-dd.
func (i Instant) Day() string { return i.Time.Format("2006-01-02") }

func (i Instant) String() string {
	if i.Precision == Date {
		return i.Day()
	}
	return i.Time.Format("2006-01-02T15:04:05.999999999")
}

var layouts = []struct {
	layout    string
	precision Precision
}{
	// Fractional seconds are accepted by the seconds layouts when parsing.
	{"2006-01-02 15:04:05", DateTime},
	{"2006-01-02T15:04:05", DateTime},
	{time.RFC3339Nano, DateTime},
	{"2006-01-02", Date},
}

// Parse tries the known source layouts first and then a lenient parser.
func Parse(raw string) (Instant, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Instant{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return normalise(t, l.precision), true
		}
	}
	if !lenientCandidate(s) {
		return Instant{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC, dateparse.PreferMonthFirst(false))
	if err != nil {
		return Instant{}, false
	}
	p := DateTime
	if !strings.Contains(s, ":") {
		p = Date
	}
	return normalise(t, p), true
}

// Day parses raw and returns its calendar day.
func Day(raw string) (string, bool) {
	in, ok := Parse(raw)
	if !ok {
		return "", false
	}
	return in.Day(), true
}

func normalise(t time.Time, p Precision) Instant {
	if t.Location() != time.UTC {
		t = t.UTC()
	}
	if p == Date {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return Instant{Time: t, Precision: p}
}

// Bare digit runs are only accepted as yyyymmdd; dateparse would otherwise
// read them as epoch values.
func lenientCandidate(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return true
		}
	}
	return len(s) == len("20060102")
}
