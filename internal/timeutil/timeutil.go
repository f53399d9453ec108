package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LocalLayout is the zone-less timestamp layout used on the wire.
const LocalLayout = "2006-01-02T15:04:05"

// DateLayout is the layout of a bare calendar date.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	LocalLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// FormatError reports malformed date or clock input.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid date/time %q: %s", e.Input, e.Reason)
}

// RangeError reports a clock component outside its valid range.
type RangeError struct {
	Input string
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid time %q: %s %d out of range [%d,%d]", e.Input, e.Field, e.Value, e.Min, e.Max)
}

// ParseDate parses either a bare date (local midnight) or a full local
// timestamp in the process-local zone.
func ParseDate(s string) (time.Time, error) {
	return ParseDateIn(s, time.Local)
}

// ParseDateIn is ParseDate with an explicit location.
func ParseDateIn(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &FormatError{Input: s, Reason: "empty"}
	}
	if len(s) <= len(DateLayout) {
		return parseBareDate(s, loc)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	// Offsets are accepted but only the wall clock is kept.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return WallClock(t, loc), nil
	}

	datePart := s
	if i := strings.IndexAny(s, "T "); i > 0 {
		datePart = s[:i]
	}
	if _, err := parseBareDate(datePart, loc); err != nil {
		return time.Time{}, &FormatError{Input: s, Reason: err.(*FormatError).Reason}
	}
	return time.Time{}, &FormatError{Input: s, Reason: "unrecognized time of day"}
}

func parseBareDate(s string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return time.Time{}, &FormatError{Input: s, Reason: "expected YYYY-MM-DD"}
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || p == "" || strings.HasPrefix(p, "+") || strings.HasPrefix(p, "-") {
			return time.Time{}, &FormatError{Input: s, Reason: fmt.Sprintf("non-numeric component %q", p)}
		}
		nums[i] = n
	}
	year, month, day := nums[0], nums[1], nums[2]
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes overflow; reject anything that rolled over.
	if month < 1 || month > 12 || t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, &FormatError{Input: s, Reason: "not a valid calendar date"}
	}
	return t, nil
}

// ParseClock parses HH:MM into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, &FormatError{Input: s, Reason: "expected HH:MM"}
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, &FormatError{Input: s, Reason: "non-numeric hour"}
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, &FormatError{Input: s, Reason: "non-numeric minute"}
	}
	if hour < 0 || hour > 23 {
		return 0, 0, &RangeError{Input: s, Field: "hour", Value: hour, Min: 0, Max: 23}
	}
	if minute < 0 || minute > 59 {
		return 0, 0, &RangeError{Input: s, Field: "minute", Value: minute, Min: 0, Max: 59}
	}
	return hour, minute, nil
}

// ClockMinutes parses HH:MM into minutes since midnight.
func ClockMinutes(s string) (int, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// FormatLocal renders t as YYYY-MM-DDTHH:MM:SS in its own location.
func FormatLocal(t time.Time) string {
	return t.Format(LocalLayout)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", (minutes/60)%24, minutes%60)
}

// MinuteOfDay returns the wall-clock minutes since midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At returns the instant on date's calendar day at minutes since midnight.
func At(date time.Time, minutes int) time.Time {
	return StartOfDay(date).Add(time.Duration(minutes) * time.Minute)
}

// WallClock re-expresses t's wall-clock reading in loc, dropping its offset.
func WallClock(t time.Time, loc *time.Location) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, 0, loc)
}

// Overlaps is the strict open-interval test: touching boundaries do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
