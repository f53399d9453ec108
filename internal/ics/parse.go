package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Entry is one VEVENT before recurrence expansion.
type Entry struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Categories  []string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on VEVENTs that override one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// Parse reads every VEVENT from r. Components that cannot be parsed are
// returned in skipped instead of failing the whole file.
func Parse(r io.Reader, loc *time.Location) (entries []Entry, skipped []error, err error) {
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing calendar: %w", err)
	}

	for _, ve := range cal.Events() {
		e, err := parseEvent(ve, loc)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

func property(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func parseEvent(ve *ical.VEvent, loc *time.Location) (Entry, error) {
	e := Entry{
		UID:         property(ve, ical.ComponentPropertyUniqueId),
		Summary:     property(ve, ical.ComponentPropertySummary),
		Description: property(ve, ical.ComponentPropertyDescription),
		Location:    property(ve, ical.ComponentPropertyLocation),
		RRule:       property(ve, ical.ComponentPropertyRrule),
	}
	if e.UID == "" {
		return Entry{}, errors.New("VEVENT without UID")
	}
	if cats := property(ve, ical.ComponentPropertyCategories); cats != "" {
		for _, c := range strings.Split(cats, ",") {
			if c = strings.TrimSpace(c); c != "" {
				e.Categories = append(e.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return Entry{}, fmt.Errorf("%s: missing DTSTART", e.UID)
	}
	e.AllDay = isDateValue(dtStart)

	start, err := ve.GetStartAt()
	if err != nil {
		return Entry{}, fmt.Errorf("%s: DTSTART: %w", e.UID, err)
	}
	e.Start = start.In(loc)

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		e.End = end.In(loc)
	case e.AllDay:
		e.End = e.Start.AddDate(0, 0, 1)
	default:
		return Entry{}, fmt.Errorf("%s: DTEND: %w", e.UID, err)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			if t, err := parseTime(v, paramTZ(p, loc)); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, err := parseTime(rid.Value, paramTZ(rid, loc)); err == nil {
			e.RecurrenceID = &t
		}
	}
	return e, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters[string(ical.ParameterValue)]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// paramTZ returns the location named by the TZID parameter, or fallback.
func paramTZ(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tz := p.ICalParameters[string(ical.ParameterTzid)]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return fallback
}

// parseTime handles the UTC, floating and date-only forms used by EXDATE
// and RECURRENCE-ID.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
