package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxOccurrencesPerEntry caps expansion of a single recurring VEVENT.
const MaxOccurrencesPerEntry = 2000

// Occurrence is one concrete instance of an Entry.
type Occurrence struct {
	Entry Entry
	// Instance is the start the recurrence rule produced, before any
	// override moved it.
	Instance time.Time
	Start    time.Time
	End      time.Time
}

// Expand returns the occurrences of entries intersecting [from, to).
// Overrides replace the instance whose start equals their RECURRENCE-ID.
// Entries with an unparseable RRULE are reported in skipped.
func Expand(entries []Entry, from, to time.Time) (out []Occurrence, skipped []error) {
	overrides := map[string][]Entry{}
	var bases []Entry
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		bases = append(bases, e)
	}

	for _, base := range bases {
		if base.RRule == "" {
			if intersects(base.Start, base.End, from, to) {
				out = append(out, Occurrence{Entry: base, Instance: base.Start, Start: base.Start, End: base.End})
			}
			continue
		}

		occs, err := expandRecurring(base, overrides[base.UID], from, to)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		out = append(out, occs...)
	}
	return out, skipped
}

func expandRecurring(base Entry, overrides []Entry, from, to time.Time) ([]Occurrence, error) {
	r, err := rrule.StrToRRule(base.RRule)
	if err != nil {
		return nil, fmt.Errorf("%s: RRULE %q: %w", base.UID, base.RRule, err)
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range base.ExDates {
		set.ExDate(ex.In(base.Start.Location()))
	}

	d := base.End.Sub(base.Start)
	// Instances starting before from can still reach into the window.
	starts := set.Between(from.Add(-d), to, true)
	if len(starts) > MaxOccurrencesPerEntry {
		starts = starts[:MaxOccurrencesPerEntry]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		occ := Occurrence{Entry: base, Instance: s, Start: s, End: s.Add(d)}
		if o, ok := findOverride(overrides, s); ok {
			occ = Occurrence{Entry: o, Instance: s, Start: o.Start, End: o.End}
		}
		if intersects(occ.Start, occ.End, from, to) {
			out = append(out, occ)
		}
	}
	return out, nil
}

func findOverride(overrides []Entry, start time.Time) (Entry, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Entry{}, false
}

func intersects(start, end, from, to time.Time) bool {
	return start.Before(to) && end.After(from)
}
