package scheduling

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/timeutil"
)

// Default working window for slot searches.
const (
	DefaultWindowStart = "09:00"
	DefaultWindowEnd   = "18:00"
)

// span is a busy interval.
type span struct {
	start, end time.Time
}

func spansOf(events []calendar.Event, buffer time.Duration) []span {
	out := make([]span, len(events))
	for i, ev := range events {
		out[i] = span{start: ev.Start.Add(-buffer), end: ev.End.Add(buffer)}
	}
	return out
}

// sweep emits every gap of at least duration between busy spans inside
// [windowStart, windowEnd). Spans are ordered by start first.
func sweep(windowStart, windowEnd time.Time, duration time.Duration, busy []span) []calendar.TimeSlot {
	busy = slices.Clone(busy)
	slices.SortStableFunc(busy, func(a, b span) int { return a.start.Compare(b.start) })

	slots := []calendar.TimeSlot{}
	cursor := windowStart
	for _, b := range busy {
		if b.start.After(cursor) {
			gapEnd := b.start
			if gapEnd.After(windowEnd) {
				gapEnd = windowEnd
			}
			if gapEnd.Sub(cursor) >= duration {
				slots = append(slots, calendar.TimeSlot{Start: cursor, End: gapEnd})
			}
		}
		if b.end.After(cursor) {
			cursor = b.end
		}
	}
	if windowEnd.Sub(cursor) >= duration {
		slots = append(slots, calendar.TimeSlot{Start: cursor, End: windowEnd})
	}
	return slots
}

// FreeSlots returns the gaps of at least duration between events inside
// [windowStart, windowEnd).
func FreeSlots(windowStart, windowEnd time.Time, duration time.Duration, events []calendar.Event) []calendar.TimeSlot {
	return sweep(windowStart, windowEnd, duration, spansOf(events, 0))
}

// ClockWindow resolves HH:MM bounds on date. Empty bounds use the defaults.
func ClockWindow(date time.Time, startHHMM, endHHMM string) (time.Time, time.Time, error) {
	if startHHMM == "" {
		startHHMM = DefaultWindowStart
	}
	if endHHMM == "" {
		endHHMM = DefaultWindowEnd
	}
	startMin, err := timeutil.ClockMinutes(startHHMM)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endMin, err := timeutil.ClockMinutes(endHHMM)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endMin <= startMin {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %s must be after start %s", endHHMM, startHHMM)
	}
	return timeutil.At(date, startMin), timeutil.At(date, endMin), nil
}

// GetFreeSlots finds gaps of at least durationMinutes on date within the
// HH:MM window (default 09:00-18:00).
func (s *Scheduler) GetFreeSlots(ctx context.Context, date time.Time, durationMinutes int, startHHMM, endHHMM string) ([]calendar.TimeSlot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d minutes", durationMinutes)
	}
	windowStart, windowEnd, err := ClockWindow(date, startHHMM, endHHMM)
	if err != nil {
		return nil, err
	}

	events, err := s.events.GetEvents(ctx, windowStart, windowEnd, calendar.Filter{})
	if err != nil {
		return nil, err
	}
	return FreeSlots(windowStart, windowEnd, time.Duration(durationMinutes)*time.Minute, events), nil
}
