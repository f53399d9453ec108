package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/timeutil"
)

type slot struct{ start, end string }

func clocks(slots []calendar.TimeSlot) []slot {
	out := make([]slot, len(slots))
	for i, s := range slots {
		out[i] = slot{
			timeutil.FormatClock(timeutil.MinuteOfDay(s.Start)),
			timeutil.FormatClock(timeutil.MinuteOfDay(s.End)),
		}
	}
	return out
}

func TestGetFreeSlotsDefaultWindow(t *testing.T) {
	s := newScheduler(
		ev("a", "Standup", day, 9, 0, 10, 0),
		ev("b", "Lunch", day, 12, 0, 13, 0),
	)

	got, err := s.GetFreeSlots(context.Background(), day, 60, "", "")
	require.NoError(t, err)
	assert.Equal(t, []slot{{"10:00", "12:00"}, {"13:00", "18:00"}}, clocks(got))
}

func TestGetFreeSlotsErrors(t *testing.T) {
	s := newScheduler()
	ctx := context.Background()

	_, err := s.GetFreeSlots(ctx, day, 0, "", "")
	assert.Error(t, err)

	_, err = s.GetFreeSlots(ctx, day, 30, "25:00", "")
	var rangeErr *timeutil.RangeError
	assert.ErrorAs(t, err, &rangeErr)

	_, err = s.GetFreeSlots(ctx, day, 30, "ab:cd", "")
	var formatErr *timeutil.FormatError
	assert.ErrorAs(t, err, &formatErr)

	_, err = s.GetFreeSlots(ctx, day, 30, "12:00", "12:00")
	assert.Error(t, err)
}

func TestFreeSlots(t *testing.T) {
	windowStart, windowEnd := at(day, 9, 0), at(day, 18, 0)

	tests := []struct {
		name     string
		duration time.Duration
		events   []calendar.Event
		want     []slot
	}{
		{
			name:     "empty day",
			duration: time.Hour,
			want:     []slot{{"09:00", "18:00"}},
		},
		{
			name:     "short gap skipped",
			duration: time.Hour,
			events: []calendar.Event{
				ev("a", "A", day, 9, 0, 10, 0),
				ev("b", "B", day, 10, 30, 17, 30),
			},
			want: []slot{},
		},
		{
			name:     "nested and overlapping events",
			duration: 30 * time.Minute,
			events: []calendar.Event{
				ev("a", "A", day, 10, 0, 12, 0),
				ev("b", "B", day, 10, 30, 11, 0),
				ev("c", "C", day, 11, 30, 13, 0),
			},
			want: []slot{{"09:00", "10:00"}, {"13:00", "18:00"}},
		},
		{
			name:     "events outside the window edges",
			duration: 15 * time.Minute,
			events: []calendar.Event{
				ev("a", "A", day, 8, 0, 9, 30),
				ev("b", "B", day, 17, 0, 19, 0),
			},
			want: []slot{{"09:30", "17:00"}},
		},
		{
			name:     "unsorted input",
			duration: time.Hour,
			events: []calendar.Event{
				ev("b", "B", day, 14, 0, 15, 0),
				ev("a", "A", day, 9, 0, 10, 0),
			},
			want: []slot{{"10:00", "14:00"}, {"15:00", "18:00"}},
		},
		{
			name:     "exact fit",
			duration: 2 * time.Hour,
			events: []calendar.Event{
				ev("a", "A", day, 9, 0, 10, 0),
				ev("b", "B", day, 12, 0, 18, 0),
			},
			want: []slot{{"10:00", "12:00"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreeSlots(windowStart, windowEnd, tt.duration, tt.events)
			assert.Equal(t, tt.want, clocks(got))
			for _, s := range got {
				assert.GreaterOrEqual(t, s.Duration(), tt.duration)
				for _, e := range tt.events {
					assert.False(t, timeutil.Overlaps(s.Start, s.End, e.Start, e.End), "slot overlaps %s", e.ID)
				}
			}
		})
	}
}

// Every minute of the window is either busy or in a reported slot, unless it
// sits in a gap shorter than the requested duration.
func TestFreeSlotsTiling(t *testing.T) {
	events := []calendar.Event{
		ev("a", "A", day, 9, 15, 9, 45),
		ev("b", "B", day, 10, 0, 11, 0),
		ev("c", "C", day, 10, 30, 12, 10),
		ev("d", "D", day, 13, 0, 13, 20),
		ev("e", "E", day, 13, 50, 16, 0),
	}
	windowStart, windowEnd := at(day, 9, 0), at(day, 18, 0)
	duration := 30 * time.Minute
	slots := FreeSlots(windowStart, windowEnd, duration, events)

	covered := func(t0 time.Time) bool {
		for _, e := range events {
			if !t0.Before(e.Start) && t0.Before(e.End) {
				return true
			}
		}
		for _, s := range slots {
			if !t0.Before(s.Start) && t0.Before(s.End) {
				return true
			}
		}
		return false
	}

	gapStart := time.Time{}
	for t0 := windowStart; t0.Before(windowEnd); t0 = t0.Add(time.Minute) {
		if covered(t0) {
			if !gapStart.IsZero() {
				assert.Less(t, t0.Sub(gapStart), duration, "unreported gap at %s", timeutil.FormatLocal(gapStart))
				gapStart = time.Time{}
			}
			continue
		}
		if gapStart.IsZero() {
			gapStart = t0
		}
	}
	if !gapStart.IsZero() {
		assert.Less(t, windowEnd.Sub(gapStart), duration)
	}
	assert.Equal(t, []slot{{"12:10", "13:00"}, {"13:20", "13:50"}, {"16:00", "18:00"}}, clocks(slots))
}
