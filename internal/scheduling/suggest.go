package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/persona"
	"github.com/teemow/calpilot/internal/timeutil"
)

// MaxSuggestions caps SuggestOptimalTimes results.
const MaxSuggestions = 5

// ClockRange is an HH:MM window within a day.
type ClockRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Constraints narrow a suggestion search.
type Constraints struct {
	TimeRange *ClockRange `json:"time_range,omitempty"`
	// BufferMinutes pads every existing event on both sides.
	BufferMinutes int `json:"buffer_minutes,omitempty"`
	// AvoidCategories lists categories whose events are left out of the sweep.
	AvoidCategories []calendar.Category `json:"avoid_categories,omitempty"`
}

// Suggestion is a scored candidate start.
type Suggestion struct {
	Start  time.Time
	End    time.Time
	Score  int
	Reason string
}

func (s Suggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start  string `json:"start"`
		End    string `json:"end"`
		Score  int    `json:"score"`
		Reason string `json:"reason"`
	}{timeutil.FormatLocal(s.Start), timeutil.FormatLocal(s.End), s.Score, s.Reason})
}

// SuggestOptimalTimes finds one candidate per free slot on each preferred
// date and returns the best MaxSuggestions by score. Ties keep date order and
// then slot order. p may be nil.
func (s *Scheduler) SuggestOptimalTimes(ctx context.Context, durationMinutes int, dates []time.Time, c Constraints, p *persona.UserPersona) ([]Suggestion, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d minutes", durationMinutes)
	}
	if c.BufferMinutes < 0 {
		return nil, fmt.Errorf("buffer must not be negative, got %d minutes", c.BufferMinutes)
	}
	var startHHMM, endHHMM string
	if c.TimeRange != nil {
		startHHMM, endHHMM = c.TimeRange.Start, c.TimeRange.End
	}

	duration := time.Duration(durationMinutes) * time.Minute
	buffer := time.Duration(c.BufferMinutes) * time.Minute

	perDate := make([][]Suggestion, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	for i, date := range dates {
		g.Go(func() error {
			windowStart, windowEnd, err := ClockWindow(date, startHHMM, endHHMM)
			if err != nil {
				return err
			}
			events, err := s.events.GetEvents(gctx, windowStart.Add(-buffer), windowEnd.Add(buffer), calendar.Filter{})
			if err != nil {
				return err
			}
			events = slices.DeleteFunc(events, func(ev calendar.Event) bool {
				return slices.Contains(c.AvoidCategories, ev.Category)
			})

			for _, slot := range sweep(windowStart, windowEnd, duration, spansOf(events, buffer)) {
				score := CalculateTimeScore(slot.Start, p)
				perDate[i] = append(perDate[i], Suggestion{
					Start:  slot.Start,
					End:    slot.Start.Add(duration),
					Score:  score,
					Reason: suggestionReason(slot, p),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := []Suggestion{}
	for _, ss := range perDate {
		all = append(all, ss...)
	}
	slices.SortStableFunc(all, func(a, b Suggestion) int { return b.Score - a.Score })
	if len(all) > MaxSuggestions {
		all = all[:MaxSuggestions]
	}

	s.logger.Debug("suggested times",
		logging.Operation("scheduling.suggest_optimal_times"),
		"dates", len(dates),
		"suggestions", len(all),
		"persona", p != nil)
	return all, nil
}

func suggestionReason(slot calendar.TimeSlot, p *persona.UserPersona) string {
	free := fmt.Sprintf("free %s-%s", timeutil.FormatClock(timeutil.MinuteOfDay(slot.Start)), timeutil.FormatClock(timeutil.MinuteOfDay(slot.End)))
	if p == nil {
		return free + " on " + timeutil.FormatDate(slot.Start) + ", scored by default working hours"
	}
	return free + " on " + timeutil.FormatDate(slot.Start) + ", scored against your " + string(p.SchedulingStyle) + " schedule"
}
