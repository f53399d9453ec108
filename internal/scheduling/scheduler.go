package scheduling

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/timeutil"
)

const (
	// conflictFetchMargin widens conflict queries so events straddling the
	// requested window are fetched.
	conflictFetchMargin = 24 * time.Hour

	DefaultRelatedLimit = 10
	DefaultContextHours = 3
)

// EventReader is the read side of a calendar store.
type EventReader interface {
	GetEvents(ctx context.Context, start, end time.Time, filter calendar.Filter) ([]calendar.Event, error)
	GetEventByID(ctx context.Context, id string) (*calendar.Event, error)
	GetAllEvents(ctx context.Context) ([]calendar.Event, error)
}

// Scheduler answers time questions against a calendar.
type Scheduler struct {
	events EventReader
	logger *slog.Logger
}

// New creates a Scheduler.
func New(events EventReader, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{events: events, logger: logger}
}

// overlapping keeps events strictly overlapping [start, end), in input order.
func overlapping(events []calendar.Event, start, end time.Time) []calendar.Event {
	out := []calendar.Event{}
	for _, ev := range events {
		if timeutil.Overlaps(ev.Start, ev.End, start, end) {
			out = append(out, ev)
		}
	}
	return out
}

// CheckConflicts returns events overlapping [start, end) in fetch order.
func (s *Scheduler) CheckConflicts(ctx context.Context, start, end time.Time) ([]calendar.Event, error) {
	events, err := s.events.GetEvents(ctx, start.Add(-conflictFetchMargin), end.Add(conflictFetchMargin), calendar.Filter{})
	if err != nil {
		return nil, err
	}
	conflicts := overlapping(events, start, end)
	s.logger.Debug("checked conflicts",
		logging.Operation("scheduling.check_conflicts"),
		logging.Window(start, end),
		slog.Int("fetched", len(events)),
		slog.Int("conflicts", len(conflicts)))
	return conflicts, nil
}

// FindRelatedEvents returns up to limit events whose title contains keyword,
// ignoring case, in store order. limit <= 0 uses DefaultRelatedLimit.
func (s *Scheduler) FindRelatedEvents(ctx context.Context, keyword string, limit int) ([]calendar.Event, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	events, err := s.events.GetAllEvents(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	out := []calendar.Event{}
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Title), needle) {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// EventContext is the neighbourhood of one event. A missing event is
// reported through Found and Error, never as a Go error.
type EventContext struct {
	Found  bool             `json:"found"`
	Error  string           `json:"error,omitempty"`
	Event  *calendar.Event  `json:"event,omitempty"`
	Before []calendar.Event `json:"before"`
	After  []calendar.Event `json:"after"`
}

// GetEventContext lists the events ending up to hoursBefore before the target
// starts and those starting up to hoursAfter after it ends. Events that
// overlap the target are in neither list.
func (s *Scheduler) GetEventContext(ctx context.Context, eventID string, hoursBefore, hoursAfter int) (EventContext, error) {
	result := EventContext{Before: []calendar.Event{}, After: []calendar.Event{}}

	target, err := s.events.GetEventByID(ctx, eventID)
	if err != nil {
		return result, err
	}
	if target == nil {
		result.Error = "event not found: " + eventID
		return result, nil
	}
	result.Found = true
	result.Event = target

	windowStart := target.Start.Add(-time.Duration(max(hoursBefore, 0)) * time.Hour)
	windowEnd := target.End.Add(time.Duration(max(hoursAfter, 0)) * time.Hour)
	events, err := s.events.GetEvents(ctx, windowStart, windowEnd, calendar.Filter{})
	if err != nil {
		return result, err
	}

	for _, ev := range events {
		switch {
		case ev.ID == target.ID:
		case !ev.End.After(target.Start):
			result.Before = append(result.Before, ev)
		case !ev.Start.Before(target.End):
			result.After = append(result.After, ev)
		}
	}
	return result, nil
}
