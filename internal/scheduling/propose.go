package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/timeutil"
)

// Strategy selects how conflicts are resolved by ProposeScheduleAdjustment.
type Strategy string

const (
	StrategyMinimizeMoves   Strategy = "minimize_moves"
	StrategyRespectPriority Strategy = "respect_priority"
	StrategyKeepBuffer      Strategy = "keep_buffer"
)

// ParseStrategy maps s to a strategy; unknown or empty values fall back to
// StrategyMinimizeMoves.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyRespectPriority:
		return StrategyRespectPriority
	case StrategyKeepBuffer:
		return StrategyKeepBuffer
	default:
		return StrategyMinimizeMoves
	}
}

const (
	// DefaultKeepBufferMinutes is the gap keep_buffer leaves after the new event.
	DefaultKeepBufferMinutes = 15

	proposalFetchMargin = 2 * time.Hour
)

// Action is what a proposal asks for.
type Action string

const (
	ActionCreate   Action = "create"
	ActionMove     Action = "move"
	ActionConflict Action = "conflict"
)

// Proposal is one step of a suggested rearrangement.
type Proposal struct {
	Action        Action
	EventID       string
	Title         string
	OriginalStart time.Time
	OriginalEnd   time.Time
	ProposedStart time.Time
	ProposedEnd   time.Time
	Reason        string
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return timeutil.FormatLocal(t)
}

func (p Proposal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action        Action `json:"action"`
		EventID       string `json:"event_id,omitempty"`
		Title         string `json:"title"`
		OriginalStart string `json:"original_start,omitempty"`
		OriginalEnd   string `json:"original_end,omitempty"`
		ProposedStart string `json:"proposed_start,omitempty"`
		ProposedEnd   string `json:"proposed_end,omitempty"`
		Reason        string `json:"reason"`
	}{
		Action:        p.Action,
		EventID:       p.EventID,
		Title:         p.Title,
		OriginalStart: formatOptional(p.OriginalStart),
		OriginalEnd:   formatOptional(p.OriginalEnd),
		ProposedStart: formatOptional(p.ProposedStart),
		ProposedEnd:   formatOptional(p.ProposedEnd),
		Reason:        p.Reason,
	})
}

// FormatDelta renders a signed shift such as "+1h30m later" or "-30m earlier".
func FormatDelta(d time.Duration) string {
	if d == 0 {
		return "no change"
	}
	sign, word := "+", "later"
	if d < 0 {
		sign, word, d = "-", "earlier", -d
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)

	var b strings.Builder
	b.WriteString(sign)
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 || h == 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	b.WriteString(" " + word)
	return b.String()
}

func createProposal(ev calendar.Event, reason string) Proposal {
	return Proposal{
		Action:        ActionCreate,
		Title:         ev.Title,
		ProposedStart: ev.Start,
		ProposedEnd:   ev.End,
		Reason:        reason,
	}
}

func moveProposal(c calendar.Event, start time.Time, newTitle string) Proposal {
	end := start.Add(c.Duration())
	return Proposal{
		Action:        ActionMove,
		EventID:       c.ID,
		Title:         c.Title,
		OriginalStart: c.Start,
		OriginalEnd:   c.End,
		ProposedStart: start,
		ProposedEnd:   end,
		Reason:        fmt.Sprintf("move %q %s to make room for %q", c.Title, FormatDelta(start.Sub(c.Start)), newTitle),
	}
}

func conflictProposal(c calendar.Event, reason string) Proposal {
	return Proposal{
		Action:        ActionConflict,
		EventID:       c.ID,
		Title:         c.Title,
		OriginalStart: c.Start,
		OriginalEnd:   c.End,
		Reason:        reason,
	}
}

// ProposeScheduleAdjustment plans how newEvent could be fitted in. It never
// changes the calendar. bufferMinutes applies to keep_buffer only; values
// below zero use DefaultKeepBufferMinutes.
func (s *Scheduler) ProposeScheduleAdjustment(ctx context.Context, newEvent calendar.Event, strategy Strategy, bufferMinutes int) ([]Proposal, error) {
	if !newEvent.End.After(newEvent.Start) {
		return nil, &calendar.ValidationError{Field: "end", Message: "must be after start"}
	}
	if newEvent.Priority == 0 {
		newEvent.Priority = calendar.DefaultPriority
	}
	if bufferMinutes < 0 {
		bufferMinutes = DefaultKeepBufferMinutes
	}

	fetched, err := s.events.GetEvents(ctx, newEvent.Start.Add(-proposalFetchMargin), newEvent.End.Add(proposalFetchMargin), calendar.Filter{})
	if err != nil {
		return nil, err
	}
	conflicts := overlapping(fetched, newEvent.Start, newEvent.End)
	if len(conflicts) == 0 {
		return []Proposal{createProposal(newEvent, "no conflicts")}, nil
	}

	moveStart := newEvent.End
	if strategy == StrategyKeepBuffer {
		moveStart = newEvent.End.Add(time.Duration(bufferMinutes) * time.Minute)
	}

	proposals := make([]Proposal, 0, len(conflicts)+1)
	allMoved := true
	for _, c := range conflicts {
		switch {
		case !c.IsMovable:
			allMoved = false
			proposals = append(proposals, conflictProposal(c,
				fmt.Sprintf("%q is not movable (priority %d, new event priority %d)", c.Title, c.Priority, newEvent.Priority)))
		case strategy == StrategyRespectPriority && c.Priority <= newEvent.Priority:
			allMoved = false
			proposals = append(proposals, conflictProposal(c,
				fmt.Sprintf("%q has priority %d, not lower than new event priority %d", c.Title, c.Priority, newEvent.Priority)))
		default:
			proposals = append(proposals, moveProposal(c, moveStart, newEvent.Title))
		}
	}

	if allMoved {
		proposals = append([]Proposal{createProposal(newEvent, "all conflicts can be moved")}, proposals...)
	}
	return proposals, nil
}
