package scheduling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calpilot/internal/calendar"
)

func actions(ps []Proposal) []Action {
	out := make([]Action, len(ps))
	for i, p := range ps {
		out[i] = p.Action
	}
	return out
}

func TestProposeNoConflicts(t *testing.T) {
	s := newScheduler(twoEventDay()...)
	newEv := calendar.NewEvent("Review", at(day, 11, 0), at(day, 12, 0))

	for _, strategy := range []Strategy{StrategyMinimizeMoves, StrategyRespectPriority, StrategyKeepBuffer} {
		got, err := s.ProposeScheduleAdjustment(context.Background(), newEv, strategy, -1)
		require.NoError(t, err)
		require.Len(t, got, 1, strategy)
		assert.Equal(t, ActionCreate, got[0].Action)
		assert.Equal(t, newEv.Start, got[0].ProposedStart)
		assert.Equal(t, newEv.End, got[0].ProposedEnd)
	}
}

func TestProposeMinimizeMoves(t *testing.T) {
	fixed := ev("fixed", "Board", day, 10, 30, 11, 0)
	fixed.IsMovable = false
	s := newScheduler(ev("m", "1:1", day, 10, 0, 10, 30), fixed)
	ctx := context.Background()

	newEv := calendar.NewEvent("Planning", at(day, 10, 0), at(day, 11, 30))
	got, err := s.ProposeScheduleAdjustment(ctx, newEv, StrategyMinimizeMoves, -1)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionMove, ActionConflict}, actions(got))

	move := got[0]
	assert.Equal(t, "m", move.EventID)
	assert.Equal(t, at(day, 11, 30), move.ProposedStart)
	assert.Equal(t, at(day, 12, 0), move.ProposedEnd)
	assert.Contains(t, move.Reason, "+1h30m later")

	assert.Equal(t, "fixed", got[1].EventID)
	assert.True(t, got[1].ProposedStart.IsZero())
	assert.Contains(t, got[1].Reason, "not movable")
}

func TestProposeAllMovedPrependsCreate(t *testing.T) {
	s := newScheduler(
		ev("a", "A", day, 10, 0, 10, 30),
		ev("b", "B", day, 10, 45, 11, 15),
	)
	newEv := calendar.NewEvent("Planning", at(day, 10, 0), at(day, 11, 0))

	got, err := s.ProposeScheduleAdjustment(context.Background(), newEv, "", -1)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionCreate, ActionMove, ActionMove}, actions(got))
	assert.Equal(t, "a", got[1].EventID)
	assert.Equal(t, "b", got[2].EventID)
	assert.Equal(t, at(day, 11, 30), got[2].ProposedEnd)
	assert.Contains(t, got[2].Reason, "+15m later")
}

func TestProposeRespectPriority(t *testing.T) {
	low := ev("low", "Low", day, 10, 0, 10, 30)
	low.Priority = 4
	same := ev("same", "Same", day, 10, 30, 11, 0)
	same.Priority = 3
	s := newScheduler(low, same)

	newEv := calendar.NewEvent("Important", at(day, 10, 0), at(day, 11, 0))
	newEv.Priority = 3

	got, err := s.ProposeScheduleAdjustment(context.Background(), newEv, StrategyRespectPriority, -1)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionMove, ActionConflict}, actions(got))
	assert.Equal(t, "low", got[0].EventID)
	assert.Contains(t, got[1].Reason, "priority 3")
}

func TestProposeKeepBuffer(t *testing.T) {
	s := newScheduler(ev("a", "A", day, 10, 0, 10, 30))
	newEv := calendar.NewEvent("Planning", at(day, 10, 0), at(day, 11, 0))
	ctx := context.Background()

	got, err := s.ProposeScheduleAdjustment(ctx, newEv, StrategyKeepBuffer, -1)
	require.NoError(t, err)
	require.Equal(t, []Action{ActionCreate, ActionMove}, actions(got))
	assert.Equal(t, at(day, 11, 15), got[1].ProposedStart)

	got, err = s.ProposeScheduleAdjustment(ctx, newEv, StrategyKeepBuffer, 30)
	require.NoError(t, err)
	assert.Equal(t, at(day, 11, 30), got[1].ProposedStart)

	// The buffer only applies to keep_buffer.
	got, err = s.ProposeScheduleAdjustment(ctx, newEv, StrategyMinimizeMoves, 30)
	require.NoError(t, err)
	assert.Equal(t, at(day, 11, 0), got[1].ProposedStart)
}

func TestProposeInvalidEvent(t *testing.T) {
	s := newScheduler()
	newEv := calendar.NewEvent("Backwards", at(day, 11, 0), at(day, 10, 0))

	_, err := s.ProposeScheduleAdjustment(context.Background(), newEv, StrategyMinimizeMoves, -1)
	var verr *calendar.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyRespectPriority, ParseStrategy("respect_priority"))
	assert.Equal(t, StrategyKeepBuffer, ParseStrategy(" KEEP_BUFFER "))
	assert.Equal(t, StrategyMinimizeMoves, ParseStrategy(""))
	assert.Equal(t, StrategyMinimizeMoves, ParseStrategy("shuffle"))
}

func TestFormatDelta(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "no change"},
		{90 * time.Minute, "+1h30m later"},
		{2 * time.Hour, "+2h later"},
		{45 * time.Minute, "+45m later"},
		{-30 * time.Minute, "-30m earlier"},
		{-25 * time.Hour, "-25h earlier"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDelta(tt.d))
	}
}

func TestProposalJSON(t *testing.T) {
	p := createProposal(calendar.NewEvent("Review", at(day, 11, 0), at(day, 12, 0)), "no conflicts")
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"action": "create",
		"title": "Review",
		"proposed_start": "2026-02-16T11:00:00",
		"proposed_end": "2026-02-16T12:00:00",
		"reason": "no conflicts"
	}`, string(data))
}
