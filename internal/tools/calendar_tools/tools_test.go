package calendar_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/teemow/calpilot/internal/assistant"
	"github.com/teemow/calpilot/internal/database"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/server"
	"github.com/teemow/calpilot/internal/testutil"
	"github.com/teemow/calpilot/internal/timeutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var readTools = []string{
	"check_conflicts",
	"find_related_events",
	"get_event",
	"get_event_context",
	"get_events",
	"get_free_slots",
	"get_persona",
	"list_changes",
	"propose_schedule_adjustment",
	"search_events",
	"suggest_optimal_times",
}

var writeTools = []string{
	"analyze_user_patterns",
	"apply_schedule_adjustment",
	"create_event",
	"delete_event",
	"undo_change",
	"update_event",
	"update_persona",
}

func newTestServer(t *testing.T, opts ...server.Option) *mcpserver.MCPServer {
	t.Helper()

	clk := testutil.FixedClock()
	db, err := database.Open(":memory:", database.WithClock(clk), database.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := assistant.New(db, db, assistant.Options{Clock: clk, Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	opts = append([]server.Option{server.WithLogger(logging.Discard())}, opts...)
	sc, err := server.NewServerContext(context.Background(), engine, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("calpilot-test", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterCalendarTools(s, sc))
	return s
}

func toolNames(s *mcpserver.MCPServer) []string {
	var names []string
	for name := range s.ListTools() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func callTool(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	tool, ok := s.ListTools()[name]
	require.True(t, ok, "tool %s is not registered", name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return tool.Handler(context.Background(), req)
}

// mustCall calls a tool that is expected to succeed and decodes its body.
func mustCall(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) map[string]any {
	t.Helper()
	result, err := callTool(t, s, name, args)
	require.NoError(t, err)
	body := decode(t, result)
	require.False(t, result.IsError, "%s failed: %v", name, body)
	return body
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return body
}

func createEvent(t *testing.T, s *mcpserver.MCPServer, args map[string]any) (id, changeSetID string) {
	t.Helper()
	body := mustCall(t, s, "create_event", args)
	event := body["event"].(map[string]any)
	return event["id"].(string), body["changeset_id"].(string)
}

func TestRegisterCalendarTools(t *testing.T) {
	all := append(append([]string{}, readTools...), writeTools...)
	sort.Strings(all)

	tests := []struct {
		name     string
		readOnly bool
		want     []string
	}{
		{name: "read-write", readOnly: false, want: all},
		{name: "read-only", readOnly: true, want: readTools},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, server.WithReadOnly(tt.readOnly))
			assert.Equal(t, tt.want, toolNames(s))
		})
	}
}

func TestRegisterCalendarTools_RequiresContext(t *testing.T) {
	s := mcpserver.NewMCPServer("calpilot-test", "test")
	assert.Error(t, RegisterCalendarTools(s, nil))
}

func TestEventTools_CreateUpdateUndo(t *testing.T) {
	s := newTestServer(t)

	id, createCS := createEvent(t, s, map[string]any{
		"title":     "Design review",
		"start":     "2026-02-16T10:00:00",
		"end":       "2026-02-16T11:00:00",
		"category":  "Meeting",
		"tags":      []any{"Design", "review"},
		"priority":  2.0,
		"reminders": []any{10.0},
	})
	assert.NotEmpty(t, createCS)

	got := mustCall(t, s, "get_event", map[string]any{"eventId": id})
	assert.Equal(t, "Design review", got["title"])
	assert.Equal(t, "2026-02-16T10:00:00", got["start"])
	assert.Equal(t, "meeting", got["category"])
	assert.Equal(t, []any{"design", "review"}, got["tags"])
	assert.Equal(t, 2.0, got["priority"])

	updated := mustCall(t, s, "update_event", map[string]any{
		"eventId": id,
		"title":   "Design review (moved)",
		"start":   "2026-02-16T14:00:00",
		"end":     "2026-02-16T15:00:00",
	})
	updateCS := updated["changeset_id"].(string)
	assert.NotEqual(t, createCS, updateCS)
	assert.Equal(t, "2026-02-16T14:00:00", updated["event"].(map[string]any)["start"])

	undone := mustCall(t, s, "undo_change", map[string]any{"changeSetId": updateCS})
	assert.Equal(t, true, undone["success"])

	got = mustCall(t, s, "get_event", map[string]any{"eventId": id})
	assert.Equal(t, "Design review", got["title"])
	assert.Equal(t, "2026-02-16T10:00:00", got["start"])

	// A changeset is undone once.
	result, err := callTool(t, s, "undo_change", map[string]any{"changeSetId": updateCS})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, decode(t, result)["error"], "no pending changeset")

	changes := mustCall(t, s, "list_changes", nil)
	assert.Equal(t, 2.0, changes["count"])
	assert.Equal(t, true, changes["full_undo"])
}

func TestEventTools_CreateFailures(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name      string
		args      map[string]any
		wantError string
	}{
		{
			name:      "missing title",
			args:      map[string]any{"start": "2026-02-16T10:00:00", "end": "2026-02-16T11:00:00"},
			wantError: "title is required",
		},
		{
			name:      "end before start",
			args:      map[string]any{"title": "Oops", "start": "2026-02-16T11:00:00", "end": "2026-02-16T10:00:00"},
			wantError: "must be before end",
		},
		{
			name:      "unknown category",
			args:      map[string]any{"title": "Oops", "start": "2026-02-16T10:00:00", "end": "2026-02-16T11:00:00", "category": "party"},
			wantError: "unknown category",
		},
		{
			name:      "priority out of range",
			args:      map[string]any{"title": "Oops", "start": "2026-02-16T10:00:00", "end": "2026-02-16T11:00:00", "priority": 9.0},
			wantError: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := callTool(t, s, "create_event", tt.args)
			require.NoError(t, err)
			require.True(t, result.IsError)
			body := decode(t, result)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.wantError)
		})
	}
}

func TestEventTools_MalformedDateFailsCall(t *testing.T) {
	s := newTestServer(t)

	_, err := callTool(t, s, "create_event", map[string]any{
		"title": "Standup",
		"start": "2026-13-01",
		"end":   "2026-02-16T11:00:00",
	})
	var format *timeutil.FormatError
	assert.True(t, errors.As(err, &format), "got %v", err)

	_, err = callTool(t, s, "get_events", map[string]any{"start": "yesterday", "end": "2026-02-17"})
	assert.True(t, errors.As(err, &format), "got %v", err)
}

func TestEventTools_GetEventsFilter(t *testing.T) {
	s := newTestServer(t)

	createEvent(t, s, map[string]any{"title": "Sync", "start": "2026-02-16T09:00:00", "end": "2026-02-16T09:30:00", "category": "meeting"})
	createEvent(t, s, map[string]any{"title": "Write", "start": "2026-02-16T10:00:00", "end": "2026-02-16T12:00:00", "tags": "focus"})
	createEvent(t, s, map[string]any{"title": "Next day", "start": "2026-02-17T10:00:00", "end": "2026-02-17T11:00:00"})

	all := mustCall(t, s, "get_events", map[string]any{"start": "2026-02-16", "end": "2026-02-17"})
	assert.Equal(t, 2.0, all["count"])

	meetings := mustCall(t, s, "get_events", map[string]any{"start": "2026-02-16", "end": "2026-02-18", "category": "meeting"})
	assert.Equal(t, 1.0, meetings["count"])

	focus := mustCall(t, s, "get_events", map[string]any{"start": "2026-02-16", "end": "2026-02-18", "tags": []any{"focus"}})
	require.Equal(t, 1.0, focus["count"])
	assert.Equal(t, "Write", focus["events"].([]any)[0].(map[string]any)["title"])

	found := mustCall(t, s, "search_events", map[string]any{"query": "next"})
	assert.Equal(t, 1.0, found["count"])
}

func TestEventTools_GetEventNotFound(t *testing.T) {
	s := newTestServer(t)

	result, err := callTool(t, s, "get_event", map[string]any{"eventId": "missing"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "event not found: missing", decode(t, result)["error"])
}

func TestEventTools_DeleteBatch(t *testing.T) {
	s := newTestServer(t)

	a, _ := createEvent(t, s, map[string]any{"title": "A", "start": "2026-02-16T09:00:00", "end": "2026-02-16T10:00:00"})
	b, _ := createEvent(t, s, map[string]any{"title": "B", "start": "2026-02-16T11:00:00", "end": "2026-02-16T12:00:00"})

	result, err := callTool(t, s, "delete_event", map[string]any{"eventId": []any{a, "missing", b}})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	body := decode(t, result)
	assert.Equal(t, 3.0, body["total"])
	assert.Equal(t, 2.0, body["successful"])
	assert.Equal(t, 1.0, body["failed"])

	results := body["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "success", first["status"])
	deleteCS := first["changeset_id"].(string)
	assert.NotEmpty(t, deleteCS)
	assert.Equal(t, "event not found: missing", results[1].(map[string]any)["error"])
	assert.Len(t, body["changeset_ids"], 2)

	mustCall(t, s, "undo_change", map[string]any{"changeSetId": deleteCS})
	restored := mustCall(t, s, "get_event", map[string]any{"eventId": a})
	assert.Equal(t, "A", restored["title"])
}

func TestEventTools_DeleteSingle(t *testing.T) {
	s := newTestServer(t)

	id, _ := createEvent(t, s, map[string]any{"title": "A", "start": "2026-02-16T09:00:00", "end": "2026-02-16T10:00:00"})

	body := mustCall(t, s, "delete_event", map[string]any{"eventId": id})
	assert.Equal(t, id, body["event_id"])
	assert.NotEmpty(t, body["changeset_id"])

	result, err := callTool(t, s, "delete_event", map[string]any{"eventId": id})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, false, decode(t, result)["success"])
}

func TestSchedulingTools_ConflictsAndSlots(t *testing.T) {
	s := newTestServer(t)

	createEvent(t, s, map[string]any{"title": "Standup", "start": "2026-02-16T09:00:00", "end": "2026-02-16T09:30:00"})
	createEvent(t, s, map[string]any{"title": "Review", "start": "2026-02-16T10:00:00", "end": "2026-02-16T11:00:00"})

	touching := mustCall(t, s, "check_conflicts", map[string]any{"start": "2026-02-16T11:00:00", "end": "2026-02-16T12:00:00"})
	assert.Equal(t, false, touching["has_conflicts"])

	overlapping := mustCall(t, s, "check_conflicts", map[string]any{"start": "2026-02-16T10:30:00", "end": "2026-02-16T12:00:00"})
	assert.Equal(t, true, overlapping["has_conflicts"])
	assert.Len(t, overlapping["conflicts"], 1)

	slots := mustCall(t, s, "get_free_slots", map[string]any{"date": "2026-02-16", "durationMinutes": 30.0})
	assert.Equal(t, "2026-02-16", slots["date"])
	got := slots["slots"].([]any)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-02-16T09:30:00", got[0].(map[string]any)["start"])
	assert.Equal(t, "2026-02-16T10:00:00", got[0].(map[string]any)["end"])
	assert.Equal(t, "2026-02-16T11:00:00", got[1].(map[string]any)["start"])
	assert.Equal(t, "2026-02-16T18:00:00", got[1].(map[string]any)["end"])

	narrowed := mustCall(t, s, "get_free_slots", map[string]any{
		"date": "2026-02-16", "durationMinutes": 60.0, "startTime": "09:00", "endTime": "12:00",
	})
	assert.Equal(t, 1.0, narrowed["count"])

	_, err := callTool(t, s, "get_free_slots", map[string]any{"date": "2026-02-16", "durationMinutes": 30.0, "startTime": "25:00"})
	var rng *timeutil.RangeError
	assert.True(t, errors.As(err, &rng), "got %v", err)

	result, err := callTool(t, s, "get_free_slots", map[string]any{"date": "2026-02-16", "durationMinutes": 0.0})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSchedulingTools_WorkingHoursDefault(t *testing.T) {
	s := newTestServer(t, server.WithWorkingHours("08:00", "12:00"))

	slots := mustCall(t, s, "get_free_slots", map[string]any{"date": "2026-02-16", "durationMinutes": 60.0})
	got := slots["slots"].([]any)
	require.Len(t, got, 1)
	assert.Equal(t, "2026-02-16T08:00:00", got[0].(map[string]any)["start"])
	assert.Equal(t, "2026-02-16T12:00:00", got[0].(map[string]any)["end"])
}

func TestSchedulingTools_RelatedAndContext(t *testing.T) {
	s := newTestServer(t)

	before, _ := createEvent(t, s, map[string]any{"title": "Prep", "start": "2026-02-16T08:00:00", "end": "2026-02-16T09:00:00"})
	target, _ := createEvent(t, s, map[string]any{"title": "Team sync", "start": "2026-02-16T10:00:00", "end": "2026-02-16T11:00:00"})
	createEvent(t, s, map[string]any{"title": "team lunch", "start": "2026-02-16T12:00:00", "end": "2026-02-16T13:00:00"})

	related := mustCall(t, s, "find_related_events", map[string]any{"keyword": "TEAM", "limit": 1.0})
	assert.Equal(t, 1.0, related["count"])

	around := mustCall(t, s, "get_event_context", map[string]any{"eventId": target})
	assert.Equal(t, true, around["found"])
	require.Len(t, around["before"], 1)
	assert.Equal(t, before, around["before"].([]any)[0].(map[string]any)["id"])
	assert.Len(t, around["after"], 1)

	missing := mustCall(t, s, "get_event_context", map[string]any{"eventId": "missing"})
	assert.Equal(t, false, missing["found"])
	assert.Equal(t, "event not found: missing", missing["error"])
	assert.Empty(t, missing["before"])
	assert.Empty(t, missing["after"])
}

func TestSchedulingTools_SuggestOptimalTimes(t *testing.T) {
	s := newTestServer(t)

	createEvent(t, s, map[string]any{"title": "Busy", "start": "2026-02-16T09:00:00", "end": "2026-02-16T12:00:00"})

	body := mustCall(t, s, "suggest_optimal_times", map[string]any{
		"durationMinutes": 60.0,
		"preferredDates":  []any{"2026-02-16", "2026-02-17"},
		"constraints": map[string]any{
			"time_range":     map[string]any{"start": "09:00", "end": "17:00"},
			"buffer_minutes": 15.0,
		},
	})
	assert.Equal(t, false, body["persona_used"])
	suggestions := body["suggestions"].([]any)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 5)

	var prev float64 = 101
	for _, raw := range suggestions {
		sug := raw.(map[string]any)
		score := sug["score"].(float64)
		assert.LessOrEqual(t, score, prev)
		prev = score
	}

	_, err := callTool(t, s, "suggest_optimal_times", map[string]any{
		"durationMinutes": 60.0,
		"preferredDates":  []any{"2026-02-31"},
	})
	var format *timeutil.FormatError
	assert.True(t, errors.As(err, &format), "got %v", err)

	result, err := callTool(t, s, "suggest_optimal_times", map[string]any{
		"durationMinutes": 60.0,
		"preferredDates":  []any{"2026-02-16"},
		"constraints":     map[string]any{"avoid_categories": []any{"party"}},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSchedulingTools_ProposeAndApply(t *testing.T) {
	s := newTestServer(t)

	review, _ := createEvent(t, s, map[string]any{"title": "Review", "start": "2026-02-16T10:00:00", "end": "2026-02-16T11:00:00"})
	createEvent(t, s, map[string]any{"title": "Board", "start": "2026-02-16T15:00:00", "end": "2026-02-16T16:00:00", "isMovable": false})

	free := mustCall(t, s, "propose_schedule_adjustment", map[string]any{
		"title": "Planning", "start": "2026-02-16T13:00:00", "end": "2026-02-16T14:00:00",
	})
	proposals := free["proposals"].([]any)
	require.Len(t, proposals, 1)
	assert.Equal(t, "create", proposals[0].(map[string]any)["action"])

	blocked, err := callTool(t, s, "apply_schedule_adjustment", map[string]any{
		"title": "Offsite", "start": "2026-02-16T15:30:00", "end": "2026-02-16T16:30:00",
	})
	require.NoError(t, err)
	assert.True(t, blocked.IsError)
	assert.Contains(t, decode(t, blocked)["error"], "cannot be moved: Board")

	applied := mustCall(t, s, "apply_schedule_adjustment", map[string]any{
		"title": "Planning", "start": "2026-02-16T09:30:00", "end": "2026-02-16T10:30:00",
		"strategy": "keep_buffer", "bufferMinutes": 10.0,
	})
	assert.Equal(t, true, applied["success"])
	assert.Len(t, applied["changeset_ids"], 2)

	moved := mustCall(t, s, "get_event", map[string]any{"eventId": review})
	assert.Equal(t, "2026-02-16T10:40:00", moved["start"])
	assert.Equal(t, "2026-02-16T11:40:00", moved["end"])
}

func TestPersonaTools(t *testing.T) {
	s := newTestServer(t)

	result, err := callTool(t, s, "get_persona", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, decode(t, result)["error"], "no persona exists yet")

	result, err = callTool(t, s, "update_persona", map[string]any{"schedulingStyle": "aggressive"})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	for day := 9; day <= 13; day++ {
		date := fmt.Sprintf("2026-02-%02d", day)
		createEvent(t, s, map[string]any{"title": "Standup", "start": date + "T09:30:00", "end": date + "T09:45:00"})
		createEvent(t, s, map[string]any{"title": "Lunch", "start": date + "T12:00:00", "end": date + "T13:00:00"})
	}

	analyzed := mustCall(t, s, "analyze_user_patterns", nil)
	assert.Equal(t, true, analyzed["success"])
	assert.NotEmpty(t, analyzed["summary"])

	updated := mustCall(t, s, "update_persona", map[string]any{
		"reason":           "starts earlier now",
		"workStart":        "08:00",
		"schedulingStyle":  "Aggressive",
		"bufferPreference": 5.0,
		"routines": []any{
			map[string]any{"keyword": "gym", "dayOfWeek": []any{1.0, 3.0}, "typicalStart": "18:00", "typicalEnd": "19:00", "confidence": 0.8},
		},
	})
	p := updated["persona"].(map[string]any)
	assert.Equal(t, "aggressive", p["schedulingStyle"])
	assert.Equal(t, "08:00", p["activeHours"].(map[string]any)["workStart"])
	routines := p["routines"].([]any)
	require.Len(t, routines, 1)
	assert.Equal(t, "gym", routines[0].(map[string]any)["keyword"])

	result, err = callTool(t, s, "update_persona", map[string]any{"workStart": "7am"})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = callTool(t, s, "update_persona", map[string]any{"routines": "gym"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, decode(t, result)["error"], "routines must be")

	current := mustCall(t, s, "get_persona", nil)
	assert.Equal(t, "aggressive", current["persona"].(map[string]any)["schedulingStyle"])
}
