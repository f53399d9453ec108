package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/scheduling"
	"github.com/teemow/calpilot/internal/server"
	"github.com/teemow/calpilot/internal/timeutil"
	"github.com/teemow/calpilot/internal/tools/common"
)

const (
	defaultRelatedLimit = 10
	defaultContextHours = 3
)

var strategyNames = []string{
	string(scheduling.StrategyMinimizeMoves),
	string(scheduling.StrategyRespectPriority),
	string(scheduling.StrategyKeepBuffer),
}

// adjustmentOptions describes the new event and strategy arguments shared by
// propose_schedule_adjustment and apply_schedule_adjustment.
func adjustmentOptions(description string) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Title of the new event"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start of the new event ("+timeFormatHint+")"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End of the new event ("+timeFormatHint+")"),
		),
		mcp.WithString("strategy",
			mcp.Description("How to resolve conflicts (default: minimize_moves)"),
			mcp.Enum(strategyNames...),
		),
		mcp.WithNumber("bufferMinutes",
			mcp.Description("Gap keep_buffer leaves after the new event (default: 15)"),
		),
	}
	return append(opts, eventFieldOptions()...)
}

// RegisterSchedulingTools registers conflict, availability and adjustment
// tools with the MCP server
func RegisterSchedulingTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	checkConflictsTool := mcp.NewTool("check_conflicts",
		mcp.WithDescription("List events overlapping a time range. Events that only touch the range do not conflict"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Range start ("+timeFormatHint+")"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("Range end ("+timeFormatHint+")"),
		),
	)
	addTool(s, sc, checkConflictsTool, true, handleCheckConflicts)

	findRelatedTool := mcp.NewTool("find_related_events",
		mcp.WithDescription("Find events whose title contains a keyword"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Case-insensitive keyword"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events (default: 10)"),
		),
	)
	addTool(s, sc, findRelatedTool, true, handleFindRelatedEvents)

	eventContextTool := mcp.NewTool("get_event_context",
		mcp.WithDescription("Show the events just before and after an event"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event"),
		),
		mcp.WithNumber("hoursBefore",
			mcp.Description("Hours to look back from the event start (default: 3)"),
		),
		mcp.WithNumber("hoursAfter",
			mcp.Description("Hours to look ahead from the event end (default: 3)"),
		),
	)
	addTool(s, sc, eventContextTool, true, handleGetEventContext)

	freeSlotsTool := mcp.NewTool("get_free_slots",
		mcp.WithDescription("Find free slots of at least the given length on a day"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Day to search (YYYY-MM-DD)"),
		),
		mcp.WithNumber("durationMinutes",
			mcp.Required(),
			mcp.Description("Minimum slot length in minutes"),
		),
		mcp.WithString("startTime",
			mcp.Description("Window start HH:MM (default: configured working hours)"),
		),
		mcp.WithString("endTime",
			mcp.Description("Window end HH:MM (default: configured working hours)"),
		),
	)
	addTool(s, sc, freeSlotsTool, true, handleGetFreeSlots)

	suggestTool := mcp.NewTool("suggest_optimal_times",
		mcp.WithDescription("Rank up to five meeting times across preferred dates using the learned persona when one exists"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("durationMinutes",
			mcp.Required(),
			mcp.Description("Meeting length in minutes"),
		),
		mcp.WithArray("preferredDates",
			mcp.Required(),
			mcp.Description("Dates to consider (YYYY-MM-DD)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("constraints",
			mcp.Description(`Optional constraints, e.g. {"time_range": {"start": "10:00", "end": "16:00"}, "buffer_minutes": 15, "avoid_categories": ["meeting"]}`),
		),
	)
	addTool(s, sc, suggestTool, true, handleSuggestOptimalTimes)

	proposeTool := mcp.NewTool("propose_schedule_adjustment",
		adjustmentOptions("Propose how to fit a new event into the calendar without changing anything")...)
	addTool(s, sc, proposeTool, true, handleProposeScheduleAdjustment)

	applyTool := mcp.NewTool("apply_schedule_adjustment",
		adjustmentOptions("Move conflicting events and create the new event as proposed. Refuses when a conflict cannot be moved. Each step gets its own changeset id")...)
	addTool(s, sc, applyTool, false, handleApplyScheduleAdjustment)
}

func handleCheckConflicts(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := common.RequiredTime(args, "start")
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}
	end, err := common.RequiredTime(args, "end")
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}

	conflicts, err := sc.Engine().CheckConflicts(ctx, start, end)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	if conflicts == nil {
		conflicts = []calendar.Event{}
	}
	return common.JSONResult(struct {
		HasConflicts bool             `json:"has_conflicts"`
		Conflicts    []calendar.Event `json:"conflicts"`
	}{len(conflicts) > 0, conflicts})
}

func handleFindRelatedEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	keyword, err := common.RequiredString(args, "keyword")
	if err != nil {
		return common.ErrorResult(err.Error())
	}
	limit, err := common.OptionalInt(args, "limit", defaultRelatedLimit)
	if err != nil {
		return common.ErrorResult(err.Error())
	}

	events, err := sc.Engine().FindRelatedEvents(ctx, keyword, limit)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	return common.JSONResult(newEventList(events))
}

func handleGetEventContext(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return common.ErrorResult(err.Error())
	}
	before, err := common.OptionalInt(args, "hoursBefore", defaultContextHours)
	if err != nil {
		return common.ErrorResult(err.Error())
	}
	after, err := common.OptionalInt(args, "hoursAfter", defaultContextHours)
	if err != nil {
		return common.ErrorResult(err.Error())
	}

	result, err := sc.Engine().GetEventContext(ctx, eventID, before, after)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	// A missing event is a normal answer here, not a failed call.
	return common.JSONResult(result)
}

// clockArg reads an HH:MM argument, falling back to def.
func clockArg(args map[string]any, name, def string) (string, error) {
	v := common.OptionalString(args, name, def)
	if _, _, err := timeutil.ParseClock(v); err != nil {
		return "", err
	}
	return v, nil
}

func positiveDuration(args map[string]any) (int, error) {
	minutes, err := common.RequiredInt(args, "durationMinutes")
	if err != nil {
		return 0, err
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("durationMinutes must be positive, got %d", minutes)
	}
	return minutes, nil
}

func handleGetFreeSlots(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	date, err := common.RequiredTime(args, "date")
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}
	duration, err := positiveDuration(args)
	if err != nil {
		return common.ErrorResult(err.Error())
	}
	defStart, defEnd := sc.WorkingHours()
	startHHMM, err := clockArg(args, "startTime", defStart)
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}
	endHHMM, err := clockArg(args, "endTime", defEnd)
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}

	slots, err := sc.Engine().GetFreeSlots(ctx, date, duration, startHHMM, endHHMM)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	if slots == nil {
		slots = []calendar.TimeSlot{}
	}
	return common.JSONResult(struct {
		Date  string              `json:"date"`
		Slots []calendar.TimeSlot `json:"slots"`
		Count int                 `json:"count"`
	}{timeutil.FormatDate(date), slots, len(slots)})
}

// constraintsArg decodes the constraints object and validates its clock
// times so malformed values fail the call like other time arguments.
func constraintsArg(args map[string]any) (scheduling.Constraints, error) {
	var c scheduling.Constraints
	raw, ok := args["constraints"]
	if !ok || raw == nil {
		return c, nil
	}
	body, err := json.Marshal(raw)
	if err != nil {
		return c, &common.ArgTypeError{Name: "constraints", Want: "an object"}
	}
	if err := json.Unmarshal(body, &c); err != nil {
		return c, &common.ArgTypeError{Name: "constraints", Want: "an object with time_range, buffer_minutes and avoid_categories"}
	}
	if c.TimeRange != nil {
		for _, v := range []string{c.TimeRange.Start, c.TimeRange.End} {
			if _, _, err := timeutil.ParseClock(v); err != nil {
				return c, err
			}
		}
	}
	for _, cat := range c.AvoidCategories {
		if !cat.Valid() {
			return c, fmt.Errorf("unknown category %q in avoid_categories", cat)
		}
	}
	if c.BufferMinutes < 0 {
		return c, fmt.Errorf("buffer_minutes must not be negative")
	}
	return c, nil
}

func handleSuggestOptimalTimes(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	duration, err := positiveDuration(args)
	if err != nil {
		return common.ErrorResult(err.Error())
	}
	raw, _, err := common.StringList(args, "preferredDates")
	if err != nil {
		return common.ErrorResult(err.Error())
	}
	if len(raw) == 0 {
		return common.ErrorResult("preferredDates is required")
	}
	dates := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		d, err := timeutil.ParseDate(s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	constraints, err := constraintsArg(args)
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}

	res, err := sc.Engine().SuggestOptimalTimes(ctx, duration, dates, constraints)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	return common.JSONResult(res)
}

func adjustmentArgs(args map[string]any) (calendar.Event, scheduling.Strategy, int, error) {
	ev, err := eventFromArgs(args)
	if err != nil {
		return calendar.Event{}, "", 0, err
	}
	strategy := scheduling.ParseStrategy(common.OptionalString(args, "strategy", ""))
	buffer, err := common.OptionalInt(args, "bufferMinutes", -1)
	if err != nil {
		return calendar.Event{}, "", 0, err
	}
	return ev, strategy, buffer, nil
}

func handleProposeScheduleAdjustment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ev, strategy, buffer, err := adjustmentArgs(request.GetArguments())
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}

	proposals, err := sc.Engine().ProposeScheduleAdjustment(ctx, ev, strategy, buffer)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	return common.JSONResult(struct {
		Strategy  scheduling.Strategy   `json:"strategy"`
		Proposals []scheduling.Proposal `json:"proposals"`
	}{strategy, proposals})
}

func handleApplyScheduleAdjustment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ev, strategy, buffer, err := adjustmentArgs(request.GetArguments())
	if err != nil {
		return common.ArgumentError(err, common.FailureResult)
	}

	res, err := sc.Engine().ApplyScheduleAdjustment(ctx, ev, strategy, buffer)
	if err != nil {
		return nil, err
	}
	if res.Created != nil {
		common.RecordChange(ctx, res.Created.ID, "")
	}
	if n := len(res.ChangeSetIDs); n > 0 {
		common.RecordChange(ctx, "", res.ChangeSetIDs[n-1])
	}
	return common.StatusResult(res, res.Success)
}
