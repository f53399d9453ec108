package calendar_tools

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/server"
	"github.com/teemow/calpilot/internal/tools/batch"
	"github.com/teemow/calpilot/internal/tools/common"
)

const timeFormatHint = "YYYY-MM-DD or local YYYY-MM-DDTHH:MM:SS without a zone"

// eventFieldOptions describes the optional event fields shared by
// create_event, update_event and the adjustment tools.
func eventFieldOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("category",
			mcp.Description("Event category"),
			mcp.Enum(categoryNames()...),
		),
		mcp.WithArray("tags",
			mcp.Description("Free-form tags (array or comma-separated string)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("isMovable",
			mcp.Description("Whether schedule adjustments may move this event (default: true)"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Priority from 1 (highest) to 5 (default: 3)"),
		),
		mcp.WithString("colorId",
			mcp.Description("Display color id"),
		),
		mcp.WithArray("attendees",
			mcp.Description("Attendee email addresses"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("reminders",
			mcp.Description("Reminder offsets in minutes before start"),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithArray("recurrence",
			mcp.Description("Recurrence rules (e.g., 'RRULE:FREQ=WEEKLY;BYDAY=MO')"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	}
}

func categoryNames() []string {
	names := make([]string, 0, len(calendar.Categories))
	for _, c := range calendar.Categories {
		names = append(names, string(c))
	}
	return names
}

// RegisterEventTools registers event read and write tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	getEventsTool := mcp.NewTool("get_events",
		mcp.WithDescription("List calendar events intersecting a time range, optionally filtered by category and tags"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Range start ("+timeFormatHint+")"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("Range end ("+timeFormatHint+")"),
		),
		mcp.WithString("category",
			mcp.Description("Only events in this category"),
			mcp.Enum(categoryNames()...),
		),
		mcp.WithArray("tags",
			mcp.Description("Only events carrying at least one of these tags"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
	addTool(s, sc, getEventsTool, true, handleGetEvents)

	searchEventsTool := mcp.NewTool("search_events",
		mcp.WithDescription("Search event titles and descriptions, optionally within a time range"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Case-insensitive text to look for"),
		),
		mcp.WithString("start",
			mcp.Description("Optional range start ("+timeFormatHint+")"),
		),
		mcp.WithString("end",
			mcp.Description("Optional range end ("+timeFormatHint+")"),
		),
	)
	addTool(s, sc, searchEventsTool, true, handleSearchEvents)

	getEventTool := mcp.NewTool("get_event",
		mcp.WithDescription("Get a single event by id"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to retrieve"),
		),
	)
	addTool(s, sc, getEventTool, true, handleGetEvent)

	createOpts := []mcp.ToolOption{
		mcp.WithDescription("Create a calendar event. Returns the event and a changeset id that undo_change can reverse"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time ("+timeFormatHint+")"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End time ("+timeFormatHint+")"),
		),
	}
	createEventTool := mcp.NewTool("create_event", append(createOpts, eventFieldOptions()...)...)
	addTool(s, sc, createEventTool, false, handleCreateEvent)

	updateOpts := []mcp.ToolOption{
		mcp.WithDescription("Update fields of an existing event. Only the given fields change"),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("title",
			mcp.Description("New title"),
		),
		mcp.WithString("start",
			mcp.Description("New start time ("+timeFormatHint+")"),
		),
		mcp.WithString("end",
			mcp.Description("New end time ("+timeFormatHint+")"),
		),
	}
	updateEventTool := mcp.NewTool("update_event", append(updateOpts, eventFieldOptions()...)...)
	addTool(s, sc, updateEventTool, false, handleUpdateEvent)

	deleteEventTool := mcp.NewTool("delete_event",
		mcp.WithDescription("Delete one or more events. Each deletion gets its own changeset id"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("Event ID, or a JSON array of event IDs"),
		),
	)
	addTool(s, sc, deleteEventTool, false, handleDeleteEvent)
}

type eventList struct {
	Events []calendar.Event `json:"events"`
	Count  int              `json:"count"`
}

func newEventList(events []calendar.Event) eventList {
	if events == nil {
		events = []calendar.Event{}
	}
	return eventList{Events: events, Count: len(events)}
}

func handleGetEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := common.RequiredTime(args, "start")
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}
	end, err := common.RequiredTime(args, "end")
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}

	var filter calendar.Filter
	if c := common.OptionalString(args, "category", ""); c != "" {
		filter.Category, err = calendar.ParseCategory(c)
		if err != nil {
			return common.ErrorResult(err.Error())
		}
	}
	if filter.Tags, _, err = common.StringList(args, "tags"); err != nil {
		return common.ErrorResult(err.Error())
	}

	events, err := sc.Engine().GetEvents(ctx, start, end, filter)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	return common.JSONResult(newEventList(events))
}

func handleSearchEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, err := common.RequiredString(args, "query")
	if err != nil {
		return common.ErrorResult(err.Error())
	}
	start, err := common.OptionalTime(args, "start")
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}
	end, err := common.OptionalTime(args, "end")
	if err != nil {
		return common.ArgumentError(err, common.ErrorResult)
	}

	events, err := sc.Engine().SearchEvents(ctx, query, start, end)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	return common.JSONResult(newEventList(events))
}

func handleGetEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	eventID, err := common.RequiredString(request.GetArguments(), "eventId")
	if err != nil {
		return common.ErrorResult(err.Error())
	}

	ev, err := sc.Engine().GetEvent(ctx, eventID)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	if ev == nil {
		return common.ErrorResult("event not found: " + eventID)
	}
	return common.JSONResult(ev)
}

// eventFromArgs builds a new event from title, start, end and the optional
// event fields.
func eventFromArgs(args map[string]any) (calendar.Event, error) {
	title, err := common.RequiredString(args, "title")
	if err != nil {
		return calendar.Event{}, err
	}
	start, err := common.RequiredTime(args, "start")
	if err != nil {
		return calendar.Event{}, err
	}
	end, err := common.RequiredTime(args, "end")
	if err != nil {
		return calendar.Event{}, err
	}

	ev := calendar.NewEvent(title, start, end)
	changes, err := fieldChanges(args)
	if err != nil {
		return calendar.Event{}, err
	}
	// The engine validates category and priority.
	return applyFields(ev, changes), nil
}

// fieldChanges reads the optional event fields into a patch.
func fieldChanges(args map[string]any) (calendar.EventChanges, error) {
	var (
		c   calendar.EventChanges
		err error
	)
	if c.Description, err = common.StringPtr(args, "description"); err != nil {
		return c, err
	}
	if c.Location, err = common.StringPtr(args, "location"); err != nil {
		return c, err
	}
	if c.ColorID, err = common.StringPtr(args, "colorId"); err != nil {
		return c, err
	}
	category, err := common.StringPtr(args, "category")
	if err != nil {
		return c, err
	}
	if category != nil {
		cat := calendar.Category(strings.ToLower(strings.TrimSpace(*category)))
		c.Category = &cat
	}
	if c.IsMovable, err = common.BoolPtr(args, "isMovable"); err != nil {
		return c, err
	}
	if c.Priority, err = common.IntPtr(args, "priority"); err != nil {
		return c, err
	}
	if tags, ok, err := common.StringList(args, "tags"); err != nil {
		return c, err
	} else if ok {
		c.Tags = &tags
	}
	if attendees, ok, err := common.StringList(args, "attendees"); err != nil {
		return c, err
	} else if ok {
		c.Attendees = &attendees
	}
	if recurrence, ok, err := common.StringList(args, "recurrence"); err != nil {
		return c, err
	} else if ok {
		c.Recurrence = &recurrence
	}
	if reminders, ok, err := common.IntList(args, "reminders"); err != nil {
		return c, err
	} else if ok {
		c.Reminders = &reminders
	}
	return c, nil
}

func applyFields(ev calendar.Event, c calendar.EventChanges) calendar.Event {
	if c.Description != nil {
		ev.Description = *c.Description
	}
	if c.Location != nil {
		ev.Location = *c.Location
	}
	if c.ColorID != nil {
		ev.ColorID = *c.ColorID
	}
	if c.Category != nil {
		ev.Category = *c.Category
	}
	if c.IsMovable != nil {
		ev.IsMovable = *c.IsMovable
	}
	if c.Priority != nil {
		ev.Priority = *c.Priority
	}
	if c.Tags != nil {
		ev.Tags = *c.Tags
	}
	if c.Attendees != nil {
		ev.Attendees = *c.Attendees
	}
	if c.Recurrence != nil {
		ev.Recurrence = *c.Recurrence
	}
	if c.Reminders != nil {
		ev.Reminders = *c.Reminders
	}
	return ev
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ev, err := eventFromArgs(request.GetArguments())
	if err != nil {
		return common.ArgumentError(err, common.FailureResult)
	}

	res, err := sc.Engine().CreateEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	if res.Success {
		common.RecordChange(ctx, res.Event.ID, res.ChangeSetID)
	}
	return common.StatusResult(res, res.Success)
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return common.FailureResult(err.Error())
	}
	changes, err := fieldChanges(args)
	if err != nil {
		return common.ArgumentError(err, common.FailureResult)
	}
	if changes.Title, err = common.StringPtr(args, "title"); err != nil {
		return common.FailureResult(err.Error())
	}
	if changes.Start, err = common.OptionalTime(args, "start"); err != nil {
		return common.ArgumentError(err, common.FailureResult)
	}
	if changes.End, err = common.OptionalTime(args, "end"); err != nil {
		return common.ArgumentError(err, common.FailureResult)
	}

	res, err := sc.Engine().UpdateEvent(ctx, eventID, changes)
	if err != nil {
		return nil, err
	}
	if res.Success {
		common.RecordChange(ctx, eventID, res.ChangeSetID)
	}
	return common.StatusResult(res, res.Success)
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseIDs(request.GetArguments()["eventId"], "eventId")
	if err != nil {
		return common.FailureResult(err.Error())
	}

	if len(ids) == 1 {
		res, err := sc.Engine().DeleteEvent(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		if res.Success {
			common.RecordChange(ctx, res.EventID, res.ChangeSetID)
		}
		return common.StatusResult(res, res.Success)
	}

	report := batch.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
		res, err := sc.Engine().DeleteEvent(ctx, id)
		if err != nil {
			return "", err
		}
		if !res.Success {
			return "", errors.New(res.Error)
		}
		return res.ChangeSetID, nil
	})
	return common.StatusResult(report, report.Success)
}
