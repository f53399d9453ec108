package calendar_tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calpilot/internal/persona"
	"github.com/teemow/calpilot/internal/server"
	"github.com/teemow/calpilot/internal/tools/common"
)

const defaultUpdateReason = "requested by user"

// RegisterPersonaTools registers persona analysis and editing tools with the
// MCP server
func RegisterPersonaTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	getPersonaTool := mcp.NewTool("get_persona",
		mcp.WithDescription("Show the learned working profile: active hours, routines, weekday patterns and scheduling style"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	addTool(s, sc, getPersonaTool, true, handleGetPersona)

	analyzeTool := mcp.NewTool("analyze_user_patterns",
		mcp.WithDescription("Rebuild the working profile from the last ten weeks of events, replacing the stored one"),
	)
	addTool(s, sc, analyzeTool, false, handleAnalyzeUserPatterns)

	updateTool := mcp.NewTool("update_persona",
		mcp.WithDescription("Adjust the working profile explicitly. Only the given fields change and the reason is kept as a note"),
		mcp.WithString("reason",
			mcp.Description("Why the profile changes, kept as a note"),
		),
		mcp.WithString("workStart",
			mcp.Description("Start of the working day (HH:MM)"),
		),
		mcp.WithString("workEnd",
			mcp.Description("End of the working day (HH:MM)"),
		),
		mcp.WithString("lunchStart",
			mcp.Description("Start of lunch (HH:MM)"),
		),
		mcp.WithString("lunchEnd",
			mcp.Description("End of lunch (HH:MM)"),
		),
		mcp.WithString("schedulingStyle",
			mcp.Description("Scheduling style"),
			mcp.Enum(string(persona.StyleConservative), string(persona.StyleModerate), string(persona.StyleAggressive)),
		),
		mcp.WithNumber("bufferPreference",
			mcp.Description("Preferred gap between events in minutes"),
		),
		mcp.WithArray("preferredMeetingTimes",
			mcp.Description("Preferred meeting start times (HH:MM)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("routines",
			mcp.Description(`Replacement routine list, e.g. [{"keyword": "gym", "dayOfWeek": [1, 3], "typicalStart": "18:00", "typicalEnd": "19:00", "confidence": 0.8}]`),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
	addTool(s, sc, updateTool, false, handleUpdatePersona)
}

func handleGetPersona(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	res, err := sc.Engine().GetPersona(ctx)
	if err != nil {
		return nil, err
	}
	return common.StatusResult(res, res.Success)
}

func handleAnalyzeUserPatterns(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	res, err := sc.Engine().AnalyzeUserPatterns(ctx)
	if err != nil {
		return nil, err
	}
	return common.StatusResult(res, res.Success)
}

// personaChanges reads the update_persona arguments into a patch. Clock
// values are checked by the engine.
func personaChanges(args map[string]any) (persona.Changes, error) {
	var c persona.Changes

	var hours persona.ActiveHoursChanges
	var err error
	if hours.WorkStart, err = common.StringPtr(args, "workStart"); err != nil {
		return c, err
	}
	if hours.WorkEnd, err = common.StringPtr(args, "workEnd"); err != nil {
		return c, err
	}
	if hours.LunchStart, err = common.StringPtr(args, "lunchStart"); err != nil {
		return c, err
	}
	if hours.LunchEnd, err = common.StringPtr(args, "lunchEnd"); err != nil {
		return c, err
	}
	if hours != (persona.ActiveHoursChanges{}) {
		c.ActiveHours = &hours
	}

	style, err := common.StringPtr(args, "schedulingStyle")
	if err != nil {
		return c, err
	}
	if style != nil {
		s := persona.Style(strings.ToLower(strings.TrimSpace(*style)))
		c.SchedulingStyle = &s
	}

	if c.BufferPreference, err = common.IntPtr(args, "bufferPreference"); err != nil {
		return c, err
	}

	if times, ok, err := common.StringList(args, "preferredMeetingTimes"); err != nil {
		return c, err
	} else if ok {
		c.PreferredMeetingTimes = &times
	}

	if raw, ok := args["routines"]; ok && raw != nil {
		body, err := json.Marshal(raw)
		if err != nil {
			return c, &common.ArgTypeError{Name: "routines", Want: "an array of routine objects"}
		}
		var routines []persona.RoutinePattern
		if err := json.Unmarshal(body, &routines); err != nil {
			return c, &common.ArgTypeError{Name: "routines", Want: "an array of routine objects"}
		}
		if routines == nil {
			routines = []persona.RoutinePattern{}
		}
		c.Routines = &routines
	}
	return c, nil
}

func handleUpdatePersona(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	changes, err := personaChanges(args)
	if err != nil {
		return common.FailureResult(err.Error())
	}
	reason := common.OptionalString(args, "reason", defaultUpdateReason)

	res, err := sc.Engine().UpdatePersona(ctx, changes, reason)
	if err != nil {
		return nil, err
	}
	return common.StatusResult(res, res.Success)
}
