package calendar_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/server"
	"github.com/teemow/calpilot/internal/tools/common"
)

// RegisterChangeTools registers the changeset log tools with the MCP server
func RegisterChangeTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listChangesTool := mcp.NewTool("list_changes",
		mcp.WithDescription("List recent changesets, newest first, with the events they touched and whether they were undone"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of changesets (default: 20)"),
		),
	)
	addTool(s, sc, listChangesTool, true, handleListChanges)

	undoTool := mcp.NewTool("undo_change",
		mcp.WithDescription("Undo a create, update or delete by its changeset id. A changeset can be undone once"),
		mcp.WithString("changeSetId",
			mcp.Required(),
			mcp.Description("The changeset id returned by the change"),
		),
	)
	addTool(s, sc, undoTool, false, handleUndoChange)
}

type changeList struct {
	Changes []calendar.ChangeSet `json:"changes"`
	Count   int                  `json:"count"`
	// FullUndo is false when only creations can be undone.
	FullUndo bool `json:"full_undo"`
}

func handleListChanges(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	limit, err := common.OptionalInt(request.GetArguments(), "limit", 0)
	if err != nil {
		return common.ErrorResult(err.Error())
	}

	changes, err := sc.Engine().ListChanges(ctx, limit)
	if err != nil {
		return engineError(err, common.ErrorResult)
	}
	if changes == nil {
		changes = []calendar.ChangeSet{}
	}
	return common.JSONResult(changeList{
		Changes:  changes,
		Count:    len(changes),
		FullUndo: sc.Engine().Capabilities().FullUndo,
	})
}

func handleUndoChange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	changeSetID := common.OptionalString(request.GetArguments(), "changeSetId", "")

	res, err := sc.Engine().Undo(ctx, changeSetID)
	if err != nil {
		return nil, err
	}
	if res.Success {
		common.RecordChange(ctx, "", res.ChangeSetID)
	}
	return common.StatusResult(res, res.Success)
}
