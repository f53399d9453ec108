package calendar_tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calpilot/internal/assistant"
	"github.com/teemow/calpilot/internal/server"
	"github.com/teemow/calpilot/internal/tools/common"
)

type handlerFunc func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// RegisterCalendarTools registers all calendar, scheduling and persona tools
// with the MCP server.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if s == nil || sc == nil {
		return errors.New("server and server context are required")
	}

	RegisterEventTools(s, sc)
	RegisterChangeTools(s, sc)
	RegisterSchedulingTools(s, sc)
	RegisterPersonaTools(s, sc)

	return nil
}

// addTool registers tool behind the instrumentation wrapper. Write tools are
// skipped when the server is read-only.
func addTool(s *mcpserver.MCPServer, sc *server.ServerContext, tool mcp.Tool, readOnly bool, handler handlerFunc) {
	if !readOnly && sc.ReadOnly() {
		return
	}
	s.AddTool(tool, mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(tool.Name, readOnly, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handler(ctx, request, sc)
		})))
}

// engineError turns an engine failure into a readable result when it is an
// expected domain error and into a call error otherwise.
func engineError(err error, fail func(string) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	if msg, ok := assistant.DomainMessage(err); ok {
		return fail(msg)
	}
	return nil, err
}
