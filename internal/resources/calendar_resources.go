package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calpilot/internal/server"
)

const (
	PersonaURI = "calpilot://persona"
	ChangesURI = "calpilot://changes"
	StatusURI  = "calpilot://status"

	// recentChanges bounds the changes resource.
	recentChanges = 20
)

// RegisterCalendarResources registers the calendar resources
func RegisterCalendarResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil || sc.Engine() == nil {
		return fmt.Errorf("server context has no engine")
	}

	personaResource := mcp.NewResource(
		PersonaURI,
		"Working Profile",
		mcp.WithResourceDescription("The learned working profile: active hours, routines, weekday patterns and scheduling style"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(personaResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handlePersona(ctx, request, sc)
	})

	changesResource := mcp.NewResource(
		ChangesURI,
		"Recent Changes",
		mcp.WithResourceDescription("The most recent changesets, newest first, with whether each can still be undone"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(changesResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleChanges(ctx, request, sc)
	})

	statusResource := mcp.NewResource(
		StatusURI,
		"Calendar Status",
		mcp.WithResourceDescription("Calendar backend, undo support, working hours and whether write tools are available"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleStatus(ctx, request, sc)
	})

	return nil
}

// handlePersona returns the stored profile. A missing profile is reported
// in the document rather than as an error so clients can show it.
func handlePersona(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	res, err := sc.Engine().GetPersona(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	return jsonContents(request.Params.URI, res)
}

func handleChanges(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	engine := sc.Engine()
	changes, err := engine.ListChanges(ctx, recentChanges)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	return jsonContents(request.Params.URI, map[string]any{
		"changes":   changes,
		"count":     len(changes),
		"full_undo": engine.Capabilities().FullUndo,
	})
}

func handleStatus(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	caps := sc.Engine().Capabilities()
	start, end := sc.WorkingHours()
	return jsonContents(request.Params.URI, map[string]any{
		"backend":   caps.Backend,
		"full_undo": caps.FullUndo,
		"read_only": sc.ReadOnly(),
		"working_hours": map[string]string{
			"start": start,
			"end":   end,
		},
	})
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
