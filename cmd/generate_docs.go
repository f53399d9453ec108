package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/calpilot/internal/assistant"
	"github.com/teemow/calpilot/internal/database"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/server"
)

const otherCategory = "Other"

// toolSections orders the reference. A tool missing here lands in Other.
var toolSections = []struct {
	title string
	tools []string
}{
	{"Event Tools", []string{"get_events", "search_events", "get_event", "create_event", "update_event", "delete_event"}},
	{"Scheduling Tools", []string{"check_conflicts", "find_related_events", "get_event_context", "get_free_slots", "suggest_optimal_times", "propose_schedule_adjustment", "apply_schedule_adjustment"}},
	{"Persona Tools", []string{"get_persona", "analyze_user_patterns", "update_persona"}},
	{"Change History Tools", []string{"list_changes", "undo_change"}},
}

// toolCategories maps each tool to its section title.
var toolCategories = func() map[string]string {
	m := make(map[string]string)
	for _, s := range toolSections {
		for _, name := range s.tools {
			m[name] = s.title
		}
	}
	return m
}()

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate the MCP tool reference",
		Long: `Register every tool against a scratch in-memory calendar and render
their names, descriptions and arguments as markdown. The output always
matches what "calpilot serve" exposes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := toolsDocumentation()
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), markdown)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputFile, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Tool reference written to %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// toolsDocumentation registers every tool against a throwaway in-memory
// store and renders the result.
func toolsDocumentation() (string, error) {
	ctx := context.Background()
	logger := logging.Discard()

	db, err := database.Open(":memory:", database.WithLogger(logger))
	if err != nil {
		return "", fmt.Errorf("failed to open scratch database: %w", err)
	}
	defer db.Close()

	engine, err := assistant.New(db, db, assistant.Options{Logger: logger})
	if err != nil {
		return "", err
	}
	defer engine.Close()

	sc, err := server.NewServerContext(ctx, engine, server.WithLogger(logger))
	if err != nil {
		return "", err
	}
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("calpilot", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	if err := registerAllTools(mcpSrv, sc); err != nil {
		return "", err
	}

	registered := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(registered))
	for _, t := range registered {
		tools = append(tools, t.Tool)
	}
	return generateToolsMarkdown(tools), nil
}

func getCategoryFromToolName(name string) string {
	if c, ok := toolCategories[name]; ok {
		return c
	}
	return otherCategory
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, t := range tools {
		c := getCategoryFromToolName(t.Name)
		byCategory[c] = append(byCategory[c], t)
	}

	titles := make([]string, 0, len(toolSections)+1)
	for _, s := range toolSections {
		if len(byCategory[s.title]) > 0 {
			titles = append(titles, s.title)
		}
	}
	if len(byCategory[otherCategory]) > 0 {
		titles = append(titles, otherCategory)
	}

	var b strings.Builder
	b.WriteString("# MCP Tools Reference\n\n")
	b.WriteString("Tools exposed by `calpilot serve`. Generated by `calpilot generate-docs`; do not edit by hand.\n\n")

	b.WriteString("## Conventions\n\n")
	b.WriteString("- **Times:** `YYYY-MM-DD` or `YYYY-MM-DD HH:MM` in the configured timezone\n")
	b.WriteString("- **Undo:** every write returns a `changeset_id` that `undo_change` reverts once\n")
	b.WriteString("- **Read-only mode:** `serve --read-only` registers only the tools marked read-only\n\n")

	b.WriteString("## Contents\n\n")
	for _, title := range titles {
		fmt.Fprintf(&b, "- [%s](#%s) (%d)\n", title, strings.ToLower(strings.ReplaceAll(title, " ", "-")), len(byCategory[title]))
	}
	b.WriteString("\n")

	for _, title := range titles {
		fmt.Fprintf(&b, "## %s\n\n", title)
		for _, t := range sectionOrder(title, byCategory[title]) {
			writeTool(&b, t)
		}
	}
	return b.String()
}

// sectionOrder keeps the order toolSections declares and sorts the rest
// by name.
func sectionOrder(title string, tools []mcp.Tool) []mcp.Tool {
	var declared []string
	for _, s := range toolSections {
		if s.title == title {
			declared = s.tools
		}
	}
	rank := func(name string) int {
		if i := slices.Index(declared, name); i >= 0 {
			return i
		}
		return len(declared)
	}
	out := slices.Clone(tools)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Name), rank(out[j].Name)
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func writeTool(b *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(b, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(b, "%s\n\n", tool.Description)
	}
	if ro := tool.Annotations.ReadOnlyHint; ro != nil && *ro {
		b.WriteString("*Read-only.*\n\n")
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	// Required arguments first, then alphabetical.
	sort.Slice(names, func(i, j int) bool {
		ri := slices.Contains(tool.InputSchema.Required, names[i])
		rj := slices.Contains(tool.InputSchema.Required, names[j])
		if ri != rj {
			return ri
		}
		return names[i] < names[j]
	})

	b.WriteString("| Argument | Type | Required | Description |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		required := "no"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "yes"
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n", name, propertyType(prop), required, propertyDescription(prop))
	}
	b.WriteString("\n")
}

func propertyType(prop map[string]any) string {
	t, ok := prop["type"].(string)
	if !ok {
		return "any"
	}
	if t == "array" {
		if items, ok := prop["items"].(map[string]any); ok {
			if it, ok := items["type"].(string); ok {
				return it + "[]"
			}
		}
	}
	return t
}

func propertyDescription(prop map[string]any) string {
	desc, _ := prop["description"].(string)
	if values, ok := prop["enum"].([]string); ok && len(values) > 0 {
		desc = strings.TrimSpace(desc + " One of: `" + strings.Join(values, "`, `") + "`.")
	}
	// Pipes would split the table cell.
	return strings.ReplaceAll(desc, "|", `\|`)
}
