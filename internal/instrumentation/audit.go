package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation is the audit record of one MCP tool call.
type ToolInvocation struct {
	Tool     string
	ReadOnly bool
	Backend  string

	// Set by mutating tools.
	EventID     string
	ChangeSetID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing a tool call.
func NewToolInvocation(tool string, readOnly bool) *ToolInvocation {
	return &ToolInvocation{Tool: tool, ReadOnly: readOnly, StartTime: time.Now()}
}

// WithBackend records which calendar backend served the call.
func (ti *ToolInvocation) WithBackend(backend string) *ToolInvocation {
	ti.Backend = backend
	return ti
}

// WithSpanContext copies trace and span ids from ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	ti.SpanID = GetSpanID(ctx)
	return ti
}

// Complete stops timing and records the result.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the audit attributes; ids are included only when asked.
func (ti *ToolInvocation) LogAttrs(includeIDs bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Bool("read_only", ti.ReadOnly),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Backend != "" {
		attrs = append(attrs, slog.String("backend", ti.Backend))
	}
	if includeIDs {
		if ti.EventID != "" {
			attrs = append(attrs, slog.String("event_id", ti.EventID))
		}
		if ti.ChangeSetID != "" {
			attrs = append(attrs, slog.String("changeset_id", ti.ChangeSetID))
		}
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID), slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// AuditLogger writes one entry per tool invocation.
type AuditLogger struct {
	logger     *slog.Logger
	includeIDs bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, includeIDs: config.IncludeIDs, enabled: config.Enabled}
}

// LogToolInvocation logs ti at info on success and warn on failure.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}
	level := slog.LevelInfo
	msg := "tool_executed"
	if !ti.Success {
		level = slog.LevelWarn
		msg = "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, ti.LogAttrs(al.includeIDs)...)
}
