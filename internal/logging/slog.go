package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"time"
)

// Attribute keys shared by every component.
const (
	KeyOperation = "operation"
	KeyBackend   = "backend"
	KeyAccount   = "account"
	KeyError     = "error"
	KeyEventID   = "event_id"
	KeyChangeSet = "changeset_id"
	KeyRoutine   = "routine"
	KeyTitle     = "title"
	KeyWindow    = "window"
)

// maxTitleLen keeps event titles in log lines short; they are user text.
const maxTitleLen = 40

const windowLayout = "2006-01-02T15:04"

// New builds a text logger writing to w. The stdio transport passes
// os.Stderr so stdout stays reserved for JSON-RPC.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WithOperation scopes logger to one named operation.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

// WithBackend scopes logger to a calendar backend.
func WithBackend(logger *slog.Logger, backend string) *slog.Logger {
	return logger.With(slog.String(KeyBackend, backend))
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func EventID(id string) slog.Attr {
	return slog.String(KeyEventID, id)
}

func ChangeSet(id string) slog.Attr {
	return slog.String(KeyChangeSet, id)
}

// Routine names a persona routine by its keyword.
func Routine(keyword string) slog.Attr {
	return slog.String(KeyRoutine, keyword)
}

// Title logs an event title cut to a fixed number of runes.
func Title(title string) slog.Attr {
	r := []rune(title)
	if len(r) > maxTitleLen {
		title = string(r[:maxTitleLen]) + "..."
	}
	return slog.String(KeyTitle, title)
}

// Window groups the bounds of a queried time range.
func Window(start, end time.Time) slog.Attr {
	return slog.Group(KeyWindow,
		slog.String("start", start.Format(windowLayout)),
		slog.String("end", end.Format(windowLayout)))
}

// Err is an error attribute. A nil err yields an empty group, which slog
// omits, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// Account logs a Google account name as a short hash.
func Account(account string) slog.Attr {
	if account == "" {
		return slog.String(KeyAccount, "")
	}
	sum := sha256.Sum256([]byte(account))
	return slog.String(KeyAccount, "user:"+hex.EncodeToString(sum[:8]))
}
