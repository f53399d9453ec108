package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/calpilot/internal/timeutil"
)

// JSONResult encodes v as an indented JSON text result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

// StatusResult is JSONResult with IsError set when ok is false.
func StatusResult(v any, ok bool) (*mcp.CallToolResult, error) {
	result, err := JSONResult(v)
	if err != nil {
		return nil, err
	}
	result.IsError = !ok
	return result, nil
}

// FailureResult returns {"success":false,"error":msg} for write tools.
func FailureResult(msg string) (*mcp.CallToolResult, error) {
	return StatusResult(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{false, msg}, false)
}

// ErrorResult returns {"error":msg} for read tools.
func ErrorResult(msg string) (*mcp.CallToolResult, error) {
	return StatusResult(struct {
		Error string `json:"error"`
	}{msg}, false)
}

// ArgumentError maps an argument problem to the tool-call outcome. Malformed
// dates and clock times fail the call itself; missing or mistyped arguments
// become a result the model can read and correct. fail builds that result.
func ArgumentError(err error, fail func(string) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	var (
		format *timeutil.FormatError
		rng    *timeutil.RangeError
	)
	if errors.As(err, &format) || errors.As(err, &rng) {
		return nil, err
	}
	return fail(err.Error())
}
