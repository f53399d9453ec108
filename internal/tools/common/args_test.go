package common

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calpilot/internal/timeutil"
)

func TestRequiredString(t *testing.T) {
	args := map[string]any{"eventId": "abc", "blank": "  ", "num": 3.0}

	v, err := RequiredString(args, "eventId")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	for _, name := range []string{"blank", "num", "missing"} {
		_, err := RequiredString(args, name)
		var missing *MissingArgError
		require.True(t, errors.As(err, &missing), name)
		assert.Equal(t, name+" is required", err.Error())
	}
}

func TestOptionalInt(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    int
		wantErr bool
	}{
		{name: "absent", raw: nil, want: 7},
		{name: "json number", raw: 30.0, want: 30},
		{name: "int", raw: 45, want: 45},
		{name: "numeric string", raw: " 60 ", want: 60},
		{name: "encoded number", raw: json.Number("15"), want: 15},
		{name: "fraction", raw: 1.5, wantErr: true},
		{name: "word", raw: "soon", wantErr: true},
		{name: "bool", raw: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{}
			if tt.raw != nil {
				args["n"] = tt.raw
			}
			got, err := OptionalInt(args, "n", 7)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiredInt_Missing(t *testing.T) {
	_, err := RequiredInt(map[string]any{}, "durationMinutes")
	var missing *MissingArgError
	assert.True(t, errors.As(err, &missing))
}

func TestPointerArgs(t *testing.T) {
	args := map[string]any{"title": "", "priority": 2.0, "movable": false, "flag": "yes"}

	title, err := StringPtr(args, "title")
	require.NoError(t, err)
	require.NotNil(t, title)
	assert.Equal(t, "", *title)

	none, err := StringPtr(args, "location")
	require.NoError(t, err)
	assert.Nil(t, none)

	prio, err := IntPtr(args, "priority")
	require.NoError(t, err)
	assert.Equal(t, 2, *prio)

	movable, err := BoolPtr(args, "movable")
	require.NoError(t, err)
	assert.False(t, *movable)

	_, err = BoolPtr(args, "flag")
	assert.Error(t, err)

	_, err = StringPtr(map[string]any{"title": 1.0}, "title")
	assert.Error(t, err)
}

func TestStringList(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]any
		want        []string
		wantPresent bool
		wantErr     bool
	}{
		{name: "absent", args: map[string]any{}},
		{name: "comma separated", args: map[string]any{"tags": "work, focus,,"}, want: []string{"work", "focus"}, wantPresent: true},
		{name: "array", args: map[string]any{"tags": []any{"a", "b"}}, want: []string{"a", "b"}, wantPresent: true},
		{name: "empty array clears", args: map[string]any{"tags": []any{}}, want: []string{}, wantPresent: true},
		{name: "non-string item", args: map[string]any{"tags": []any{"a", 1.0}}, wantPresent: true, wantErr: true},
		{name: "wrong type", args: map[string]any{"tags": 3.0}, wantPresent: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present, err := StringList(tt.args, "tags")
			assert.Equal(t, tt.wantPresent, present)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntList(t *testing.T) {
	got, present, err := IntList(map[string]any{"reminders": []any{10.0, 30.0}}, "reminders")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, []int{10, 30}, got)

	_, _, err = IntList(map[string]any{"reminders": "10"}, "reminders")
	assert.Error(t, err)
}

func TestRequiredTime(t *testing.T) {
	got, err := RequiredTime(map[string]any{"start": "2026-02-16T09:30:00"}, "start")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 16, 9, 30, 0, 0, time.Local), got)

	_, err = RequiredTime(map[string]any{"start": "2026-02-30"}, "start")
	var format *timeutil.FormatError
	assert.True(t, errors.As(err, &format))

	opt, err := OptionalTime(map[string]any{}, "end")
	require.NoError(t, err)
	assert.Nil(t, opt)
}

func TestArgumentError(t *testing.T) {
	_, parseErr := timeutil.ParseDate("not-a-date")
	result, err := ArgumentError(parseErr, FailureResult)
	assert.Error(t, err)
	assert.Nil(t, result)

	result, err = ArgumentError(&MissingArgError{Name: "title"}, FailureResult)
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.JSONEq(t, `{"success":false,"error":"title is required"}`, resultText(t, result))
}

func TestStatusResult(t *testing.T) {
	result, err := StatusResult(map[string]bool{"success": true}, true)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = ErrorResult("event not found: x")
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"event not found: x"}`, resultText(t, result))
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}
