package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxItems bounds how many events one call may touch.
const MaxItems = 50

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome is what happened to one event.
type Outcome struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ChangeSetID string `json:"changeset_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Report aggregates the outcomes of a batch. ChangeSetIDs lists every
// changeset the batch produced, in order, so each can be undone.
type Report struct {
	Success      bool      `json:"success"`
	Total        int       `json:"total"`
	Successful   int       `json:"successful"`
	Failed       int       `json:"failed"`
	Results      []Outcome `json:"results"`
	ChangeSetIDs []string  `json:"changeset_ids,omitempty"`
}

// Op mutates one event and returns the id of the changeset it recorded.
type Op func(ctx context.Context, eventID string) (changeSetID string, err error)

// ParseIDs accepts a single id, an array of ids or a string holding a JSON
// array. Ids are trimmed and duplicates dropped, keeping the first
// occurrence.
func ParseIDs(param any, name string) ([]string, error) {
	var raw []any
	switch v := param.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", name)
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") {
			if err := json.Unmarshal([]byte(s), &raw); err != nil {
				return nil, fmt.Errorf("%s is not a valid JSON array: %w", name, err)
			}
		} else {
			raw = []any{s}
		}
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	case []any:
		raw = v
	default:
		return nil, fmt.Errorf("%s must be a string or an array of strings", name)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", name)
	}

	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", name, i)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		ids = append(ids, s)
	}
	if len(ids) > MaxItems {
		return nil, fmt.Errorf("%s has %d entries, at most %d are allowed", name, len(ids), MaxItems)
	}
	return ids, nil
}

// Run applies op to each id in order. Ids not yet reached when ctx is
// cancelled are reported as failed with the context error. The report
// succeeds only when every id did.
func Run(ctx context.Context, ids []string, op Op) Report {
	r := Report{Total: len(ids), Results: make([]Outcome, 0, len(ids))}
	for _, id := range ids {
		err := ctx.Err()
		var changeSetID string
		if err == nil {
			changeSetID, err = op(ctx, id)
		}
		if err != nil {
			r.Failed++
			r.Results = append(r.Results, Outcome{ID: id, Status: StatusError, Error: err.Error()})
			continue
		}
		r.Successful++
		r.Results = append(r.Results, Outcome{ID: id, Status: StatusSuccess, ChangeSetID: changeSetID})
		if changeSetID != "" {
			r.ChangeSetIDs = append(r.ChangeSetIDs, changeSetID)
		}
	}
	r.Success = r.Total > 0 && r.Failed == 0
	return r
}
