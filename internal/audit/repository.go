// Package audit provides access to the command_audit table, a record of
// every command the bridge executed and how it ended.
package audit

import (
	"context"
	"strings"
	"time"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one executed command.
type Entry struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Command   string         `json:"command"`
	Intent    string         `json:"intent,omitempty"`
	Source    string         `json:"source"`
	Outcome   string         `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which entries to return.
type Filter struct {
	DeviceID string // optional
	Outcome  string // optional: success, rejected, unreachable, ...
	Source   string // optional: mqtt, api
	Limit    int    // default 50, max 200
	Offset   int
}

// where renders the filter's conditions and their arguments. It is empty
// when nothing is filtered.
func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, c := range []struct{ col, val string }{
		{"device_id", f.DeviceID},
		{"outcome", f.Outcome},
		{"source", f.Source},
	} {
		if c.val != "" {
			conds = append(conds, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// page clamps Limit to 1..MaxLimit, defaulting to DefaultLimit, and Offset
// to zero or more.
func (f Filter) page() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return min(limit, MaxLimit), max(f.Offset, 0)
}

// ListResult contains one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the audit log operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

