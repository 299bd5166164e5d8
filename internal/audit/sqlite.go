package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/database"
)

const entryColumns = `id, device_id, command, intent, source, outcome, error, elapsed_ms, details, created_at`

// ErrIncomplete rejects an entry without a device id or command.
var ErrIncomplete = errors.New("audit entry needs a device id and command")

// SQLiteRepository stores entries in the command_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts entry, filling ID and CreatedAt when they are empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.DeviceID == "" || entry.Command == "" {
		return ErrIncomplete
	}
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DeviceID, entry.Command, orNull(entry.Intent), entry.Source,
		entry.Outcome, orNull(entry.Error), entry.ElapsedMS, details,
		database.FormatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// List returns one page of matching entries, newest first, with the total
// match count. Both come from the same read transaction.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	limit, offset := filter.page()
	where, args := filter.where()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // nothing was written

	res := &ListResult{Entries: []Entry{}, Limit: limit, Offset: offset}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM command_audit`+where, args...).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM command_audit`+where+
			` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res.Entries = append(res.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return res, nil
}

// Prune deletes entries older than now-olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("prune window must be positive, got %s", olderThan)
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM command_audit WHERE created_at < ?`,
		database.FormatTime(time.Now().Add(-olderThan)),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                      Entry
		intent, errText, extra sql.NullString
		stamp                  string
	)
	if err := rows.Scan(&e.ID, &e.DeviceID, &e.Command, &intent, &e.Source, &e.Outcome,
		&errText, &e.ElapsedMS, &extra, &stamp); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.Intent, e.Error = intent.String, errText.String

	// Unreadable details are dropped rather than failing the page.
	if extra.String != "" {
		var details map[string]any
		if json.Unmarshal([]byte(extra.String), &details) == nil {
			e.Details = details
		}
	}

	t, err := database.ParseTime(stamp)
	if err != nil {
		return Entry{}, fmt.Errorf("audit entry %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	return e, nil
}

func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
