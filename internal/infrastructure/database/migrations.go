package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Migration is one forward schema change, read from a file named
// YYYYMMDD_HHMMSS[_label].up.sql. Matching .down.sql files are kept next
// to them for manual rollback and are not run by the bridge.
type Migration struct {
	Version string
	Label   string
	SQL     string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

var migrationName = regexp.MustCompile(`^(\d{8}_\d{6})(?:_(\w+))?\.up\.sql$`)

// schema is where Migrate looks for migration files.
var schema struct {
	fsys fs.FS
	dir  string
}

// RegisterSchema sets the migration source. The migrations package calls it
// from init with its embedded files.
func RegisterSchema(fsys fs.FS, dir string) {
	schema.fsys, schema.dir = fsys, dir
}

// Migrate applies every pending migration in version order, one
// transaction each, and returns the versions it applied. On failure the
// earlier ones stay committed and the next call resumes.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	pending, err := db.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, m := range pending {
		err := db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.Version, FormatTime(time.Now()))
			return err
		})
		if err != nil {
			return done, fmt.Errorf("migration %s %s: %w", m.Version, m.Label, err)
		}
		done = append(done, m.Version)
	}
	return done, nil
}

// Pending lists migrations not yet recorded in schema_migrations.
func (db *DB) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := db.Applied(ctx)
	if err != nil {
		return nil, err
	}
	all, err := readMigrations(schema.fsys, schema.dir)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(m Migration) bool {
		return slices.ContainsFunc(applied, func(a AppliedMigration) bool { return a.Version == m.Version })
	}), nil
}

// Applied lists recorded migrations, oldest first.
func (db *DB) Applied(ctx context.Context) ([]AppliedMigration, error) {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return nil, fmt.Errorf("schema_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var at string
		if err := rows.Scan(&a.Version, &at); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		if a.AppliedAt, err = ParseTime(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// readMigrations loads the .up.sql files in dir, sorted by version.
func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		m, ok := parseMigrationName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		m.SQL = string(body)
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

func parseMigrationName(name string) (Migration, bool) {
	match := migrationName.FindStringSubmatch(name)
	if match == nil {
		return Migration{}, false
	}
	m := Migration{Version: match[1], Label: match[2]}
	if m.Label == "" {
		m.Label = m.Version
	}
	return m, true
}
