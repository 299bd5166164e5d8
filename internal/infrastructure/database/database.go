package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const (
	openTimeout = 5 * time.Second
	idleTimeout = 30 * time.Minute
)

// DB is the bridge's SQLite handle. It embeds *sql.DB, so repositories can
// take db.DB directly.
type DB struct {
	*sql.DB
	path string
}

// Config selects the database file and its pragmas.
type Config struct {
	Path        string
	WALMode     bool
	BusyTimeout int // seconds
}

// FromConfig maps the YAML database section onto Config.
func FromConfig(cfg config.DatabaseConfig) Config {
	return Config{Path: cfg.Path, WALMode: cfg.WALMode, BusyTimeout: cfg.BusyTimeout}
}

// dsn builds the go-sqlite3 connection string. WAL is skipped for an
// in-memory database, which cannot use it.
func (c Config) dsn() string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(c.BusyTimeout*1000))
	q.Set("_foreign_keys", "on")
	if c.WALMode && c.Path != MemoryPath {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + c.Path + "?" + q.Encode()
}

// Open prepares the parent directory, opens the database and pings it.
// The file is restricted to the owner.
func Open(cfg Config) (*DB, error) {
	onDisk := cfg.Path != MemoryPath
	if onDisk {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
	}
	// SQLite has one writer, and a :memory: database lives on a single
	// connection, so the pool is pinned to one.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(idleTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Path, err)
	}

	if onDisk {
		_ = os.Chmod(cfg.Path, 0o600) //nolint:errcheck // created lazily by the first write
	}
	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close is safe on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// HealthCheck runs SELECT 1.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health: %w", err)
	}
	return nil
}

// InTx runs fn in a transaction, committing on nil and rolling back on error.
func (db *DB) InTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
