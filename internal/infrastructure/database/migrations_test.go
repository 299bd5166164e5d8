package database

import (
	"context"
	"embed"
	"io/fs"
	"slices"
	"testing"
	"testing/fstest"
)

//go:embed testdata/*.sql
var testdataFS embed.FS

// useSchema swaps the registered schema for one test.
func useSchema(t *testing.T, fsys fs.FS, dir string) {
	t.Helper()
	saved := schema
	t.Cleanup(func() { schema = saved })
	RegisterSchema(fsys, dir)
}

func columnExists(t *testing.T, db *DB, table, column string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		t.Fatalf("pragma_table_info: %v", err)
	}
	return n > 0
}

func TestMigrate(t *testing.T) {
	useSchema(t, testdataFS, "testdata")
	db := openTestDB(t)
	ctx := context.Background()

	done, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !slices.Equal(done, []string{"20260101_000000", "20260102_000000"}) {
		t.Errorf("applied = %v", done)
	}
	if !columnExists(t, db, "widgets", "colour") {
		t.Error("both migrations should have run")
	}

	applied, err := db.Applied(ctx)
	if err != nil {
		t.Fatalf("Applied() error = %v", err)
	}
	if len(applied) != 2 || applied[0].Version != "20260101_000000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("applied = %+v", applied)
	}

	// Idempotent.
	if done, err := db.Migrate(ctx); err != nil || len(done) != 0 {
		t.Errorf("second Migrate() = %v, %v", done, err)
	}
}

func TestMigrate_DownFilesIgnored(t *testing.T) {
	useSchema(t, fstest.MapFS{
		"m/20260101_000000_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER);")},
		"m/20260101_000000_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"m/notes.txt":                        {Data: []byte("not sql")},
	}, "m")
	db := openTestDB(t)

	done, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(done) != 1 || !columnExists(t, db, "widgets", "id") {
		t.Errorf("applied = %v", done)
	}
}

func TestMigrate_NoSchema(t *testing.T) {
	useSchema(t, nil, ".")
	db := openTestDB(t)

	if done, err := db.Migrate(context.Background()); err != nil || len(done) != 0 {
		t.Errorf("Migrate() with no schema = %v, %v", done, err)
	}
}

func TestMigrate_FailureResumes(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101_000000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260102_000000_bad.up.sql":  {Data: []byte("CREATE TABLE oops (")},
	}
	useSchema(t, fsys, ".")
	db := openTestDB(t)
	ctx := context.Background()

	done, err := db.Migrate(ctx)
	if err == nil {
		t.Fatal("Migrate() should fail on invalid SQL")
	}
	if len(done) != 1 {
		t.Errorf("applied before failure = %v, want the good one", done)
	}

	pending, err := db.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Label != "bad" {
		t.Errorf("pending = %+v", pending)
	}

	fsys["20260102_000000_bad.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE fixed (id INTEGER);")}
	if done, err := db.Migrate(ctx); err != nil || len(done) != 1 {
		t.Errorf("resumed Migrate() = %v, %v", done, err)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantLabel   string
		wantOK      bool
	}{
		{"20261019_120000_state_history.up.sql", "20261019_120000", "state_history", true},
		{"20261019_120000.up.sql", "20261019_120000", "20261019_120000", true},
		{"20261019_120000_state_history.down.sql", "", "", false},
		{"20261019_120000_state_history.sql", "", "", false},
		{"2026_1200_x.up.sql", "", "", false},
		{"README.md", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := parseMigrationName(tt.name)
			if ok != tt.wantOK || m.Version != tt.wantVersion || m.Label != tt.wantLabel {
				t.Errorf("parseMigrationName() = (%+v, %v), want (%q, %q, %v)",
					m, ok, tt.wantVersion, tt.wantLabel, tt.wantOK)
			}
		})
	}
}
