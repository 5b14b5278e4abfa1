package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "run_files"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/history.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// pragma reads a pragma through the store's own connection.
func pragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return value
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", strconv.Itoa(len(migrations))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pragma(t, s, tt.name); got != tt.expected {
				t.Errorf("%s = %q, expected %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	tests := map[string][]string{
		"runs":      {"seq", "id", "started_at", "reason", "written", "skipped", "removed", "duration_ms", "generator"},
		"run_files": {"run_id", "path", "action", "hash", "size"},
	}
	for table, expected := range tests {
		columns := getTableColumns(t, s.db, table)
		for _, col := range expected {
			if !slices.Contains(columns, col) {
				t.Errorf("%s table missing column %q", table, col)
			}
		}
	}
}

func TestMigrate_FromVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	// A v0 database: base schema only, user_version 0.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO runs (id, started_at) VALUES ('old', 1)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if !slices.Contains(getTableIndexes(t, s.db, "run_files"), "idx_run_files_path") {
		t.Error("run_files missing index idx_run_files_path after migration")
	}
	if got := pragma(t, s, "user_version"); got != strconv.Itoa(len(migrations)) {
		t.Errorf("user_version = %s after migration", got)
	}
	run, err := s.GetRun(context.Background(), "old")
	if err != nil {
		t.Fatalf("GetRun() on migrated row failed: %v", err)
	}
	if run.Generator != "" {
		t.Errorf("migrated row generator = %q, want empty", run.Generator)
	}
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations)+1)); err != nil {
		t.Fatal(err)
	}
	db.Close()

	_, err = Open(path)
	if err == nil || !strings.Contains(err.Error(), "newer than this hostgen") {
		t.Fatalf("Open() error = %v, want newer schema error", err)
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
