package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations[v] moves the schema from user_version v to v+1. Each step runs
// in its own transaction together with the version bump.
var migrations = []func(ctx context.Context, tx *sql.Tx) error{
	addPathIndex,
	addGeneratorColumn,
}

// Store is the durable run history.
type Store struct {
	db   *sql.DB
	keep int
}

// Option configures a Store.
type Option func(*Store)

// WithRetention keeps only the newest n runs. Older runs and their files are
// dropped in the same transaction that records a new run. n <= 0 keeps
// everything.
func WithRetention(n int) Option {
	return func(s *Store) {
		s.keep = n
	}
}

// Open creates or opens the history database at path and brings its schema
// up to date. Opening an existing database is safe and repeatable.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// One writer: runs are recorded from the runtime's single job queue.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history %s: %w", path, err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dsn carries the pragmas as go-sqlite3 connection parameters so every
// pooled connection gets them, not only the first.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	return path + "?" + q.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("base schema: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("schema version %d is newer than this hostgen (%d)", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := migrations[v](ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("to v%d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("to v%d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("to v%d: commit: %w", v+1, err)
		}
	}
	return nil
}

// addPathIndex backs PathHistory.
func addPathIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_run_files_path ON run_files(path)`)
	return err
}

// addGeneratorColumn records which hostgen build produced a run.
func addGeneratorColumn(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE runs ADD COLUMN generator TEXT NOT NULL DEFAULT ''`)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Prune drops all but the newest keep runs. Their files go with them through
// the run_files foreign key. It returns the number of runs removed; keep <= 0
// removes nothing.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	return prune(ctx, s.db, keep)
}

func prune(ctx context.Context, db execer, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM runs WHERE seq NOT IN (
			SELECT seq FROM runs ORDER BY started_at DESC, seq DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
