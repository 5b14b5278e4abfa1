package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/hostgen/internal/writer"
)

// Run is one recorded pass.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	Reason     string    `json:"reason"`
	Written    int       `json:"written"`
	Skipped    int       `json:"skipped"`
	Removed    int       `json:"removed"`
	DurationMS float64   `json:"durationMs"`
	Generator  string    `json:"generator,omitempty"`
}

// RunFile is one output path touched by a run.
type RunFile struct {
	RunID  string `json:"runId"`
	Path   string `json:"path"`
	Action string `json:"action"`
	Hash   string `json:"hash,omitempty"`
	Size   int64  `json:"size"`
}

// RecordRun appends r and its non-unchanged artifacts in one transaction.
// Recording the same run id twice is a no-op. With retention configured the
// oldest runs beyond it are dropped in the same transaction.
func (s *Store) RecordRun(ctx context.Context, r *writer.Report) error {
	if r == nil || r.RunID == "" {
		return errors.New("record run: report has no run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, reason, written, skipped, removed, duration_ms, generator)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.RunID,
		r.StartedAt.UTC().UnixMilli(),
		r.Reason,
		len(r.Written),
		len(r.Skipped),
		len(r.Removed),
		r.Timings.TotalMS,
		r.Generator,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_files (run_id, path, action, hash, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("record run: prepare files: %w", err)
	}
	defer stmt.Close()

	for _, f := range runFiles(r) {
		if _, err := stmt.ExecContext(ctx, r.RunID, f.Path, f.Action, f.Hash, f.Size); err != nil {
			return fmt.Errorf("record run file %s: %w", f.Path, err)
		}
	}

	if _, err := prune(ctx, tx, s.keep); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

// runFiles derives per-path rows from a report. Artifact rows are preferred
// because they carry hashes; the path lists cover reports built without them.
func runFiles(r *writer.Report) []RunFile {
	var files []RunFile
	seen := make(map[string]bool)
	for _, a := range r.Artifacts {
		if a.Status == "unchanged" || seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		files = append(files, RunFile{Path: a.Path, Action: a.Status, Hash: a.Hash, Size: a.Size})
	}
	lists := []struct {
		action string
		paths  []string
	}{
		{"written", r.Written},
		{"skipped", r.Skipped},
		{"removed", r.Removed},
	}
	for _, l := range lists {
		for _, p := range l.paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			files = append(files, RunFile{Path: p, Action: l.action})
		}
	}
	return files
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
//
// Returns an empty slice (not nil) if no runs are recorded.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, reason, written, skipped, removed, duration_ms, generator
		FROM runs
		ORDER BY started_at DESC, seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run by id. Returns sql.ErrNoRows if absent.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, reason, written, skipped, removed, duration_ms, generator
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, sql.ErrNoRows
		}
		return Run{}, err
	}
	return run, nil
}

// RunFiles returns the paths touched by a run, ordered by path.
func (s *Store) RunFiles(ctx context.Context, runID string) ([]RunFile, error) {
	return s.queryFiles(ctx, `
		SELECT run_id, path, action, hash, size
		FROM run_files
		WHERE run_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, runID)
}

// PathHistory returns every recorded action on path, newest run first.
func (s *Store) PathHistory(ctx context.Context, path string) ([]RunFile, error) {
	return s.queryFiles(ctx, `
		SELECT f.run_id, f.path, f.action, f.hash, f.size
		FROM run_files f
		JOIN runs r ON r.id = f.run_id
		WHERE f.path = ?
		ORDER BY r.started_at DESC, r.seq DESC
	`, path)
}

func (s *Store) queryFiles(ctx context.Context, query string, arg string) ([]RunFile, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query run files: %w", err)
	}
	defer rows.Close()

	files := []RunFile{}
	for rows.Next() {
		var f RunFile
		if err := rows.Scan(&f.RunID, &f.Path, &f.Action, &f.Hash, &f.Size); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run files: %w", err)
	}
	return files, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		started int64
	)
	if err := row.Scan(&run.ID, &started, &run.Reason, &run.Written, &run.Skipped, &run.Removed, &run.DurationMS, &run.Generator); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	return run, nil
}
