package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InsertRun stores a run with its steps and pending counts in one
// transaction and returns its ID.
func (s *Store) InsertRun(ctx context.Context, run *Run) (int64, error) {
	changed, err := json.Marshal(nonNil(run.Changed))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal changed packages: %w", err)
	}
	crit, err := json.Marshal(nonNil(run.Critical))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal critical packages: %w", err)
	}

	var marker sql.NullInt64
	if run.MarkerKnown {
		marker = sql.NullInt64{Int64: run.MarkerOffset, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (started_at, finished_at, marker_offset, cancelled, aborted, changed_packages, critical_packages)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		marker,
		run.Cancelled,
		run.Aborted,
		string(changed),
		string(crit),
	)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	for i, step := range run.Steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_steps (run_id, position, source_id, title, command, exit_code, error, skipped, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id, i,
			step.SourceID,
			step.Title,
			step.Command,
			step.ExitCode,
			step.Error,
			step.Skipped,
			nullTime(step.StartedAt),
			nullTime(step.FinishedAt),
		)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return 0, fmt.Errorf("failed to insert step %q: %w", step.Title, err)
		}
	}

	for i, p := range run.Pending {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_pending (run_id, position, source_id, label, pending, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, p.SourceID, p.Label, p.Count, p.Error)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return 0, fmt.Errorf("failed to insert pending count for %s: %w", p.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	run.ID = id
	return id, nil
}

const runColumns = `id, started_at, finished_at, marker_offset, cancelled, aborted, changed_packages, critical_packages`

// GetRun returns a run with its steps and pending counts.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}

	if err := s.loadDetails(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	rows.Close()

	// The single connection is free again once rows is closed.
	for _, run := range runs {
		if err := s.loadDetails(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// PruneRuns deletes all but the newest keep runs and returns how many were
// removed.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt, finishedAt, changed, crit string
	var marker sql.NullInt64

	if err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&marker,
		&run.Cancelled,
		&run.Aborted,
		&changed,
		&crit,
	); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at for run %d: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
		return nil, fmt.Errorf("failed to parse finished_at for run %d: %w", run.ID, err)
	}
	if marker.Valid {
		run.MarkerKnown = true
		run.MarkerOffset = marker.Int64
	}
	if err := json.Unmarshal([]byte(changed), &run.Changed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changed packages for run %d: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(crit), &run.Critical); err != nil {
		return nil, fmt.Errorf("failed to unmarshal critical packages for run %d: %w", run.ID, err)
	}
	return &run, nil
}

func (s *Store) loadDetails(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, source_id, title, command, exit_code, error, skipped, started_at, finished_at
		FROM run_steps
		WHERE run_id = ?
		ORDER BY position
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to get steps for run %d: %w", run.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var step RunStep
		var startedAt, finishedAt sql.NullString
		if err := rows.Scan(
			&step.Position,
			&step.SourceID,
			&step.Title,
			&step.Command,
			&step.ExitCode,
			&step.Error,
			&step.Skipped,
			&startedAt,
			&finishedAt,
		); err != nil {
			return fmt.Errorf("failed to scan step row: %w", err)
		}
		if step.StartedAt, err = parseNullTime(startedAt); err != nil {
			return fmt.Errorf("failed to parse step started_at for run %d: %w", run.ID, err)
		}
		if step.FinishedAt, err = parseNullTime(finishedAt); err != nil {
			return fmt.Errorf("failed to parse step finished_at for run %d: %w", run.ID, err)
		}
		run.Steps = append(run.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}
	rows.Close()

	pending, err := s.db.QueryContext(ctx, `
		SELECT source_id, label, pending, error
		FROM run_pending
		WHERE run_id = ?
		ORDER BY position
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to get pending counts for run %d: %w", run.ID, err)
	}
	defer pending.Close()

	for pending.Next() {
		var p Pending
		if err := pending.Scan(&p.SourceID, &p.Label, &p.Count, &p.Error); err != nil {
			return fmt.Errorf("failed to scan pending row: %w", err)
		}
		run.Pending = append(run.Pending, p)
	}
	if err := pending.Err(); err != nil {
		return fmt.Errorf("error iterating pending counts: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s.String)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
