// Package history keeps a SQLite record of every sweep and its verdicts so
// regressions can be traced across runs.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/signalnine/relaxcheck/internal/result"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when no run matches an ID prefix.
var ErrRunNotFound = errors.New("run not found")

// Run summarizes one recorded sweep.
type Run struct {
	ID         string
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time
	Cells      int
	OK         int
	Errors     int
	Timeouts   int
}

type Store struct {
	db *sql.DB
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun stores a finished sweep and its verdicts in one transaction.
// The outcome counts on run are derived from verdicts.
func (s *Store) RecordRun(ctx context.Context, run Run, verdicts []result.Verdict) error {
	run.Cells, run.OK, run.Errors, run.Timeouts = len(verdicts), 0, 0, 0
	for _, v := range verdicts {
		switch v.Outcome {
		case result.OutcomeOK:
			run.OK++
		case result.OutcomeError:
			run.Errors++
		case result.OutcomeTimeout:
			run.Timeouts++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, label, started_at, finished_at, cells, ok, errors, timeouts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Cells, run.OK, run.Errors, run.Timeouts,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO verdicts (run_id, cell_index, precision, array_size, workers,
			trials, failures, timeouts, outcome, mismatch, duration_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing verdict insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range verdicts {
		_, err := stmt.ExecContext(ctx,
			run.ID, v.Cell.Index, v.Cell.Precision, v.Cell.ArraySize, v.Cell.Workers,
			v.Trials, v.Failures, v.Timeouts, string(v.Outcome), v.Mismatch, v.DurationS,
		)
		if err != nil {
			return fmt.Errorf("inserting verdict for cell %s: %w", v.Cell.Slug(), err)
		}
	}
	return tx.Commit()
}

// ListRuns returns up to limit runs, newest first. A limit of 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, label, started_at, finished_at, cells, ok, errors, timeouts
		FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var started, finished int64
	err := row.Scan(&run.ID, &run.Label, &started, &finished,
		&run.Cells, &run.OK, &run.Errors, &run.Timeouts)
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	return &run, nil
}

// FindRun resolves a full ID or a unique prefix of one.
func (s *Store) FindRun(ctx context.Context, idPrefix string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, started_at, finished_at, cells, ok, errors, timeouts
		FROM runs WHERE id LIKE ? || '%' ORDER BY id LIMIT 2`, idPrefix)
	if err != nil {
		return nil, fmt.Errorf("finding run %s: %w", idPrefix, err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idPrefix)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run prefix %q is ambiguous", idPrefix)
	}
}

// Verdicts returns a run's verdicts in sweep order.
func (s *Store) Verdicts(ctx context.Context, runID string) ([]result.Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cell_index, precision, array_size, workers, trials, failures,
			timeouts, outcome, mismatch, duration_s
		FROM verdicts WHERE run_id = ? ORDER BY cell_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []result.Verdict
	for rows.Next() {
		var v result.Verdict
		var outcome string
		err := rows.Scan(&v.Cell.Index, &v.Cell.Precision, &v.Cell.ArraySize, &v.Cell.Workers,
			&v.Trials, &v.Failures, &v.Timeouts, &outcome, &v.Mismatch, &v.DurationS)
		if err != nil {
			return nil, fmt.Errorf("scanning verdict: %w", err)
		}
		v.Cell.Trials = v.Trials
		v.Outcome = result.Outcome(outcome)
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}
