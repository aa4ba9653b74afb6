package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mtr002/Job-Runner/internal/jobs"
)

// Store handles database operations for the run log
type Store struct {
	db *sql.DB
}

// NewStore creates a new database store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string {
	return "postgres"
}

// Record implements the runner's outcome sink
func (s *Store) Record(ctx context.Context, outcome *jobs.Outcome) error {
	return s.RecordOutcome(ctx, outcome)
}

// RecordOutcome inserts one run into the log
func (s *Store) RecordOutcome(ctx context.Context, outcome *jobs.Outcome) error {
	query := `
		INSERT INTO job_runs (job_id, action, args, output, error, exit_code, started_at, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	args := make([]string, len(outcome.Directive.Args))
	for i, arg := range outcome.Directive.Args {
		args[i] = validText(arg)
	}

	_, err := s.db.ExecContext(ctx, query,
		validText(outcome.JobID), validText(outcome.Directive.Name), pq.Array(args),
		validText(outcome.Output), validText(outcome.Error),
		outcome.ExitCode, outcome.StartedAt, int64(outcome.Duration))
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*jobs.Outcome, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT job_id, action, args, output, error, exit_code, started_at, duration_ns
		FROM job_runs ORDER BY started_at DESC, id DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*jobs.Outcome
	for rows.Next() {
		run := &jobs.Outcome{}
		var (
			args       []string
			durationNs int64
		)

		err := rows.Scan(
			&run.JobID, &run.Directive.Name, pq.Array(&args), &run.Output, &run.Error,
			&run.ExitCode, &run.StartedAt, &durationNs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if len(args) > 0 {
			run.Directive.Args = args
		}
		run.Duration = time.Duration(durationNs)
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// Ping reports whether the database answers
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// validText replaces invalid UTF-8, which program output and job payloads may
// carry but PostgreSQL TEXT columns reject.
func validText(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
