// Package storage persists finished runs to a local SQLite database so
// results can be listed and compared across invocations.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"merit/pkg/harness"
	"merit/pkg/logging"
)

// Store is a results database handle.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open results database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize results database %s: %w", path, err)
	}
	logging.Debug("Store", "results database ready at %s", path)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a finished run with all executions, assertions, and
// metric snapshots in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *harness.Run) error {
	env, err := json.Marshal(run.Environment)
	if err != nil {
		return fmt.Errorf("failed to encode run environment: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &run.Result
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, start_time, end_time, duration_ns, stopped_early, environment,
			passed, failed, errors, skipped, xfailed, xpassed, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.StartTime, run.EndTime, result.TotalDuration.Nanoseconds(),
		result.StoppedEarly, string(env),
		result.Passed(), result.Failed(), result.Errors(),
		result.Skipped(), result.XFailed(), result.XPassed(), result.Total(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for pos, exec := range result.Executions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO executions (id, run_id, position, full_name, status, duration_ns, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			exec.ID.String(), run.ID.String(), pos, exec.FullName,
			string(exec.Result.Status), exec.Result.Duration.Nanoseconds(), exec.Result.ErrMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to insert execution %s: %w", exec.FullName, err)
		}
		if err := insertAssertions(ctx, tx, exec.ID.String(), exec.Result.Assertions); err != nil {
			return err
		}
	}

	for _, metric := range result.Metrics {
		detail, err := json.Marshal(metric)
		if err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", metric.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO metrics (run_id, name, scope, count, mean, detail)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID.String(), metric.Name, string(metric.Scope), metric.Count, metric.Mean, string(detail),
		)
		if err != nil {
			return fmt.Errorf("failed to insert metric %s: %w", metric.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	logging.Info("Store", "saved run %s with %d executions", run.ID, result.Total())
	return nil
}

func insertAssertions(ctx context.Context, tx *sql.Tx, executionID string, assertions []*harness.AssertionResult) error {
	for pos, assertion := range assertions {
		detail, err := json.Marshal(struct {
			CheckerResults []harness.CheckerEvidence `json:"checker_results,omitempty"`
			MetricReads    []harness.MetricRead      `json:"metric_reads,omitempty"`
		}{assertion.CheckerResults, assertion.MetricReads})
		if err != nil {
			return fmt.Errorf("failed to encode assertion detail: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO assertions (id, execution_id, position, condition, passed, message, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			assertion.ID.String(), executionID, pos, assertion.Condition, assertion.Passed, assertion.Message, string(detail),
		)
		if err != nil {
			return fmt.Errorf("failed to insert assertion: %w", err)
		}
	}
	return nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID           string
	StartTime    time.Time
	Duration     time.Duration
	Total        int
	Passed       int
	Failed       int
	Errors       int
	StoppedEarly bool
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, duration_ns, total, passed, failed, errors, stopped_early
		FROM runs ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var summary RunSummary
		var durationNS int64
		if err := rows.Scan(&summary.ID, &summary.StartTime, &durationNS,
			&summary.Total, &summary.Passed, &summary.Failed, &summary.Errors, &summary.StoppedEarly); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summary.Duration = time.Duration(durationNS)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// ExecutionSummary is one row of a run's execution listing.
type ExecutionSummary struct {
	FullName string
	Status   string
	Duration time.Duration
	Error    string
}

// ListExecutions returns a run's executions in stored (discovery) order.
func (s *Store) ListExecutions(ctx context.Context, runID string) ([]ExecutionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT full_name, status, duration_ns, error
		FROM executions WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ExecutionSummary
	for rows.Next() {
		var summary ExecutionSummary
		var durationNS int64
		if err := rows.Scan(&summary.FullName, &summary.Status, &durationNS, &summary.Error); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		summary.Duration = time.Duration(durationNS)
		out = append(out, summary)
	}
	return out, rows.Err()
}
