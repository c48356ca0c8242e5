package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/lingo/internal/annotator"
)

const defaultRecentRunsLimit = 20

// RunStore persists annotation reports in Postgres.
type RunStore struct {
	pool *Pool
}

func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// RecordRun inserts the run and its row failures in one transaction.
func (s *RunStore) RecordRun(ctx context.Context, report *annotator.Report) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not initialized")
	}
	if report == nil {
		return fmt.Errorf("report is nil")
	}

	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin run transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	runUUID := report.RunID.String()
	_, err = tx.Exec(ctx, `
INSERT INTO lingo.annotation_runs (
	run_uuid, filename, stored_path, source_column, status, error_message, fail_fast,
	rows_total, rows_annotated, rows_failed, started_at, finished_at, duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		runUUID,
		report.Filename,
		report.StoredPath,
		report.SourceColumn,
		report.Status,
		nullableText(report.Error),
		report.FailFast,
		report.Rows,
		report.Annotated,
		report.Failed,
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
		report.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert annotation run: %w", err)
	}

	for _, failure := range report.Failures {
		_, err = tx.Exec(ctx, `
INSERT INTO lingo.annotation_failures (run_uuid, row_index, stage, error_message)
VALUES ($1, $2, $3, $4)`,
			runUUID,
			failure.Row,
			failure.Stage,
			failure.Error,
		)
		if err != nil {
			return fmt.Errorf("insert annotation failure for row %d: %w", failure.Row, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run transaction: %w", err)
	}
	return nil
}

// RecentRuns lists runs newest first with their row failures.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]annotator.Report, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("run store is not initialized")
	}
	if limit <= 0 {
		limit = defaultRecentRunsLimit
	}

	rows, err := s.pool.Query(ctx, `
SELECT
	run_uuid::text,
	filename,
	stored_path,
	source_column,
	status,
	COALESCE(error_message, ''),
	fail_fast,
	rows_total,
	rows_annotated,
	rows_failed,
	started_at,
	finished_at,
	duration_ms
FROM lingo.annotation_runs
ORDER BY started_at DESC, run_id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query annotation runs: %w", err)
	}

	reports := make([]annotator.Report, 0, limit)
	for rows.Next() {
		var (
			report     annotator.Report
			runUUID    string
			durationMS int64
		)
		if err := rows.Scan(
			&runUUID,
			&report.Filename,
			&report.StoredPath,
			&report.SourceColumn,
			&report.Status,
			&report.Error,
			&report.FailFast,
			&report.Rows,
			&report.Annotated,
			&report.Failed,
			&report.StartedAt,
			&report.FinishedAt,
			&durationMS,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan annotation run: %w", err)
		}
		report.RunID, err = uuid.Parse(strings.TrimSpace(runUUID))
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse run uuid %q: %w", runUUID, err)
		}
		report.Duration = time.Duration(durationMS) * time.Millisecond
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate annotation runs: %w", err)
	}
	rows.Close()

	for i := range reports {
		if reports[i].Failed == 0 {
			continue
		}
		failures, err := s.runFailures(ctx, reports[i].RunID)
		if err != nil {
			return nil, err
		}
		reports[i].Failures = failures
	}
	return reports, nil
}

// CountRuns reports how many annotation runs have been recorded.
func (s *RunStore) CountRuns(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("run store is not initialized")
	}

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lingo.annotation_runs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count annotation runs: %w", err)
	}
	return count, nil
}

func (s *RunStore) runFailures(ctx context.Context, runID uuid.UUID) ([]annotator.RowFailure, error) {
	rows, err := s.pool.Query(ctx, `
SELECT row_index, stage, error_message
FROM lingo.annotation_failures
WHERE run_uuid = $1
ORDER BY row_index ASC`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query annotation failures: %w", err)
	}
	defer rows.Close()

	failures := make([]annotator.RowFailure, 0)
	for rows.Next() {
		var failure annotator.RowFailure
		if err := rows.Scan(&failure.Row, &failure.Stage, &failure.Error); err != nil {
			return nil, fmt.Errorf("scan annotation failure: %w", err)
		}
		failures = append(failures, failure)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotation failures: %w", err)
	}
	return failures, nil
}

func nullableText(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
