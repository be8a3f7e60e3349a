package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

// RunRepository is the audit trail of finished orchestration runs.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_runs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	answer TEXT NOT NULL,
	sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	turns INTEGER NOT NULL,
	forced BOOLEAN NOT NULL DEFAULT FALSE,
	termination TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS query_run_tool_events (
	run_id TEXT NOT NULL REFERENCES query_runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	turn INTEGER NOT NULL,
	tool TEXT NOT NULL,
	args JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL,
	output TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_query_runs_finished_at ON query_runs(finished_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) RecordRun(ctx context.Context, run *domain.QueryRunResult) error {
	sources, err := json.Marshal(nonNil(run.Final.Sources))
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO query_runs (id, query, answer, sources, turns, forced, termination, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, run.RunID, run.Query, run.Answer, sources, run.Turns, run.Forced, run.Termination, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, ev := range run.ToolEvents {
		args, err := json.Marshal(ev.Args)
		if err != nil {
			return fmt.Errorf("marshal tool args: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO query_run_tool_events (run_id, seq, turn, tool, args, status, output)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, run.RunID, i, ev.Turn, ev.Tool, args, ev.Status, ev.Output)
		if err != nil {
			return fmt.Errorf("insert tool event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run tx: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.QueryRunResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, query, answer, sources, turns, forced, termination, started_at, finished_at
FROM query_runs
WHERE id = $1
`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT turn, tool, args, status, output
FROM query_run_tool_events
WHERE run_id = $1
ORDER BY seq
`, id)
	if err != nil {
		return nil, fmt.Errorf("list tool events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev domain.ToolEvent
		var argsRaw []byte
		if err := rows.Scan(&ev.Turn, &ev.Tool, &argsRaw, &ev.Status, &ev.Output); err != nil {
			return nil, fmt.Errorf("scan tool event: %w", err)
		}
		if err := json.Unmarshal(argsRaw, &ev.Args); err != nil {
			return nil, fmt.Errorf("unmarshal tool args: %w", err)
		}
		run.ToolEvents = append(run.ToolEvents, ev)
		run.ToolsInvoked = append(run.ToolsInvoked, ev.Tool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool events: %w", err)
	}
	return &run, nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]domain.QueryRunResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, query, answer, sources, turns, forced, termination, started_at, finished_at
FROM query_runs
ORDER BY finished_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QueryRunResult, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type runScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row runScanner) (domain.QueryRunResult, error) {
	var run domain.QueryRunResult
	var sourcesRaw []byte
	err := row.Scan(
		&run.RunID,
		&run.Query,
		&run.Answer,
		&sourcesRaw,
		&run.Turns,
		&run.Forced,
		&run.Termination,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return domain.QueryRunResult{}, err
	}
	if err := json.Unmarshal(sourcesRaw, &run.Final.Sources); err != nil {
		return domain.QueryRunResult{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
