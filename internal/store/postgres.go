package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_run":      `INSERT INTO runs (id, status, categories, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_run":    `UPDATE runs SET status = $1, report = $2, updated_at = $3 WHERE id = $4`,
	"get_run":         `SELECT id, status, categories, report, error, created_at, updated_at FROM runs WHERE id = $1`,
	"record_category": recordCategorySQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'running',
	categories JSONB NOT NULL DEFAULT '[]',
	report     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS category_exports (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	category_id     BIGINT NOT NULL,
	status          TEXT NOT NULL,
	path            TEXT NOT NULL DEFAULT '',
	fetched         INTEGER NOT NULL DEFAULT 0,
	fetch_complete  BOOLEAN NOT NULL DEFAULT false,
	row_count       INTEGER NOT NULL DEFAULT 0,
	duplicates      INTEGER NOT NULL DEFAULT 0,
	stages_resolved BOOLEAN NOT NULL DEFAULT false,
	duration_ms     BIGINT NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, category_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

const recordCategorySQL = `INSERT INTO category_exports
	(run_id, category_id, status, path, fetched, fetch_complete, row_count, duplicates, stages_resolved, duration_ms, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (run_id, category_id) DO UPDATE SET
	status = EXCLUDED.status, path = EXCLUDED.path, fetched = EXCLUDED.fetched,
	fetch_complete = EXCLUDED.fetch_complete, row_count = EXCLUDED.row_count, duplicates = EXCLUDED.duplicates,
	stages_resolved = EXCLUDED.stages_resolved, duration_ms = EXCLUDED.duration_ms, error = EXCLUDED.error`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	now := time.Now().UTC()
	run.CreatedAt, run.UpdatedAt = now, now

	categoriesJSON, err := json.Marshal(categoriesOrEmpty(run.Categories))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal categories")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, categories, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Status), categoriesJSON, now, now,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error {
	var reportJSON []byte
	if report != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
		reportJSON = data
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, report = $2, updated_at = $3 WHERE id = $4`,
		string(status), reportJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, categories, report, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run %s: run not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, categories, report, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordCategory(ctx context.Context, runID string, rep model.CategoryReport) error {
	_, err := s.pool.Exec(ctx, recordCategorySQL,
		runID, rep.CategoryID, string(rep.Status), rep.Path, rep.Fetched, rep.FetchComplete,
		rep.Rows, rep.Duplicates, rep.StagesResolved, rep.Duration, rep.Error, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record category %d for run %s", rep.CategoryID, runID)
}

func (s *PostgresStore) ListCategoryExports(ctx context.Context, runID string) ([]model.CategoryReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category_id, status, path, fetched, fetch_complete, row_count, duplicates, stages_resolved, duration_ms, error
		 FROM category_exports WHERE run_id = $1 ORDER BY created_at, category_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list category exports %s", runID)
	}
	defer rows.Close()

	var out []model.CategoryReport
	for rows.Next() {
		rep, err := scanCategory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan category export")
		}
		out = append(out, rep)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list category exports iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var categoriesJSON []byte
	var reportJSON *[]byte

	if err := row.Scan(&r.ID, &r.Status, &categoriesJSON, &reportJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	var report []byte
	if reportJSON != nil {
		report = *reportJSON
	}
	if err := decodeRunJSON(&r, categoriesJSON, report); err != nil {
		return nil, err
	}
	return &r, nil
}
