package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	categories TEXT NOT NULL DEFAULT '[]',
	report     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS category_exports (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	category_id     INTEGER NOT NULL,
	status          TEXT NOT NULL,
	path            TEXT NOT NULL DEFAULT '',
	fetched         INTEGER NOT NULL DEFAULT 0,
	fetch_complete  INTEGER NOT NULL DEFAULT 0,
	row_count       INTEGER NOT NULL DEFAULT 0,
	duplicates      INTEGER NOT NULL DEFAULT 0,
	stages_resolved INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, category_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
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
		return eris.Wrap(err, "sqlite: marshal categories")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, categories, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), string(categoriesJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error {
	var reportJSON sql.NullString
	if report != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
		reportJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, updated_at = ? WHERE id = ?`,
		string(status), reportJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, categories, report, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, categories, report, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordCategory(ctx context.Context, runID string, rep model.CategoryReport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO category_exports
			(run_id, category_id, status, path, fetched, fetch_complete, row_count, duplicates, stages_resolved, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, category_id) DO UPDATE SET
			status = excluded.status, path = excluded.path, fetched = excluded.fetched,
			fetch_complete = excluded.fetch_complete, row_count = excluded.row_count, duplicates = excluded.duplicates,
			stages_resolved = excluded.stages_resolved, duration_ms = excluded.duration_ms, error = excluded.error`,
		runID, rep.CategoryID, string(rep.Status), rep.Path, rep.Fetched, rep.FetchComplete,
		rep.Rows, rep.Duplicates, rep.StagesResolved, rep.Duration, rep.Error, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record category %d for run %s", rep.CategoryID, runID)
}

func (s *SQLiteStore) ListCategoryExports(ctx context.Context, runID string) ([]model.CategoryReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id, status, path, fetched, fetch_complete, row_count, duplicates, stages_resolved, duration_ms, error
		 FROM category_exports WHERE run_id = ? ORDER BY created_at, category_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list category exports %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CategoryReport
	for rows.Next() {
		rep, err := scanCategory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category export")
		}
		out = append(out, rep)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list category exports iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var categoriesJSON string
	var reportJSON sql.NullString

	err := row.Scan(&r.ID, &r.Status, &categoriesJSON, &reportJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := decodeRunJSON(&r, []byte(categoriesJSON), nullBytes(reportJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode run")
	}
	return &r, nil
}

func scanCategory(row scannable) (model.CategoryReport, error) {
	var rep model.CategoryReport
	err := row.Scan(&rep.CategoryID, &rep.Status, &rep.Path, &rep.Fetched, &rep.FetchComplete,
		&rep.Rows, &rep.Duplicates, &rep.StagesResolved, &rep.Duration, &rep.Error)
	return rep, err
}

func nullBytes(ns sql.NullString) []byte {
	if !ns.Valid {
		return nil
	}
	return []byte(ns.String)
}

// decodeRunJSON fills the JSON-encoded columns of a run. A nil report
// leaves Report unset.
func decodeRunJSON(r *model.Run, categoriesJSON, reportJSON []byte) error {
	if len(categoriesJSON) > 0 {
		if err := json.Unmarshal(categoriesJSON, &r.Categories); err != nil {
			return eris.Wrap(err, "unmarshal categories")
		}
	}
	if reportJSON != nil {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal(reportJSON, r.Report); err != nil {
			return eris.Wrap(err, "unmarshal report")
		}
	}
	return nil
}

func categoriesOrEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
