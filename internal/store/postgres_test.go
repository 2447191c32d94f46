package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "status", "categories", "report", "error", "created_at", "updated_at"}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs \(id, status, categories, created_at, updated_at\)`).
		WithArgs(pgxmock.AnyArg(), "running", []byte(`[36,37]`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.Run{Categories: []int64{36, 37}}
	require.NoError(t, s.CreateRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, report = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("failed", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", model.RunStatusFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("partial", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), "run-1", model.RunStatusPartial, &model.RunReport{RunID: "run-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	report := []byte(`{"run_id":"run-1","fetched":4,"categories":[{"category_id":36,"status":"exported","rows":4,"fetch_complete":true}]}`)

	mock.ExpectQuery(`SELECT id, status, categories, report, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", model.RunStatusComplete, []byte(`[36]`), &report, "", now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, []int64{36}, run.Categories)
	require.NotNil(t, run.Report)
	assert.Equal(t, 4, run.Report.Fetched)
	assert.Equal(t, model.RunStatusComplete, run.Report.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, categories, report, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	var noReport *[]byte

	mock.ExpectQuery(`FROM runs WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("partial", 10, 5).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-2", model.RunStatusPartial, []byte(`[]`), noReport, "", now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusPartial, Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Nil(t, runs[0].Report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordCategory_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO category_exports.*ON CONFLICT \(run_id, category_id\) DO UPDATE`).
		WithArgs("run-1", int64(36), "exported", "/out/a.xlsx", 3, true, 3, 0, true, int64(20), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordCategory(context.Background(), "run-1", model.CategoryReport{
		CategoryID:     36,
		Status:         model.ExportStatusExported,
		Path:           "/out/a.xlsx",
		Fetched:        3,
		FetchComplete:  true,
		Rows:           3,
		StagesResolved: true,
		Duration:       20,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCategoryExports(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"category_id", "status", "path", "fetched", "fetch_complete", "row_count", "duplicates", "stages_resolved", "duration_ms", "error"}
	mock.ExpectQuery(`FROM category_exports WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(36), model.ExportStatusExported, "/out/a.xlsx", 3, true, 3, 0, true, int64(20), "").
			AddRow(int64(37), model.ExportStatusFailed, "", 0, false, 0, 0, false, int64(5), "stage lookup failed"))

	reps, err := s.ListCategoryExports(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, 3, reps[0].Rows)
	assert.Equal(t, model.ExportStatusFailed, reps[1].Status)
	assert.Equal(t, "stage lookup failed", reps[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
