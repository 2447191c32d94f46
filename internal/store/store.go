// Package store persists export run history in SQLite or Postgres.
package store

import (
	"context"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Category exports
	RecordCategory(ctx context.Context, runID string, rep model.CategoryReport) error
	ListCategoryExports(ctx context.Context, runID string) ([]model.CategoryReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
