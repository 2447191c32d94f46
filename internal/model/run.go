package model

import "time"

// RunStatus represents the state of an export run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // at least one category failed or fetched incompletely
	RunStatusFailed   RunStatus = "failed"
)

// ExportStatus is the outcome of exporting one category.
type ExportStatus string

const (
	ExportStatusExported ExportStatus = "exported"
	ExportStatusSkipped  ExportStatus = "skipped"
	ExportStatusFailed   ExportStatus = "failed"
)

// Run is one recorded export run.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Categories []int64    `json:"categories"`
	Report     *RunReport `json:"report,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunReport summarizes an export run.
type RunReport struct {
	RunID          string           `json:"run_id"`
	Fetched        int              `json:"fetched"`
	Skipped        int              `json:"skipped"`
	Deduped        int              `json:"deduped"`
	Unmatched      int              `json:"unmatched"`
	SchemaResolved bool             `json:"schema_resolved"`
	Normalized     int              `json:"normalized"`
	Categories     []CategoryReport `json:"categories"`
	Refreshed      bool             `json:"refreshed"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// Status derives the run status from the category outcomes.
func (r *RunReport) Status() RunStatus {
	for _, c := range r.Categories {
		if c.Status == ExportStatusFailed || !c.FetchComplete {
			return RunStatusPartial
		}
	}
	return RunStatusComplete
}

// CategoryReport is the outcome of fetching and exporting one category.
type CategoryReport struct {
	CategoryID     int64        `json:"category_id"`
	Status         ExportStatus `json:"status"`
	Path           string       `json:"path,omitempty"`
	Fetched        int          `json:"fetched"`
	FetchComplete  bool         `json:"fetch_complete"`
	Rows           int          `json:"rows"`
	Duplicates     int          `json:"duplicates"`
	StagesResolved bool         `json:"stages_resolved"`
	Duration       int64        `json:"duration_ms"`
	Error          string       `json:"error,omitempty"`
}
