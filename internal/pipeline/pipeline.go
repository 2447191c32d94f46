// Package pipeline turns fetched deals into one artifact per pipeline:
// dedup, categorical normalization, stage naming, partitioning and export.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipedrive-export/internal/export"
	"github.com/sells-group/pipedrive-export/internal/fetcher"
	"github.com/sells-group/pipedrive-export/internal/metrics"
	"github.com/sells-group/pipedrive-export/internal/model"
	"github.com/sells-group/pipedrive-export/internal/resilience"
	"github.com/sells-group/pipedrive-export/pkg/pipedrive"
)

// RunRecorder persists run history.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *model.Run) error
	RecordCategory(ctx context.Context, runID string, rep model.CategoryReport) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error
}

// Refresher recalculates a downstream workbook that links to the exported
// artifacts. It reports false when there was nothing to refresh.
type Refresher interface {
	Refresh(ctx context.Context, path string) (bool, error)
}

// Options configures a Pipeline.
type Options struct {
	Categories   []model.Category
	Columns      *model.ColumnSet
	Keys         model.Keys
	StageField   model.FieldKey
	OutputDir    string
	Retry        resilience.RetryConfig
	WorkbookPath string
}

// Option adds an optional collaborator.
type Option func(*Pipeline)

// WithRecorder records runs and category exports.
func WithRecorder(r RunRecorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithRefresher refreshes Options.WorkbookPath after the exports.
func WithRefresher(r Refresher) Option {
	return func(p *Pipeline) {
		p.refresher = r
	}
}

// Pipeline orchestrates a full resync of the configured categories.
type Pipeline struct {
	client    pipedrive.Client
	fetcher   *fetcher.Fetcher
	exporter  *Exporter
	opts      Options
	recorder  RunRecorder
	refresher Refresher
}

// New validates the setup and creates a Pipeline. Errors returned here are
// the only ones that abort a run.
func New(client pipedrive.Client, f *fetcher.Fetcher, writer export.Writer, opts Options, extras ...Option) (*Pipeline, error) {
	if len(opts.Categories) == 0 {
		return nil, eris.New("pipeline: no categories configured")
	}
	if opts.Columns == nil {
		return nil, eris.New("pipeline: no column set")
	}
	if err := opts.Columns.Require(opts.Keys.ID, opts.Keys.Category); err != nil {
		return nil, eris.Wrap(err, "pipeline: column set")
	}
	if err := checkWritableDir(opts.OutputDir); err != nil {
		return nil, err
	}

	p := &Pipeline{
		client:   client,
		fetcher:  f,
		exporter: NewExporter(client, writer, opts.Keys, opts.StageField, opts.OutputDir, opts.Retry),
		opts:     opts,
	}
	for _, e := range extras {
		e(p)
	}
	return p, nil
}

// Run fetches every category, normalizes and exports them. Failures of a
// single category are reported in the returned RunReport. The error is
// non-nil only when ctx ended before the run finished.
func (p *Pipeline) Run(ctx context.Context) (*model.RunReport, error) {
	report := &model.RunReport{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", report.RunID))

	ids := make([]int64, len(p.opts.Categories))
	for i, c := range p.opts.Categories {
		ids[i] = c.ID
	}
	log.Info("pipeline: starting export", zap.Int64s("categories", ids))

	if p.recorder != nil {
		run := &model.Run{ID: report.RunID, Status: model.RunStatusRunning, Categories: ids}
		if err := p.recorder.CreateRun(ctx, run); err != nil {
			log.Warn("pipeline: failed to record run", zap.Error(err))
		}
	}

	records, results := p.fetcher.FetchAll(ctx, ids)
	for _, res := range results {
		report.Skipped += res.Skipped
	}
	report.Fetched = len(records)

	unique := Dedup(records)
	report.Deduped = len(records) - len(unique)
	log.Info("pipeline: deduplicated records", zap.Int("before", len(records)), zap.Int("after", len(unique)))

	defs, err := ResolveFieldDefinitions(ctx, p.client, p.opts.Retry)
	if err != nil {
		log.Warn("pipeline: field definitions unavailable, exporting raw option ids", zap.Error(err))
	} else {
		report.SchemaResolved = true
		stats := Normalize(unique, defs, p.opts.Columns)
		report.Normalized = stats.Rewritten
		log.Info("pipeline: normalized categorical fields",
			zap.Int("definitions", len(defs)),
			zap.Int("fields", stats.Fields),
			zap.Int("rewritten", stats.Rewritten),
			zap.Int("unknown_codes", stats.Unknown),
		)
	}

	columns, missing := p.opts.Columns.Present(unique)
	if len(missing) > 0 {
		keys := make([]string, len(missing))
		for i, k := range missing {
			keys[i] = string(k)
		}
		log.Warn("pipeline: configured columns absent from every record", zap.Strings("columns", keys))
	}

	parts, unmatched := Partition(unique, p.opts.Categories)
	report.Unmatched = unmatched
	if unmatched > 0 {
		log.Info("pipeline: dropped records outside configured categories", zap.Int("records", unmatched))
	}

	for i, cat := range p.opts.Categories {
		rep, exportErr := p.exporter.ExportCategory(ctx, cat, parts[cat.ID], columns)
		rep.Fetched = len(results[i].Records)
		rep.FetchComplete = results[i].Complete
		if exportErr != nil {
			log.Error("pipeline: category export failed", zap.Int64("category", cat.ID), zap.Error(exportErr))
		}
		report.Categories = append(report.Categories, rep)

		if p.recorder != nil {
			if err := p.recorder.RecordCategory(ctx, report.RunID, rep); err != nil {
				log.Warn("pipeline: failed to record category", zap.Int64("category", cat.ID), zap.Error(err))
			}
		}
	}

	if p.refresher != nil && p.opts.WorkbookPath != "" {
		refreshed, err := p.refresher.Refresh(ctx, p.opts.WorkbookPath)
		if err != nil {
			log.Warn("pipeline: workbook refresh failed", zap.String("path", p.opts.WorkbookPath), zap.Error(err))
		}
		report.Refreshed = refreshed
	}

	report.FinishedAt = time.Now().UTC()
	status := report.Status()
	metrics.MarkRunFinished(report.FinishedAt)

	if p.recorder != nil {
		if err := p.recorder.CompleteRun(ctx, report.RunID, status, report); err != nil {
			log.Warn("pipeline: failed to complete run record", zap.Error(err))
		}
	}

	log.Info("pipeline: export finished",
		zap.String("status", string(status)),
		zap.Int("fetched", report.Fetched),
		zap.Int("duplicates", report.Deduped),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "pipeline: run interrupted")
	}
	return report, nil
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return eris.Wrapf(err, "pipeline: output dir %s", dir)
	}
	if !info.IsDir() {
		return eris.Errorf("pipeline: output dir %s is not a directory", dir)
	}
	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return eris.Wrapf(err, "pipeline: output dir %s is not writable", dir)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
