package pipeline

import (
	"context"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipedrive-export/internal/export"
	"github.com/sells-group/pipedrive-export/internal/metrics"
	"github.com/sells-group/pipedrive-export/internal/model"
	"github.com/sells-group/pipedrive-export/internal/resilience"
)

// Exporter writes one artifact per category.
type Exporter struct {
	stages     StageSource
	writer     export.Writer
	keys       model.Keys
	stageField model.FieldKey
	outputDir  string
	retry      resilience.RetryConfig
}

// NewExporter creates an Exporter writing into outputDir.
func NewExporter(stages StageSource, writer export.Writer, keys model.Keys, stageField model.FieldKey, outputDir string, retry resilience.RetryConfig) *Exporter {
	return &Exporter{
		stages:     stages,
		writer:     writer,
		keys:       keys,
		stageField: stageField,
		outputDir:  outputDir,
		retry:      retry,
	}
}

// ExportCategory filters, dedups, resolves stages, projects onto columns
// and writes the artifact of one category. Records belonging to other
// categories are ignored. A panic is recovered and reported as a failed
// export so later categories still run.
func (e *Exporter) ExportCategory(ctx context.Context, cat model.Category, records []model.Record, columns *model.ColumnSet) (rep model.CategoryReport, err error) {
	log := zap.L().With(zap.String("component", "exporter"), zap.Int64("category", cat.ID))
	started := time.Now()
	rep = model.CategoryReport{CategoryID: cat.ID}

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: category %d panicked: %v", cat.ID, r)
			log.Error("pipeline: category export panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
		if err != nil {
			rep.Status = model.ExportStatusFailed
			rep.Error = err.Error()
		}
		rep.Duration = time.Since(started).Milliseconds()
		metrics.ObserveCategory(string(rep.Status))
	}()

	var own []model.Record
	for _, r := range records {
		if r.CategoryID == cat.ID {
			own = append(own, r)
		}
	}
	if len(own) == 0 {
		rep.Status = model.ExportStatusSkipped
		log.Info("pipeline: no records for category, skipping")
		return rep, nil
	}

	deduped := Dedup(own)
	rep.Duplicates = len(own) - len(deduped)
	if rep.Duplicates > 0 {
		log.Info("pipeline: removed duplicates", zap.Int("before", len(own)), zap.Int("after", len(deduped)))
	}

	rows := make([]model.Record, len(deduped))
	for i, r := range deduped {
		rows[i] = r.Clone()
	}

	if columns.Contains(e.stageField) {
		stages, stageErr := FetchStageMap(ctx, e.stages, cat.ID, e.retry)
		if stageErr != nil {
			log.Warn("pipeline: stage names unavailable, keeping stage ids", zap.Error(stageErr))
		} else {
			ApplyStages(rows, e.stageField, stages)
			rep.StagesResolved = true
		}
	}

	table := BuildTable(rows, columns.Without(e.keys.ID, e.keys.Category))

	path := filepath.Join(e.outputDir, cat.File)
	if err := e.writer.Write(path, table); err != nil {
		return rep, eris.Wrapf(err, "pipeline: write category %d", cat.ID)
	}

	rep.Status = model.ExportStatusExported
	rep.Path = path
	rep.Rows = len(table.Rows)
	metrics.AddWritten(cat.ID, rep.Rows)
	log.Info("pipeline: category exported",
		zap.String("path", path),
		zap.Int("rows", rep.Rows),
		zap.Int("columns", len(table.Header)),
		zap.Bool("stages_resolved", rep.StagesResolved),
	)
	return rep, nil
}

// BuildTable projects records onto columns. Missing fields are null and
// headers use the column label, falling back to the raw key.
func BuildTable(records []model.Record, columns *model.ColumnSet) export.Table {
	cols := columns.Columns()
	t := export.Table{
		Header: make([]string, len(cols)),
		Rows:   make([][]model.Value, 0, len(records)),
	}
	for i, c := range cols {
		t.Header[i] = c.Header()
	}
	for _, r := range records {
		row := make([]model.Value, len(cols))
		for i, c := range cols {
			row[i] = r.Get(c.Key)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
