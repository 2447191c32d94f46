package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pipedrive-export/internal/fetcher"
	"github.com/sells-group/pipedrive-export/internal/model"
	"github.com/sells-group/pipedrive-export/internal/resilience"
	"github.com/sells-group/pipedrive-export/pkg/pipedrive"
)

// Partition groups records by category id. Records whose category is not
// in categories are dropped and counted in unmatched. Every configured
// category has an entry, possibly empty.
func Partition(records []model.Record, categories []model.Category) (parts map[int64][]model.Record, unmatched int) {
	parts = make(map[int64][]model.Record, len(categories))
	for _, c := range categories {
		parts[c.ID] = nil
	}
	for _, r := range records {
		if _, ok := parts[r.CategoryID]; !ok {
			unmatched++
			continue
		}
		parts[r.CategoryID] = append(parts[r.CategoryID], r)
	}
	return parts, unmatched
}

// StageSource serves the stages of a pipeline.
type StageSource interface {
	ListStages(ctx context.Context, pipelineID int64) ([]pipedrive.Stage, error)
}

// FetchStageMap loads the stage id to name mapping of one category.
func FetchStageMap(ctx context.Context, src StageSource, categoryID int64, retry resilience.RetryConfig) (model.StageMap, error) {
	stages, _, err := fetcher.Retry(ctx, retry, "list stages", func(ctx context.Context) ([]pipedrive.Stage, error) {
		return src.ListStages(ctx, categoryID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: stages for category %d", categoryID)
	}

	m := make(model.StageMap, len(stages))
	for _, s := range stages {
		id := model.FromJSON(s.ID).Display()
		if id == "" {
			continue
		}
		m[id] = s.Name
	}
	return m, nil
}

// ApplyStages rewrites the stage field of each record through stages.
// Unknown stage ids and nulls are kept.
func ApplyStages(records []model.Record, field model.FieldKey, stages model.StageMap) {
	for _, r := range records {
		v, ok := r.Fields[field]
		if !ok || v.IsNull() {
			continue
		}
		if name, ok := stages[v.Display()]; ok {
			r.Fields[field] = model.Scalar(name)
		}
	}
}
