package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/pipedrive-export/internal/fetcher"
	"github.com/sells-group/pipedrive-export/internal/model"
	"github.com/sells-group/pipedrive-export/internal/resilience"
	"github.com/sells-group/pipedrive-export/pkg/pipedrive"
)

// FieldSource serves deal field definitions.
type FieldSource interface {
	ListDealFields(ctx context.Context) ([]pipedrive.DealField, error)
}

// ResolveFieldDefinitions fetches the field definitions once per run and
// classifies them. Option ids are keyed by their string form and labels
// are NFC-normalized. An empty definition list is not an error.
func ResolveFieldDefinitions(ctx context.Context, src FieldSource, retry resilience.RetryConfig) ([]model.FieldDefinition, error) {
	fields, _, err := fetcher.Retry(ctx, retry, "list deal fields", src.ListDealFields)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve field definitions")
	}

	defs := make([]model.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Key) == "" {
			zap.L().Debug("pipeline: field definition without key", zap.String("name", f.Name))
			continue
		}
		def := model.FieldDefinition{
			Key:  model.FieldKey(f.Key),
			Name: norm.NFC.String(f.Name),
			Kind: model.KindFromFieldType(f.FieldType),
		}
		if def.Categorical() {
			def.Options = make(map[string]string, len(f.Options))
			for _, o := range f.Options {
				id := model.FromJSON(o.ID).Display()
				if id == "" {
					continue
				}
				def.Options[id] = norm.NFC.String(o.Label)
			}
		}
		defs = append(defs, def)
	}
	return defs, nil
}
