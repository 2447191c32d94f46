package pipeline

import (
	"strings"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// MultiValueSeparator joins resolved labels of a multi-select field.
const MultiValueSeparator = ", "

// NormalizeStats counts what Normalize rewrote.
type NormalizeStats struct {
	Fields    int // categorical fields considered
	Rewritten int // cells replaced with labels
	Unknown   int // option ids with no label, kept as-is
}

// Normalize replaces categorical option ids with their labels, in place.
// Only definitions whose key is in columns are applied; a nil columns
// applies every definition. Unknown ids pass through unchanged and a
// null single-select value stays null.
func Normalize(records []model.Record, defs []model.FieldDefinition, columns *model.ColumnSet) NormalizeStats {
	var stats NormalizeStats
	for i := range defs {
		def := &defs[i]
		if !def.Categorical() {
			continue
		}
		if columns != nil && !columns.Contains(def.Key) {
			continue
		}
		stats.Fields++

		for _, rec := range records {
			v, ok := rec.Fields[def.Key]
			if !ok {
				continue
			}
			var (
				out     model.Value
				unknown int
			)
			if def.Kind == model.FieldMultiSelect {
				out, unknown = normalizeMulti(def, v)
			} else {
				out, unknown = normalizeSingle(def, v)
			}
			rec.Fields[def.Key] = out
			stats.Rewritten++
			stats.Unknown += unknown
		}
	}
	return stats
}

func normalizeSingle(def *model.FieldDefinition, v model.Value) (model.Value, int) {
	switch v.Kind {
	case model.KindNull:
		return v, 0
	case model.KindList:
		labels, unknown := labelAll(def, v.Items)
		return model.Scalar(strings.Join(labels, MultiValueSeparator)), unknown
	default:
		if label, ok := def.Options[v.Text]; ok {
			return model.Scalar(label), 0
		}
		// Unresolved ids keep their original kind so numeric codes stay numeric.
		if v.Text == "" {
			return v, 0
		}
		return v, 1
	}
}

func normalizeMulti(def *model.FieldDefinition, v model.Value) (model.Value, int) {
	switch v.Kind {
	case model.KindNull:
		return model.Scalar(""), 0
	case model.KindList, model.KindDelimited:
		labels, unknown := labelAll(def, v.Items)
		return model.Scalar(strings.Join(labels, MultiValueSeparator)), unknown
	default:
		id := strings.TrimSpace(v.Text)
		if id == "" {
			return model.Scalar(""), 0
		}
		label, unknown := labelOne(def, id)
		return model.Scalar(label), unknown
	}
}

func labelAll(def *model.FieldDefinition, ids []string) ([]string, int) {
	labels := make([]string, 0, len(ids))
	unknown := 0
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		label, u := labelOne(def, id)
		labels = append(labels, label)
		unknown += u
	}
	return labels, unknown
}

func labelOne(def *model.FieldDefinition, id string) (string, int) {
	if label, ok := def.Options[id]; ok {
		return label, 0
	}
	if id == "" {
		return id, 0
	}
	return id, 1
}
