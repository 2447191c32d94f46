// Package columns loads the export column dictionary: which deal fields
// are exported, in what order, and under which header label.
//
// Three file formats are accepted, chosen by extension:
//
//	.yaml/.yml  columns: [{key, label}] or plain keys, plus optional labels map
//	.csv        header row "key,label", then one field per row
//	.xlsx       same layout as csv on the first worksheet
//
// An empty path yields the built-in standard deal columns.
package columns

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// Dictionary is the raw, unvalidated column list.
type Dictionary struct {
	Columns []model.Column
	// Labels holds labels declared apart from the column list. They take
	// precedence over inline labels.
	Labels map[string]string
}

// Load reads the dictionary at path and validates it into a ColumnSet.
// Warnings describe tolerated problems such as duplicate columns.
func Load(path string) (*model.ColumnSet, []string, error) {
	if path == "" {
		return Build(Dictionary{Columns: model.DefaultColumns()})
	}

	var (
		dict Dictionary
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dict, err = readYAML(path)
	case ".csv":
		dict, err = readCSV(path)
	case ".xlsx":
		dict, err = readXLSX(path)
	default:
		return nil, nil, eris.Errorf("columns: unsupported dictionary format %q", ext)
	}
	if err != nil {
		return nil, nil, err
	}
	return Build(dict)
}

// Build normalizes a dictionary (trimmed keys, NFC labels) and validates
// it.
func Build(dict Dictionary) (*model.ColumnSet, []string, error) {
	keys := make([]model.FieldKey, 0, len(dict.Columns))
	labels := make(map[model.FieldKey]string)
	for _, c := range dict.Columns {
		key := model.FieldKey(strings.TrimSpace(string(c.Key)))
		keys = append(keys, key)
		if label := cleanLabel(c.Label); label != "" {
			if _, seen := labels[key]; !seen {
				labels[key] = label
			}
		}
	}
	for k, v := range dict.Labels {
		if label := cleanLabel(v); label != "" {
			labels[model.FieldKey(strings.TrimSpace(k))] = label
		}
	}

	cs, warnings, err := model.NewColumnSet(keys, labels)
	if err != nil {
		return nil, warnings, eris.Wrap(err, "columns: build")
	}
	return cs, warnings, nil
}

func cleanLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
