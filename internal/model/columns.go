package model

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Column is one exported field and its display label.
type Column struct {
	Key   FieldKey `json:"key" yaml:"key"`
	Label string   `json:"label,omitempty" yaml:"label,omitempty"`
}

// Header returns the label, or the raw key when no label is configured.
func (c Column) Header() string {
	if c.Label != "" {
		return c.Label
	}
	return string(c.Key)
}

// ColumnSet is the validated export allow-list: an ordered set of field
// keys with their display labels.
type ColumnSet struct {
	columns []Column
	index   map[FieldKey]int
}

// NewColumnSet validates an allow-list against a label dictionary.
// Duplicate keys in the allow-list collapse to their first position and
// are returned as warnings. Empty keys and labels for keys outside the
// allow-list are errors.
func NewColumnSet(keys []FieldKey, labels map[FieldKey]string) (*ColumnSet, []string, error) {
	var warnings, problems []string

	cs := &ColumnSet{index: make(map[FieldKey]int, len(keys))}
	for _, k := range keys {
		if strings.TrimSpace(string(k)) == "" {
			problems = append(problems, "empty field key in column list")
			continue
		}
		if _, dup := cs.index[k]; dup {
			warnings = append(warnings, "duplicate column "+string(k)+" ignored")
			continue
		}
		cs.index[k] = len(cs.columns)
		cs.columns = append(cs.columns, Column{Key: k, Label: labels[k]})
	}

	var unknown []string
	for k := range labels {
		if _, ok := cs.index[k]; !ok {
			unknown = append(unknown, string(k))
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		problems = append(problems, "label for "+k+" has no matching column")
	}

	if len(problems) > 0 {
		return nil, warnings, eris.Errorf("model: invalid column set: %s", strings.Join(problems, "; "))
	}
	return cs, warnings, nil
}

// Require fails unless every key is part of the set.
func (cs *ColumnSet) Require(keys ...FieldKey) error {
	var missing []string
	for _, k := range keys {
		if !cs.Contains(k) {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("model: column set is missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Columns returns the columns in export order.
func (cs *ColumnSet) Columns() []Column {
	out := make([]Column, len(cs.columns))
	copy(out, cs.columns)
	return out
}

// Contains reports whether key is part of the allow-list.
func (cs *ColumnSet) Contains(key FieldKey) bool {
	_, ok := cs.index[key]
	return ok
}

// Len returns the number of columns.
func (cs *ColumnSet) Len() int { return len(cs.columns) }

// Present narrows the set to columns that appear in at least one record,
// keeping allow-list order. It also returns the keys seen in no record.
func (cs *ColumnSet) Present(records []Record) (*ColumnSet, []FieldKey) {
	seen := make(map[FieldKey]bool, len(cs.columns))
	for _, r := range records {
		for k := range r.Fields {
			if cs.Contains(k) {
				seen[k] = true
			}
		}
	}

	out := &ColumnSet{index: make(map[FieldKey]int, len(seen))}
	var missing []FieldKey
	for _, c := range cs.columns {
		if !seen[c.Key] {
			missing = append(missing, c.Key)
			continue
		}
		out.index[c.Key] = len(out.columns)
		out.columns = append(out.columns, c)
	}
	return out, missing
}

// Without returns a copy of the set minus the given keys.
func (cs *ColumnSet) Without(keys ...FieldKey) *ColumnSet {
	drop := make(map[FieldKey]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := &ColumnSet{index: make(map[FieldKey]int, len(cs.columns))}
	for _, c := range cs.columns {
		if drop[c.Key] {
			continue
		}
		out.index[c.Key] = len(out.columns)
		out.columns = append(out.columns, c)
	}
	return out
}

// DefaultColumns is the allow-list of standard deal fields used when no
// column dictionary file is configured.
func DefaultColumns() []Column {
	return []Column{
		{Key: "id"},
		{Key: "title", Label: "Título"},
		{Key: "stage_id", Label: "Etapa"},
		{Key: "stage_change_time", Label: "Última alteração de etapa"},
		{Key: "close_time", Label: "Negócio fechado em"},
		{Key: "user_id", Label: "Proprietário"},
		{Key: "origin_id", Label: "ID de origem"},
		{Key: "add_time", Label: "Negócio criado em"},
		{Key: "value", Label: "Valor"},
		{Key: "channel", Label: "Canal de origem"},
		{Key: "status", Label: "Status"},
		{Key: "lost_reason", Label: "Motivo da perda"},
		{Key: "pipeline_id"},
	}
}
