package model

import (
	"strconv"

	"github.com/rotisserie/eris"
)

// FieldKey is a remote field identifier: a standard name such as "title"
// or an opaque 40-character hash for custom fields.
type FieldKey string

// Record is one deal-like item fetched from the CRM.
type Record struct {
	ID         int64
	CategoryID int64
	Fields     map[FieldKey]Value
}

// Keys identifies the identity and category fields of a record payload.
type Keys struct {
	ID       FieldKey
	Category FieldKey
}

// DefaultKeys are the Pipedrive deal identity and pipeline fields.
var DefaultKeys = Keys{ID: "id", Category: "pipeline_id"}

// NewRecord decodes a raw payload item. It fails when the identity field
// is missing or not an integer. A missing or non-integer category yields
// CategoryID 0, which matches no configured category.
func NewRecord(raw map[string]any, keys Keys) (Record, error) {
	fields := make(map[FieldKey]Value, len(raw))
	for k, v := range raw {
		fields[FieldKey(k)] = FromJSON(v)
	}

	idVal, ok := fields[keys.ID]
	if !ok || idVal.IsNull() {
		return Record{}, eris.Errorf("model: record has no %q", keys.ID)
	}
	id, err := parseInt(idVal)
	if err != nil {
		return Record{}, eris.Wrapf(err, "model: record %q", keys.ID)
	}

	rec := Record{ID: id, Fields: fields}
	if catVal, ok := fields[keys.Category]; ok {
		if cat, err := parseInt(catVal); err == nil {
			rec.CategoryID = cat
		}
	}
	return rec, nil
}

// Get returns the value stored under key, or Null.
func (r Record) Get(key FieldKey) Value {
	if v, ok := r.Fields[key]; ok {
		return v
	}
	return Null
}

// Clone returns a copy whose field map can be modified independently.
func (r Record) Clone() Record {
	fields := make(map[FieldKey]Value, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	r.Fields = fields
	return r
}

func parseInt(v Value) (int64, error) {
	if v.Kind != KindScalar {
		return 0, eris.Errorf("expected integer, got %s", v.Kind)
	}
	n, err := strconv.ParseInt(v.Text, 10, 64)
	if err == nil {
		return n, nil
	}
	// Some payloads carry integral ids as floats ("36.0").
	f, ferr := strconv.ParseFloat(v.Text, 64)
	if ferr != nil || f != float64(int64(f)) {
		return 0, eris.Errorf("expected integer, got %q", v.Text)
	}
	return int64(f), nil
}

// Category is a pipeline selected for export.
type Category struct {
	ID   int64
	File string
}

// StageMap resolves stage ids to stage names within one category.
type StageMap map[string]string
