package model

import (
	"strings"
)

// FieldKind classifies a field definition for categorical normalization.
type FieldKind string

const (
	FieldSingleSelect FieldKind = "single_select"
	FieldMultiSelect  FieldKind = "multi_select"
	FieldOther        FieldKind = "other"
)

// KindFromFieldType maps a remote field_type to a FieldKind.
func KindFromFieldType(fieldType string) FieldKind {
	switch strings.ToLower(fieldType) {
	case "enum":
		return FieldSingleSelect
	case "set":
		return FieldMultiSelect
	default:
		return FieldOther
	}
}

// FieldDefinition describes one remote field and, for categorical
// fields, its option id to label mapping. Option ids are stored in their
// string form so 101 and "101" resolve identically.
type FieldDefinition struct {
	Key     FieldKey          `json:"key"`
	Name    string            `json:"name,omitempty"`
	Kind    FieldKind         `json:"kind"`
	Options map[string]string `json:"options,omitempty"`
}

// Categorical reports whether values of this field are option ids.
func (d FieldDefinition) Categorical() bool {
	return d.Kind == FieldSingleSelect || d.Kind == FieldMultiSelect
}

// Label resolves an option id, returning the id itself when unknown.
func (d FieldDefinition) Label(id string) string {
	if label, ok := d.Options[id]; ok {
		return label
	}
	return id
}

// FieldSchema is an indexed set of field definitions for one resync.
type FieldSchema struct {
	Definitions []FieldDefinition
	byKey       map[FieldKey]*FieldDefinition
}

// NewFieldSchema indexes definitions by key. Later duplicates win.
func NewFieldSchema(defs []FieldDefinition) *FieldSchema {
	s := &FieldSchema{
		Definitions: defs,
		byKey:       make(map[FieldKey]*FieldDefinition, len(defs)),
	}
	for i := range s.Definitions {
		s.byKey[s.Definitions[i].Key] = &s.Definitions[i]
	}
	return s
}

// ByKey returns the definition for key, or nil if not found.
func (s *FieldSchema) ByKey(key FieldKey) *FieldDefinition {
	if s == nil {
		return nil
	}
	return s.byKey[key]
}

// Categorical returns the single- and multi-select definitions.
func (s *FieldSchema) Categorical() []*FieldDefinition {
	if s == nil {
		return nil
	}
	var out []*FieldDefinition
	for i := range s.Definitions {
		if s.Definitions[i].Categorical() {
			out = append(out, &s.Definitions[i])
		}
	}
	return out
}
