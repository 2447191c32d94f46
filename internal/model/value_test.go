package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     any
		kind    ValueKind
		display string
		items   []string
	}{
		{"nil", nil, KindNull, "", nil},
		{"string", "hello", KindScalar, "hello", nil},
		{"delimited", "101, 102,,", KindDelimited, "101, 102,,", []string{"101", "102"}},
		{"json number", json.Number("36"), KindScalar, "36", nil},
		{"float", float64(2.5), KindScalar, "2.5", nil},
		{"integral float", float64(36), KindScalar, "36", nil},
		{"int", 7, KindScalar, "7", nil},
		{"bool", true, KindScalar, "true", nil},
		{"list", []any{json.Number("101"), "102"}, KindList, "101, 102", []string{"101", "102"}},
		{"empty list", []any{}, KindList, "", []string{}},
		{"list of objects", []any{map[string]any{"id": json.Number("5"), "label": "x"}}, KindList, "5", []string{"5"}},
		{"object with name", map[string]any{"id": json.Number("1"), "name": "Ana"}, KindObject, "Ana", nil},
		{"object with value", map[string]any{"value": json.Number("10")}, KindObject, "10", nil},
		{"object fallback", map[string]any{"a": "b"}, KindObject, `{"a":"b"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := FromJSON(tt.raw)
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, tt.display, v.Display())
			if tt.items != nil {
				assert.Equal(t, tt.items, v.Items)
			}
		})
	}
}

func TestFromJSON_NumericFlag(t *testing.T) {
	t.Parallel()

	assert.True(t, FromJSON(json.Number("12.5")).Numeric)
	assert.False(t, FromJSON("12.5").Numeric)
}

func TestValue_IsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, Null.IsEmpty())
	assert.True(t, Scalar("").IsEmpty())
	assert.True(t, List().IsEmpty())
	assert.False(t, Scalar("x").IsEmpty())
	assert.False(t, List("a").IsEmpty())
}

func TestSplitDelimited(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, SplitDelimited(" a ,b"))
	assert.Equal(t, []string{}, SplitDelimited(","))
}

func TestValueKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "delimited", KindDelimited.String())
	assert.Equal(t, "unknown", ValueKind(99).String())
}
