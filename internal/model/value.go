package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the shape a field value arrived in.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindScalar
	KindDelimited
	KindList
	KindObject
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindDelimited:
		return "delimited"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// ListDelimiter separates option ids in a delimited multi-value string.
const ListDelimiter = ","

// Value is a decoded field value, classified once at ingestion so
// downstream code never re-inspects the raw JSON shape.
//
// Text holds the scalar text, the untouched delimited string, or the
// display text of an object. Items holds the trimmed non-empty parts of
// a delimited string or the stringified elements of a list.
type Value struct {
	Kind    ValueKind
	Text    string
	Items   []string
	Numeric bool
}

// Null is the absent value.
var Null = Value{Kind: KindNull}

// Scalar returns a scalar text value.
func Scalar(s string) Value {
	return Value{Kind: KindScalar, Text: s}
}

// Number returns a numeric scalar value.
func Number(s string) Value {
	return Value{Kind: KindScalar, Text: s, Numeric: true}
}

// List returns a list value.
func List(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{Kind: KindList, Items: items}
}

// FromString classifies a string as delimited when it contains the list
// delimiter, otherwise as a scalar.
func FromString(s string) Value {
	if !strings.Contains(s, ListDelimiter) {
		return Scalar(s)
	}
	return Value{Kind: KindDelimited, Text: s, Items: SplitDelimited(s)}
}

// SplitDelimited splits s on the list delimiter, trimming each part and
// dropping empty parts.
func SplitDelimited(s string) []string {
	parts := strings.Split(s, ListDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FromJSON converts a value produced by a json.Decoder with UseNumber
// enabled into a Value.
func FromJSON(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null
	case string:
		return FromString(v)
	case json.Number:
		return Number(v.String())
	case float64:
		return Number(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		return Number(strconv.Itoa(v))
	case int64:
		return Number(strconv.FormatInt(v, 10))
	case bool:
		return Scalar(strconv.FormatBool(v))
	case []any:
		items := make([]string, 0, len(v))
		for _, e := range v {
			items = append(items, elementText(e))
		}
		return List(items...)
	case map[string]any:
		return Value{Kind: KindObject, Text: objectText(v)}
	default:
		return Scalar(fmt.Sprint(v))
	}
}

// elementText stringifies a list element. Objects inside lists (e.g.
// {"value": 3, "label": "x"}) reduce to their id-like member.
func elementText(e any) string {
	switch v := e.(type) {
	case nil:
		return ""
	case map[string]any:
		for _, k := range []string{"id", "value"} {
			if inner, ok := v[k]; ok && inner != nil {
				return elementText(inner)
			}
		}
		return compactJSON(v)
	default:
		return FromJSON(v).Display()
	}
}

// objectText picks a human-readable member of a nested object, such as
// the owner name of a user reference.
func objectText(m map[string]any) string {
	for _, k := range []string{"name", "value"} {
		if inner, ok := m[k]; ok && inner != nil {
			return FromJSON(inner).Display()
		}
	}
	return compactJSON(m)
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(buf.String())
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsEmpty reports whether the value is null, an empty string or an
// empty list.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindList:
		return len(v.Items) == 0
	default:
		return v.Text == ""
	}
}

// Display returns the text written to an export cell. Null is "".
func (v Value) Display() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindList:
		return strings.Join(v.Items, ", ")
	default:
		return v.Text
	}
}
