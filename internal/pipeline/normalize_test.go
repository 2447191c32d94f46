package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipedrive-export/internal/model"
)

const (
	singleKey model.FieldKey = "4a63aaad316c6774ee091333d26c425a45fc0ff4"
	multiKey  model.FieldKey = "b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0"
)

func testDefs() []model.FieldDefinition {
	return []model.FieldDefinition{
		{Key: singleKey, Kind: model.FieldSingleSelect, Options: map[string]string{"7": "Site", "8": "Indicação"}},
		{Key: multiKey, Kind: model.FieldMultiSelect, Options: map[string]string{"101": "A", "102": "B"}},
		{Key: "title", Kind: model.FieldOther},
	}
}

func withField(key model.FieldKey, v model.Value) model.Record {
	return model.Record{ID: 1, CategoryID: 36, Fields: map[model.FieldKey]model.Value{key: v}}
}

func TestNormalize_MultiSelectShapes(t *testing.T) {
	t.Parallel()

	shapes := []model.Value{
		model.List("101", "102"),
		model.FromString("101,102"),
		model.FromString("101, 102"),
		model.FromJSON([]any{"101", "102"}),
	}

	for _, v := range shapes {
		records := []model.Record{withField(multiKey, v)}
		Normalize(records, testDefs(), nil)
		assert.Equal(t, "A, B", records[0].Get(multiKey).Display(), "input %+v", v)
	}
}

func TestNormalize_MultiSelectEmpty(t *testing.T) {
	t.Parallel()

	for _, v := range []model.Value{model.Null, model.Scalar(""), model.List(), model.FromString(" , ")} {
		records := []model.Record{withField(multiKey, v)}
		Normalize(records, testDefs(), nil)
		got := records[0].Get(multiKey)
		assert.Equal(t, model.KindScalar, got.Kind)
		assert.Equal(t, "", got.Display())
	}
}

func TestNormalize_MultiSelectSingleScalar(t *testing.T) {
	t.Parallel()

	records := []model.Record{withField(multiKey, model.Number("102"))}
	Normalize(records, testDefs(), nil)

	assert.Equal(t, "B", records[0].Get(multiKey).Display())
}

func TestNormalize_UnknownCodesPassThrough(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		withField(multiKey, model.List("101", "999")),
		withField(singleKey, model.Number("42")),
	}
	stats := Normalize(records, testDefs(), nil)

	assert.Equal(t, "A, 999", records[0].Get(multiKey).Display())
	assert.Equal(t, "42", records[1].Get(singleKey).Display())
	assert.Equal(t, 2, stats.Unknown)
	assert.Equal(t, 2, stats.Rewritten)
}

func TestNormalize_MultiSelectSkipsNullElements(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		withField(multiKey, model.FromJSON([]any{"101", nil})),
		withField(multiKey, model.List("", "102", " ")),
		withField(multiKey, model.FromJSON([]any{nil})),
	}
	stats := Normalize(records, testDefs(), nil)

	assert.Equal(t, "A", records[0].Get(multiKey).Display())
	assert.Equal(t, "B", records[1].Get(multiKey).Display())
	assert.Equal(t, "", records[2].Get(multiKey).Display())
	assert.Equal(t, 0, stats.Unknown)
}

func TestNormalize_SingleSelectUnknownKeepsKind(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		withField(singleKey, model.Number("999")),
		withField(singleKey, model.Scalar("legacy")),
		withField(singleKey, model.Scalar("")),
	}
	stats := Normalize(records, testDefs(), nil)

	assert.Equal(t, model.Number("999"), records[0].Get(singleKey))
	assert.Equal(t, model.Scalar("legacy"), records[1].Get(singleKey))
	assert.Equal(t, model.Scalar(""), records[2].Get(singleKey))
	assert.Equal(t, 2, stats.Unknown)
}

func TestNormalize_SingleSelect(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		withField(singleKey, model.Number("8")),
		withField(singleKey, model.Scalar("7")),
		withField(singleKey, model.Null),
	}
	Normalize(records, testDefs(), nil)

	assert.Equal(t, "Indicação", records[0].Get(singleKey).Display())
	assert.Equal(t, "Site", records[1].Get(singleKey).Display())
	assert.True(t, records[2].Get(singleKey).IsNull())
}

func TestNormalize_OtherFieldsUntouched(t *testing.T) {
	t.Parallel()

	records := []model.Record{withField("title", model.Scalar("101"))}
	stats := Normalize(records, testDefs(), nil)

	assert.Equal(t, model.Scalar("101"), records[0].Get("title"))
	assert.Equal(t, 0, stats.Rewritten)
	assert.Equal(t, 2, stats.Fields)
}

func TestNormalize_RespectsColumnSet(t *testing.T) {
	t.Parallel()

	columns, _, err := model.NewColumnSet([]model.FieldKey{"id", "pipeline_id", singleKey}, nil)
	require.NoError(t, err)

	records := []model.Record{{
		ID: 1,
		Fields: map[model.FieldKey]model.Value{
			singleKey: model.Number("7"),
			multiKey:  model.List("101"),
		},
	}}
	Normalize(records, testDefs(), columns)

	assert.Equal(t, "Site", records[0].Get(singleKey).Display())
	assert.Equal(t, model.KindList, records[0].Get(multiKey).Kind, "fields outside the allow-list are left alone")
}
