package columns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pipedrive-export/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func headers(cs *model.ColumnSet) []string {
	var out []string
	for _, c := range cs.Columns() {
		out = append(out, c.Header())
	}
	return out
}

func TestLoad_Default(t *testing.T) {
	t.Parallel()

	cs, warnings, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, cs.Contains("id"))
	assert.True(t, cs.Contains("pipeline_id"))
	assert.Equal(t, len(model.DefaultColumns()), cs.Len())
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "columns.yaml", `
columns:
  - id
  - key: title
    label: Título
  - key: 4a63aaad316c6774ee091333d26c425a45fc0ff4
    label: Origem
  - 4a63aaad316c6774ee091333d26c425a45fc0ff4
  - stage_id
  - pipeline_id
labels:
  stage_id: Etapa
`)

	cs, warnings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"duplicate column 4a63aaad316c6774ee091333d26c425a45fc0ff4 ignored"}, warnings)
	assert.Equal(t, []string{"id", "Título", "Origem", "Etapa", "pipeline_id"}, headers(cs))
}

func TestLoad_YAMLUnknownLabel(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "columns.yml", `
columns: [id, pipeline_id]
labels:
  ghost: Fantasma
`)

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestLoad_CSV(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "columns.csv", "\ufeffkey,label\nid,\ntitle, Título\n\n,\npipeline_id,\n")

	cs, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "Título", "pipeline_id"}, headers(cs))
}

func TestLoad_CSVMissingKeyHeader(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "columns.csv", "field,label\nid,\n")

	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_XLSX(t *testing.T) {
	t.Parallel()

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("colunas")
	require.NoError(t, err)
	for _, r := range [][]string{{"label", "key"}, {"", "id"}, {"Etapa", "stage_id"}, {"", "pipeline_id"}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "columns.xlsx")
	require.NoError(t, file.Save(path))

	cs, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "Etapa", "pipeline_id"}, headers(cs))
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, _, err = Load("columns.json")
	assert.Error(t, err)

	_, _, err = Load(writeFile(t, "empty.csv", ""))
	assert.Error(t, err)
}

func TestBuild_NormalizesLabels(t *testing.T) {
	t.Parallel()

	// "Título" with a combining acute accent.
	decomposed := "Ti\u0301tulo"
	cs, _, err := Build(Dictionary{Columns: []model.Column{{Key: " title ", Label: decomposed}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"Título"}, headers(cs))
	assert.True(t, cs.Contains("title"))
}
