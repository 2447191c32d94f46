package export

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pipedrive-export/internal/model"
)

func sampleTable() Table {
	return Table{
		Header: []string{"Título", "Valor", "Etapa"},
		Rows: [][]model.Value{
			{model.Scalar("Deal A"), model.Number("12.5"), model.Scalar("Qualificado")},
			{model.Scalar("Deal B"), model.Null, model.Scalar("")},
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	w, err := New("XLSX", "")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, w.Format())
	assert.Equal(t, DefaultSheetName, w.(*XLSXWriter).Sheet)

	w, err = New("csv", "ignored")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, w.Format())

	_, err = New("parquet", "")
	assert.Error(t, err)
}

func TestXLSXWriter_Write(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dados_pipedrive_venda_funil_36.xlsx")
	w := &XLSXWriter{Sheet: DefaultSheetName}
	require.NoError(t, w.Write(path, sampleTable()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, DefaultSheetName, sheet.Name)
	require.Len(t, sheet.Rows, 3)

	cells := func(r int) []string {
		var out []string
		for _, c := range sheet.Rows[r].Cells {
			out = append(out, c.String())
		}
		return out
	}
	assert.Equal(t, []string{"Título", "Valor", "Etapa"}, cells(0))
	assert.Equal(t, []string{"Deal A", "12.5", "Qualificado"}, cells(1))
	assert.Equal(t, "", sheet.Rows[2].Cells[1].String())
}

func TestCSVWriter_Write(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, (&CSVWriter{}).Write(path, sampleTable()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Título", "Valor", "Etapa"},
		{"Deal A", "12.5", "Qualificado"},
		{"Deal B", "", ""},
	}, rows)
}

func TestWriter_ReplacesExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, (&CSVWriter{}).Write(path, Table{Header: []string{"a"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(data))
}

func TestWriteAtomic_FailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	err := writeAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("half"))
		return errors.New("boom")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file removed")
}

func TestWrite_MissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "out.xlsx")
	err := (&XLSXWriter{Sheet: DefaultSheetName}).Write(path, sampleTable())
	assert.Error(t, err)
}
