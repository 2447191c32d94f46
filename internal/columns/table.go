package columns

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pipedrive-export/internal/model"
)

func readCSV(path string) (Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dictionary{}, eris.Wrapf(err, "columns: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dictionary{}, eris.Wrapf(err, "columns: read %s", path)
		}
		rows = append(rows, rec)
	}
	return fromRows(rows)
}

func readXLSX(path string) (Dictionary, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return Dictionary{}, eris.Wrapf(err, "columns: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return Dictionary{}, eris.Errorf("columns: %s has no worksheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromRows(rows)
}

// fromRows reads key and label columns located by the header row. Blank
// rows are skipped.
func fromRows(rows [][]string) (Dictionary, error) {
	if len(rows) == 0 {
		return Dictionary{}, eris.New("columns: dictionary is empty")
	}

	keyIdx, labelIdx := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "key":
			keyIdx = i
		case "label":
			labelIdx = i
		}
	}
	if keyIdx < 0 {
		return Dictionary{}, eris.New(`columns: header row has no "key" column`)
	}

	var dict Dictionary
	for _, row := range rows[1:] {
		key := cell(row, keyIdx)
		if key == "" && cell(row, labelIdx) == "" {
			continue
		}
		dict.Columns = append(dict.Columns, model.Column{Key: model.FieldKey(key), Label: cell(row, labelIdx)})
	}
	return dict, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
