package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// DefaultSheetName is the worksheet name spreadsheet tools create by default.
const DefaultSheetName = "Sheet1"

// XLSXWriter writes a single-sheet workbook.
type XLSXWriter struct {
	Sheet string
}

// Format implements Writer.
func (w *XLSXWriter) Format() string { return FormatXLSX }

// Write implements Writer. Numeric values become number cells.
func (w *XLSXWriter) Write(path string, t Table) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(w.Sheet)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %q", w.Sheet)
	}

	header := sheet.AddRow()
	for _, h := range t.Header {
		header.AddCell().SetString(h)
	}

	for _, values := range t.Rows {
		row := sheet.AddRow()
		for _, v := range values {
			setCell(row.AddCell(), v)
		}
	}

	return writeAtomic(path, func(out io.Writer) error {
		if err := file.Write(out); err != nil {
			return eris.Wrapf(err, "export: write xlsx %s", path)
		}
		return nil
	})
}

func setCell(cell *xlsx.Cell, v model.Value) {
	if v.Numeric {
		if f, err := strconv.ParseFloat(v.Text, 64); err == nil {
			cell.SetFloat(f)
			return
		}
	}
	cell.SetString(v.Display())
}
