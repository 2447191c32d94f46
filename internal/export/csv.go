package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

// CSVWriter writes comma-separated UTF-8 text.
type CSVWriter struct{}

// Format implements Writer.
func (w *CSVWriter) Format() string { return FormatCSV }

// Write implements Writer.
func (w *CSVWriter) Write(path string, t Table) error {
	return writeAtomic(path, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(t.Header); err != nil {
			return eris.Wrap(err, "export: write csv header")
		}
		record := make([]string, 0, len(t.Header))
		for _, values := range t.Rows {
			record = record[:0]
			for _, v := range values {
				record = append(record, v.Display())
			}
			if err := cw.Write(record); err != nil {
				return eris.Wrap(err, "export: write csv row")
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return eris.Wrap(err, "export: flush csv")
		}
		return nil
	})
}
