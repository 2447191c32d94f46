// Package export writes tabular artifacts (xlsx or csv) for exported
// categories.
package export

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pipedrive-export/internal/model"
)

// Supported artifact formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Table is a header row plus data rows. Null values render as empty cells.
type Table struct {
	Header []string
	Rows   [][]model.Value
}

// Writer writes a Table to a file.
type Writer interface {
	// Write replaces the file at path with t. A failed write leaves any
	// previous file untouched.
	Write(path string, t Table) error
	// Format returns the artifact format, which is also the file extension.
	Format() string
}

// New returns the writer for format. sheet names the xlsx worksheet.
func New(format, sheet string) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatXLSX:
		if sheet == "" {
			sheet = DefaultSheetName
		}
		return &XLSXWriter{Sheet: sheet}, nil
	case FormatCSV:
		return &CSVWriter{}, nil
	default:
		return nil, eris.Errorf("export: unsupported format %q", format)
	}
}

// writeAtomic streams into a temp file next to path and renames it into
// place once fill succeeds.
func writeAtomic(path string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "export: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "export: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "export: rename to %s", path)
	}
	committed = true
	return nil
}
