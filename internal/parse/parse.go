// Package parse reads operator-supplied import files (CSV or XLSX) into
// raw row slices and maps locale-specific cell tokens to typed values.
package parse

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

// Options configures file reading.
type Options struct {
	// Encoding is an IANA charset name for CSV input (e.g. "windows-1255",
	// the encoding of legacy desktop exports). Empty means UTF-8. Ignored
	// for XLSX, which is always UTF-8 internally.
	Encoding string
}

// ReadRows loads every row of the file as a slice of cell strings. The
// format is chosen by extension: .xlsx uses the first sheet, anything
// else is parsed as comma-separated text with quoted-field support.
func ReadRows(path string, opts Options) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSX(path)
	}
	return readCSV(path, opts.Encoding)
}

func readCSV(path, encoding string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "parse: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if encoding != "" && !strings.EqualFold(encoding, "utf-8") {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "parse: unsupported encoding %q", encoding)
		}
		r = enc.NewDecoder().Reader(f)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // column counts vary in hand-edited exports
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "parse: read csv")
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "parse: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("parse: xlsx file has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// IsBlank reports whether every cell of a row is whitespace.
func IsBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Cell returns the i-th cell of a row, or "" when the row is too short.
func Cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}
