// Package workbook reads and writes the spreadsheets the pipeline exchanges
// with analysts: monthly XLSX/CSV submissions, mapping review workbooks and
// rejection reports.
package workbook

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet is one named grid of cell text.
type Sheet struct {
	Name string
	Rows [][]string
}

// Supported reports whether the file extension is one the reader understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

// Open reads every sheet of an .xlsx file, or the single sheet of a .csv
// file (named after the file without its extension).
func Open(path string) ([]Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "workbook: read %s", filepath.Base(path))
	}
	return Parse(filepath.Base(path), data)
}

// Parse decodes a workbook held in memory. The name selects the format.
func Parse(name string, data []byte) ([]Sheet, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return ParseXLSX(data)
	case ".csv":
		sheet, err := ReadCSV(context.Background(), bytes.NewReader(data), strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			return nil, err
		}
		return []Sheet{sheet}, nil
	default:
		return nil, eris.Errorf("workbook: unsupported file type %q", filepath.Ext(name))
	}
}

// ParseXLSX decodes XLSX bytes into sheets in workbook order.
func ParseXLSX(data []byte) ([]Sheet, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "workbook: open xlsx")
	}

	sheets := make([]Sheet, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		sheets = append(sheets, toSheet(s))
	}
	return sheets, nil
}

// Find returns the sheet with the given name, ignoring case.
func Find(sheets []Sheet, name string) (Sheet, bool) {
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s.Name), name) {
			return s, true
		}
	}
	return Sheet{}, false
}

func toSheet(s *xlsx.Sheet) Sheet {
	out := Sheet{Name: s.Name, Rows: make([][]string, 0, len(s.Rows))}
	for _, row := range s.Rows {
		out.Rows = append(out.Rows, rowToStrings(row))
	}
	return out
}

// rowToStrings keeps numeric cells unformatted so "1,234.5" style display
// formats never reach the volume parser.
func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		if cell.Type() == xlsx.CellTypeNumeric {
			cells[j] = strings.TrimSpace(cell.Value)
			continue
		}
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
