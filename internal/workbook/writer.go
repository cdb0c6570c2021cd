package workbook

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Writer builds an XLSX workbook sheet by sheet.
type Writer struct {
	f *xlsx.File
}

// NewWriter returns an empty workbook.
func NewWriter() *Writer {
	return &Writer{f: xlsx.NewFile()}
}

// SheetWriter appends rows to one sheet.
type SheetWriter struct {
	s *xlsx.Sheet
}

// AddSheet creates a sheet and writes header as its first row.
func (w *Writer) AddSheet(name string, header ...string) (*SheetWriter, error) {
	s, err := w.f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "workbook: add sheet %q", name)
	}
	sw := &SheetWriter{s: s}
	if len(header) > 0 {
		row := s.AddRow()
		for _, h := range header {
			row.AddCell().SetString(h)
		}
	}
	return sw, nil
}

// Append writes one row. Numbers stay numeric so analysts can sort and sum.
func (sw *SheetWriter) Append(values ...any) {
	row := sw.s.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		switch val := v.(type) {
		case nil:
			cell.SetString("")
		case string:
			cell.SetString(val)
		case int:
			cell.SetInt(val)
		case int64:
			cell.SetInt64(val)
		case float64:
			cell.SetFloat(val)
		case *float64:
			if val != nil {
				cell.SetFloat(*val)
			}
		case bool:
			cell.SetBool(val)
		default:
			cell.SetValue(val)
		}
	}
}

// Write encodes the workbook to w.
func (w *Writer) Write(out io.Writer) error {
	return eris.Wrap(w.f.Write(out), "workbook: write")
}

// Save writes the workbook to path, creating parent directories.
func (w *Writer) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "workbook: create %s", dir)
		}
	}
	if err := w.f.Save(path); err != nil {
		return eris.Wrapf(err, "workbook: save %s", filepath.Base(path))
	}
	return nil
}
