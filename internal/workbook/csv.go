package workbook

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadCSV reads a CSV stream into a single sheet. Ragged rows are kept as-is.
func ReadCSV(ctx context.Context, r io.Reader, name string) (Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	sheet := Sheet{Name: name}
	for {
		if ctx.Err() != nil {
			return Sheet{}, eris.Wrap(ctx.Err(), "workbook: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			return sheet, nil
		}
		if err != nil {
			return Sheet{}, eris.Wrap(err, "workbook: read csv row")
		}

		for i, field := range record {
			record[i] = strings.TrimSpace(strings.TrimPrefix(field, "\ufeff"))
		}
		sheet.Rows = append(sheet.Rows, record)
	}
}
