// Package extract reads monthly transaction spreadsheets into raw records.
package extract

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/config"
	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/resilience"
	"github.com/sells-group/petro-etl/internal/workbook"
)

// ErrSourceUnavailable is returned when a source directory cannot be read.
var ErrSourceUnavailable = eris.New("extract: source unavailable")

// Source binds a directory of spreadsheets to one category.
type Source struct {
	Category model.Category
	Dir      string
	Pattern  string
}

// SourcesFromConfig validates the configured sources.
func SourcesFromConfig(cfgs []config.SourceConfig) ([]Source, error) {
	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		cat, err := model.ParseCategory(c.Category)
		if err != nil {
			return nil, eris.Wrap(err, "extract: source")
		}
		out = append(out, Source{Category: cat, Dir: c.Dir, Pattern: c.Pattern})
	}
	return out, nil
}

// FilterSources keeps the sources of the given categories.
func FilterSources(sources []Source, cats ...model.Category) []Source {
	var out []Source
	for _, s := range sources {
		for _, c := range cats {
			if s.Category == c {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Summary counts what one pass over the sources read and skipped.
type Summary struct {
	Files         int      `json:"files"`
	FilesSkipped  int      `json:"files_skipped"`
	Sheets        int      `json:"sheets"`
	SheetsSkipped int      `json:"sheets_skipped"`
	Rows          int      `json:"rows"`
	Malformed     []string `json:"malformed,omitempty"`
}

// Extractor streams raw records out of the configured sources.
type Extractor struct {
	sources []Source
	aliases *AliasTable
	retry   resilience.RetryConfig
	log     *zap.Logger

	mu      sync.Mutex
	summary Summary
}

// New creates an Extractor. A nil alias table selects the built-in one.
func New(sources []Source, aliases *AliasTable, retry resilience.RetryConfig) *Extractor {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(model.StageExtract, "open_workbook")
	}
	return &Extractor{
		sources: sources,
		aliases: aliases,
		retry:   retry,
		log:     zap.L().With(zap.String("component", "extract")),
	}
}

// Summary returns the counts of the most recent Stream pass.
func (e *Extractor) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.summary
	s.Malformed = append([]string(nil), e.summary.Malformed...)
	return s
}

func (e *Extractor) update(fn func(s *Summary)) {
	e.mu.Lock()
	fn(&e.summary)
	e.mu.Unlock()
}

// Files lists the readable spreadsheets of one source in name order.
func Files(src Source) ([]string, error) {
	info, err := os.Stat(src.Dir)
	if err != nil {
		return nil, eris.Wrapf(ErrSourceUnavailable, "%s %s: %v", src.Category, src.Dir, err)
	}
	if !info.IsDir() {
		return nil, eris.Wrapf(ErrSourceUnavailable, "%s %s: not a directory", src.Category, src.Dir)
	}

	pattern := src.Pattern
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(src.Dir, pattern))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: bad pattern %q", pattern)
	}

	var files []string
	for _, m := range matches {
		base := filepath.Base(m)
		// Excel lock files sit next to open workbooks.
		if strings.HasPrefix(base, "~$") || !workbook.Supported(base) {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// Stream emits every record of every source. Each call re-reads the
// sources from the start. The record channel closes when extraction ends;
// the error channel then yields at most one error.
func (e *Extractor) Stream(ctx context.Context) (<-chan model.RawRecord, <-chan error) {
	recCh := make(chan model.RawRecord, 256)
	errCh := make(chan error, 1)

	e.update(func(s *Summary) { *s = Summary{} })

	go func() {
		defer close(recCh)
		defer close(errCh)

		for _, src := range e.sources {
			if err := e.streamSource(ctx, src, recCh); err != nil {
				errCh <- err
				return
			}
		}

		sum := e.Summary()
		e.log.Info("extraction complete",
			zap.Int("files", sum.Files),
			zap.Int("files_skipped", sum.FilesSkipped),
			zap.Int("sheets", sum.Sheets),
			zap.Int("sheets_skipped", sum.SheetsSkipped),
			zap.Int("rows", sum.Rows),
		)
	}()

	return recCh, errCh
}

func (e *Extractor) streamSource(ctx context.Context, src Source, out chan<- model.RawRecord) error {
	files, err := Files(src)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		e.log.Warn("no spreadsheets matched", zap.String("category", src.Category.String()),
			zap.String("dir", src.Dir), zap.String("pattern", src.Pattern))
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "extract: context cancelled")
		}
		if err := e.streamFile(ctx, src.Category, path, out); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) streamFile(ctx context.Context, cat model.Category, path string, out chan<- model.RawRecord) error {
	log := e.log.With(zap.String("file", filepath.Base(path)), zap.String("category", cat.String()))

	year, ok := ParseYear(path)
	if !ok {
		log.Warn("skipping file without a year in its name")
		e.update(func(s *Summary) { s.FilesSkipped++ })
		return nil
	}

	sheets, err := resilience.DoVal(ctx, e.retry, func(_ context.Context) ([]workbook.Sheet, error) {
		return workbook.Open(path)
	})
	if err != nil {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "extract: context cancelled")
		}
		log.Warn("skipping unreadable file", zap.Error(err))
		e.update(func(s *Summary) { s.FilesSkipped++ })
		return nil
	}
	e.update(func(s *Summary) { s.Files++ })

	for _, sheet := range sheets {
		month, ok := ParseMonth(sheet.Name)
		if !ok {
			log.Debug("skipping non-month sheet", zap.String("sheet", sheet.Name))
			e.update(func(s *Summary) { s.SheetsSkipped++ })
			continue
		}

		headerIdx, cols, ok := e.aliases.DetectHeader(year, sheet.Rows)
		if !ok {
			log.Warn("skipping malformed sheet: no header row", zap.String("sheet", sheet.Name))
			e.update(func(s *Summary) {
				s.SheetsSkipped++
				s.Malformed = append(s.Malformed, filepath.Base(path)+"/"+sheet.Name)
			})
			continue
		}
		e.update(func(s *Summary) { s.Sheets++ })

		base := filepath.Base(path)
		for i := headerIdx + 1; i < len(sheet.Rows); i++ {
			row := sheet.Rows[i]
			rec, ok := buildRecord(row, cols)
			if !ok {
				continue
			}
			rec.SourceFile = base
			rec.Sheet = sheet.Name
			rec.Row = i + 1
			rec.Category = cat
			rec.Year = year
			rec.Month = month

			select {
			case out <- rec:
				e.update(func(s *Summary) { s.Rows++ })
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "extract: context cancelled")
			}
		}
	}
	return nil
}

// buildRecord reads one data row. Rows with no company, product or volume
// are layout padding, not records.
func buildRecord(row []string, cols Columns) (model.RawRecord, bool) {
	company := cols.Get(row, FieldCompany)
	product := cols.Get(row, FieldProduct)
	volText := cols.Get(row, FieldVolume)
	if company == "" && product == "" && volText == "" {
		return model.RawRecord{}, false
	}

	unit := cols.Get(row, FieldUnit)
	if unit == "" {
		unit = cols.ImpliedUnit
	}

	return model.RawRecord{
		Company:    company,
		Product:    product,
		Unit:       strings.ToUpper(unit),
		Volume:     ParseVolume(volText),
		VolumeText: volText,
	}, true
}

// ParseVolume reads a numeric cell, tolerating thousands separators and
// accounting-style negatives. Blank, dash and text cells return nil.
func ParseVolume(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "--" {
		return nil
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if neg {
		v = -v
	}
	return &v
}
