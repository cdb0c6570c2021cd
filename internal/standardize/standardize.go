// Package standardize resolves raw labels through the approved mapping table.
package standardize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/model"
)

// ErrUnmappedLabels aborts a strict-mode run that met labels the approved
// table does not know.
var ErrUnmappedLabels = eris.New("standardize: unmapped labels")

// Mode selects how unmapped labels are handled.
type Mode string

const (
	// Lenient quarantines records with unmapped labels in the rejection list.
	Lenient Mode = "lenient"
	// Strict processes the whole input and then fails if any label was unmapped.
	Strict Mode = "strict"
)

// ParseMode converts a CLI/config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Lenient, "":
		return Lenient, nil
	case Strict:
		return Strict, nil
	}
	return "", eris.Errorf("standardize: unknown mode %q (valid: lenient, strict)", s)
}

// Result is the output of one standardization pass.
type Result struct {
	Records    []model.StandardizedRecord
	Rejections []model.Rejection
	Summary    model.StageSummary
	// Unmapped lists distinct unmapped labels as "product: X" or "company (BDC): Y".
	Unmapped []string
}

// Standardizer maps raw records onto canonical labels.
type Standardizer struct {
	table *mapping.Table
	mode  Mode
	log   *zap.Logger
}

// New creates a Standardizer over an approved table.
func New(table *mapping.Table, mode Mode) *Standardizer {
	if mode == "" {
		mode = Lenient
	}
	return &Standardizer{
		table: table,
		mode:  mode,
		log:   zap.L().With(zap.String("component", "standardize"), zap.String("mapping_version", short(table.Version()))),
	}
}

// Standardize resolves one record. On failure it returns the rejection
// reason and a detail string; the record is unusable.
func (s *Standardizer) Standardize(rec model.RawRecord) (model.StandardizedRecord, string, string) {
	if missing := missingFields(rec); len(missing) > 0 {
		return model.StandardizedRecord{}, model.ReasonMissingField, strings.Join(missing, ",")
	}

	pe, pres := s.table.ResolveProduct(rec.Product)
	if pres == mapping.Removed {
		return model.StandardizedRecord{}, model.ReasonRemovedProduct, rec.Product
	}
	ce, cres := s.table.ResolveCompany(rec.Category, rec.Company)
	if cres == mapping.Removed {
		return model.StandardizedRecord{}, model.ReasonRemovedCompany, rec.Company
	}
	if pres == mapping.Unmapped {
		return model.StandardizedRecord{}, model.ReasonUnmappedProduct, rec.Product
	}
	if cres == mapping.Unmapped {
		return model.StandardizedRecord{}, model.ReasonUnmappedCompany, rec.Company
	}

	return model.StandardizedRecord{
		SourceFile:       rec.SourceFile,
		Sheet:            rec.Sheet,
		Row:              rec.Row,
		Category:         rec.Category,
		Year:             rec.Year,
		Month:            rec.Month,
		Company:          rec.Company,
		Product:          rec.Product,
		CanonicalCompany: ce.Canonical,
		CanonicalProduct: pe.Canonical,
		ProductCategory:  pe.Category,
		Unit:             rec.Unit,
		Volume:           *rec.Volume,
	}, "", ""
}

func missingFields(rec model.RawRecord) []string {
	var missing []string
	if strings.TrimSpace(rec.Company) == "" {
		missing = append(missing, "company")
	}
	if strings.TrimSpace(rec.Product) == "" {
		missing = append(missing, "product")
	}
	if rec.Volume == nil {
		missing = append(missing, "volume")
	}
	if rec.Year <= 0 {
		missing = append(missing, "year")
	}
	if rec.Month < 1 || rec.Month > 12 {
		missing = append(missing, "month")
	}
	if !rec.Category.Valid() {
		missing = append(missing, "category")
	}
	return missing
}

// Run drains an extractor stream. In strict mode the full input is still
// processed so the error lists every unmapped label at once.
func (s *Standardizer) Run(ctx context.Context, recCh <-chan model.RawRecord) (*Result, error) {
	start := time.Now()
	res := &Result{Summary: model.StageSummary{Stage: model.StageStandardize}}
	unmapped := make(map[string]bool)

	for {
		var (
			rec model.RawRecord
			ok  bool
		)
		select {
		case rec, ok = <-recCh:
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "standardize: context cancelled")
		}
		if !ok {
			break
		}

		res.Summary.In++
		out, reason, detail := s.Standardize(rec)
		if reason == "" {
			res.Records = append(res.Records, out)
			continue
		}

		res.Rejections = append(res.Rejections, model.Rejection{
			Stage: model.StageStandardize, Reason: reason, Detail: detail, Record: rec,
		})
		switch reason {
		case model.ReasonUnmappedProduct:
			unmapped["product: "+strings.TrimSpace(rec.Product)] = true
		case model.ReasonUnmappedCompany:
			unmapped[fmt.Sprintf("company (%s): %s", rec.Category, strings.TrimSpace(rec.Company))] = true
		}
	}

	res.Summary.Out = len(res.Records)
	res.Summary.Rejected = len(res.Rejections)
	res.Summary.Elapsed = time.Since(start)
	for l := range unmapped {
		res.Unmapped = append(res.Unmapped, l)
	}
	sort.Strings(res.Unmapped)

	s.log.Info("standardization complete",
		zap.String("mode", string(s.mode)),
		zap.Int("in", res.Summary.In),
		zap.Int("out", res.Summary.Out),
		zap.Int("rejected", res.Summary.Rejected),
		zap.Int("unmapped_labels", len(res.Unmapped)),
	)

	if s.mode == Strict && len(res.Unmapped) > 0 {
		return res, eris.Wrapf(ErrUnmappedLabels, "%d distinct: %s", len(res.Unmapped), strings.Join(res.Unmapped, "; "))
	}
	return res, nil
}

func short(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}
