package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/workbook"
)

// Review workbook sheet names.
const (
	SheetProducts  = "products"
	SheetCompanies = "companies"
	SheetRemovals  = "removals"
	SheetSummary   = "summary"
)

var (
	productHeader = []string{"original", "canonical", "product_category", "unit_class", "conversion_factor", "include", "occurrences", "reason"}
	companyHeader = []string{"category", "original", "canonical", "include", "occurrences", "reason"}
	removalHeader = []string{"entity", "category", "original", "occurrences", "reason"}
)

// WriteReview saves a proposal as a review workbook. Products no rule
// matched are written with a blank include cell: they stay unmapped until
// a reviewer decides.
func WriteReview(path string, p *Proposal) error {
	w := workbook.NewWriter()

	products, err := w.AddSheet(SheetProducts, productHeader...)
	if err != nil {
		return err
	}
	for _, e := range p.Products {
		var factor any
		if e.ConversionFactor > 0 {
			factor = e.ConversionFactor
		}
		include := "yes"
		if !e.Include {
			include = ""
		}
		products.Append(e.Original, e.Canonical, e.Category, string(e.UnitClass), factor, include, e.Occurrences, e.Reason)
	}

	companies, err := w.AddSheet(SheetCompanies, companyHeader...)
	if err != nil {
		return err
	}
	for _, e := range p.Companies {
		companies.Append(e.Category, e.Original, e.Canonical, "yes", e.Occurrences, e.Reason)
	}

	removals, err := w.AddSheet(SheetRemovals, removalHeader...)
	if err != nil {
		return err
	}
	for _, e := range p.Removals {
		removals.Append(string(e.Entity), e.Category, e.Original, e.Occurrences, e.Reason)
	}

	summary, err := w.AddSheet(SheetSummary, "key", "value")
	if err != nil {
		return err
	}
	summary.Append("generated_at", time.Now().UTC().Format(time.RFC3339))
	summary.Append("records", p.Records)
	summary.Append("product_labels", len(p.Products))
	summary.Append("company_labels", len(p.Companies))
	summary.Append("removal_suggestions", len(p.Removals))
	summary.Append("unmatched_products", p.Unmatched())

	return w.Save(path)
}

// ReadReview loads an approved review workbook. The table version is the
// SHA-256 of the file bytes, so any edit yields a new version.
func ReadReview(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read %s", path)
	}
	return ParseReview(data)
}

// ParseReview decodes review workbook bytes into a table.
func ParseReview(data []byte) (*Table, error) {
	sheets, err := workbook.ParseXLSX(data)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: parse review workbook")
	}
	sum := sha256.Sum256(data)

	entries, err := reviewEntries(sheets)
	if err != nil {
		return nil, err
	}
	return NewTable(hex.EncodeToString(sum[:]), entries)
}

func reviewEntries(sheets []workbook.Sheet) ([]model.MappingEntry, error) {
	var entries []model.MappingEntry
	var errs []string

	products, ok := workbook.Find(sheets, SheetProducts)
	if !ok {
		return nil, eris.Errorf("mapping: review workbook has no %q sheet", SheetProducts)
	}
	eachRow(products, func(line int, get func(string) string) {
		include, pending, err := parseInclude(get("include"))
		if err != nil {
			errs = append(errs, fmt.Sprintf("products row %d: %v", line, err))
			return
		}
		if pending {
			return
		}
		factor, err := parseFactor(get("conversion_factor"))
		if err != nil {
			errs = append(errs, fmt.Sprintf("products row %d: %v", line, err))
			return
		}
		entries = append(entries, model.MappingEntry{
			Entity:           model.EntityProduct,
			Original:         get("original"),
			Canonical:        get("canonical"),
			Category:         get("product_category"),
			UnitClass:        model.UnitClass(strings.ToLower(get("unit_class"))),
			ConversionFactor: factor,
			Include:          include,
			Occurrences:      atoiOr(get("occurrences")),
			Reason:           get("reason"),
		})
	})

	companies, ok := workbook.Find(sheets, SheetCompanies)
	if !ok {
		return nil, eris.Errorf("mapping: review workbook has no %q sheet", SheetCompanies)
	}
	eachRow(companies, func(line int, get func(string) string) {
		include, pending, err := parseInclude(get("include"))
		if err != nil {
			errs = append(errs, fmt.Sprintf("companies row %d: %v", line, err))
			return
		}
		if pending {
			return
		}
		entries = append(entries, model.MappingEntry{
			Entity:      model.EntityCompany,
			Original:    get("original"),
			Canonical:   get("canonical"),
			Category:    get("category"),
			Include:     include,
			Occurrences: atoiOr(get("occurrences")),
			Reason:      get("reason"),
		})
	})

	// The removals sheet is optional; every row in it removes its label.
	if removals, ok := workbook.Find(sheets, SheetRemovals); ok {
		eachRow(removals, func(line int, get func(string) string) {
			entity := model.EntityType(strings.ToLower(get("entity")))
			if entity != model.EntityProduct && entity != model.EntityCompany {
				errs = append(errs, fmt.Sprintf("removals row %d: entity must be product or company", line))
				return
			}
			entries = append(entries, model.MappingEntry{
				Entity:      entity,
				Original:    get("original"),
				Category:    get("category"),
				Occurrences: atoiOr(get("occurrences")),
				Reason:      get("reason"),
			})
		})
	}

	if len(errs) > 0 {
		return nil, eris.Errorf("mapping: invalid review workbook: %s", strings.Join(errs, "; "))
	}
	return entries, nil
}

// eachRow calls fn for every non-blank data row, resolving cells by header
// name. Row numbers passed to fn are 1-based as a spreadsheet shows them.
func eachRow(s workbook.Sheet, fn func(line int, get func(string) string)) {
	if len(s.Rows) == 0 {
		return
	}
	idx := make(map[string]int, len(s.Rows[0]))
	for i, h := range s.Rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for i, row := range s.Rows[1:] {
		blank := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		get := func(name string) string {
			j, ok := idx[name]
			if !ok || j >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[j])
		}
		fn(i+2, get)
	}
}

// parseInclude reads an include cell. A blank cell means the reviewer has
// not decided yet.
func parseInclude(s string) (include, pending bool, err error) {
	switch strings.ToLower(s) {
	case "":
		return false, true, nil
	case "yes", "y", "true", "1", "x":
		return true, false, nil
	case "no", "n", "false", "0", "remove":
		return false, false, nil
	}
	return false, false, eris.Errorf("include must be yes or no, got %q", s)
}

func parseFactor(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, eris.Errorf("conversion_factor %q is not a number", s)
	}
	return v, nil
}

func atoiOr(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
