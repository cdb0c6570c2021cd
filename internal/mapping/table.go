package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/model"
)

// Resolution is the outcome of looking a label up in the approved table.
type Resolution int

const (
	Unmapped Resolution = iota
	Mapped
	Removed
)

// ProductInfo is what the approved table says about one canonical product.
type ProductInfo struct {
	Canonical string
	Family    string
	UnitClass model.UnitClass
	Factor    float64
}

type companyRef struct {
	category model.Category
	key      string
}

// Table is an approved, immutable mapping set. The zero value is not usable;
// build one with NewTable or ReadReview.
type Table struct {
	version string

	products         map[string]model.MappingEntry
	removedProducts  map[string]bool
	companies        map[companyRef]model.MappingEntry
	removedCompanies map[companyRef]bool
	catalog          map[string]ProductInfo
	canonCompanies   map[companyRef]bool
	entries          []model.MappingEntry
}

// NewTable validates entries and builds a table. Entries with Include=false
// mark their label as removed. A company removal with an empty category
// applies to every category. All problems are reported together.
func NewTable(version string, entries []model.MappingEntry) (*Table, error) {
	t := &Table{
		version:          version,
		products:         make(map[string]model.MappingEntry),
		removedProducts:  make(map[string]bool),
		companies:        make(map[companyRef]model.MappingEntry),
		removedCompanies: make(map[companyRef]bool),
		catalog:          make(map[string]ProductInfo),
		canonCompanies:   make(map[companyRef]bool),
	}

	var errs []string
	seenProduct := make(map[string]bool)
	seenCompany := make(map[companyRef]bool)

	for _, e := range entries {
		key := LabelKey(e.Original)
		switch e.Entity {
		case model.EntityProduct:
			if seenProduct[key] {
				errs = append(errs, fmt.Sprintf("product %q is listed more than once", e.Original))
				continue
			}
			seenProduct[key] = true
			if !e.Include {
				t.removedProducts[key] = true
				break
			}
			if msg := t.addProduct(key, e); msg != "" {
				errs = append(errs, msg)
			}

		case model.EntityCompany:
			cats, err := companyCategories(e)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			for _, cat := range cats {
				ref := companyRef{category: cat, key: key}
				if seenCompany[ref] {
					errs = append(errs, fmt.Sprintf("company %q (%s) is listed more than once", e.Original, cat))
					continue
				}
				seenCompany[ref] = true
				if !e.Include {
					t.removedCompanies[ref] = true
					continue
				}
				canonical := strings.TrimSpace(e.Canonical)
				if canonical == "" {
					errs = append(errs, fmt.Sprintf("company %q (%s) is included but has no canonical name", e.Original, cat))
					continue
				}
				e.Canonical = canonical
				e.Category = cat.String()
				t.companies[ref] = e
				t.canonCompanies[companyRef{category: cat, key: canonical}] = true
			}

		default:
			errs = append(errs, fmt.Sprintf("entry %q has unknown entity %q", e.Original, e.Entity))
		}
		t.entries = append(t.entries, e)
	}

	if len(errs) > 0 {
		return nil, eris.Errorf("mapping: invalid table: %s", strings.Join(errs, "; "))
	}
	return t, nil
}

func (t *Table) addProduct(key string, e model.MappingEntry) string {
	canonical := strings.TrimSpace(e.Canonical)
	if canonical == "" {
		return fmt.Sprintf("product %q is included but has no canonical name", e.Original)
	}
	switch e.UnitClass {
	case model.UnitClassVolume, model.UnitClassWeight:
	default:
		return fmt.Sprintf("product %q has unit class %q (want volume or weight)", e.Original, e.UnitClass)
	}

	info := ProductInfo{
		Canonical: canonical,
		Family:    strings.TrimSpace(e.Category),
		UnitClass: e.UnitClass,
		Factor:    e.ConversionFactor,
	}
	if prev, ok := t.catalog[canonical]; ok && prev != info {
		return fmt.Sprintf("product %q disagrees with other %q entries on category, unit class or factor", e.Original, canonical)
	}
	t.catalog[canonical] = info

	e.Canonical = canonical
	t.products[key] = e
	return ""
}

func companyCategories(e model.MappingEntry) ([]model.Category, error) {
	if strings.TrimSpace(e.Category) == "" {
		if e.Include {
			return nil, eris.Errorf("company %q has no category", e.Original)
		}
		return model.Categories, nil
	}
	cat, err := model.ParseCategory(e.Category)
	if err != nil {
		return nil, eris.Errorf("company %q: %v", e.Original, err)
	}
	return []model.Category{cat}, nil
}

// Version identifies the approved workbook the table was built from.
func (t *Table) Version() string { return t.version }

// ResolveProduct looks up a raw product label.
func (t *Table) ResolveProduct(label string) (model.MappingEntry, Resolution) {
	key := LabelKey(label)
	if t.removedProducts[key] {
		return model.MappingEntry{}, Removed
	}
	if e, ok := t.products[key]; ok {
		return e, Mapped
	}
	return model.MappingEntry{}, Unmapped
}

// ResolveCompany looks up a raw company label within a category.
func (t *Table) ResolveCompany(cat model.Category, label string) (model.MappingEntry, Resolution) {
	ref := companyRef{category: cat, key: LabelKey(label)}
	if t.removedCompanies[ref] {
		return model.MappingEntry{}, Removed
	}
	if e, ok := t.companies[ref]; ok {
		return e, Mapped
	}
	return model.MappingEntry{}, Unmapped
}

// Product returns the approved description of a canonical product.
func (t *Table) Product(canonical string) (ProductInfo, bool) {
	p, ok := t.catalog[canonical]
	return p, ok
}

// Products lists the canonical products in name order.
func (t *Table) Products() []ProductInfo {
	out := make([]ProductInfo, 0, len(t.catalog))
	for _, p := range t.catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

// KnownCompany reports whether canonical is an approved company name in cat.
func (t *Table) KnownCompany(cat model.Category, canonical string) bool {
	return t.canonCompanies[companyRef{category: cat, key: canonical}]
}

// KnownProduct reports whether canonical is an approved product name.
func (t *Table) KnownProduct(canonical string) bool {
	_, ok := t.catalog[canonical]
	return ok
}

// Entries returns a copy of the entries the table was built from.
func (t *Table) Entries() []model.MappingEntry {
	return append([]model.MappingEntry(nil), t.entries...)
}
