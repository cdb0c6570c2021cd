package warehouse

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/model"
)

// ErrKeyResolution is returned when a record cannot be mapped to surrogate keys.
var ErrKeyResolution = eris.New("warehouse: key resolution failed")

// ProductCatalog describes canonical products. *mapping.Table satisfies it.
type ProductCatalog interface {
	Product(canonical string) (mapping.ProductInfo, bool)
}

// Dimensions is the surrogate key state read from the warehouse.
type Dimensions struct {
	Products  map[string]int                    // canonical product -> product_id
	Companies map[model.Category]map[string]int // category -> canonical company -> company_id
	Periods   map[int]bool
}

// NewDimensions returns empty dimension state.
func NewDimensions() Dimensions {
	return Dimensions{
		Products:  make(map[string]int),
		Companies: make(map[model.Category]map[string]int),
		Periods:   make(map[int]bool),
	}
}

// ProductRow is a new dim_products row.
type ProductRow struct {
	ID        int
	Name      string
	Family    string
	UnitClass model.UnitClass
	Factor    float64
}

// CompanyRow is a new dim_companies row.
type CompanyRow struct {
	Category model.Category
	ID       int
	Name     string
}

// PeriodRow is a new dim_periods row.
type PeriodRow struct {
	ID      int
	Year    int
	Month   int
	Quarter int
	Start   time.Time
}

// FactRow is one fact table row with resolved keys.
type FactRow struct {
	Category  model.Category
	CompanyID int
	ProductID int
	PeriodID  int
	Record    model.ScoredRecord
}

// Plan is the full set of writes for one load.
type Plan struct {
	Products  []ProductRow
	Companies []CompanyRow
	Periods   []PeriodRow
	Facts     map[model.Category][]FactRow
}

// FactCount returns the number of fact rows planned across categories.
func (p *Plan) FactCount() int {
	n := 0
	for _, rows := range p.Facts {
		n += len(rows)
	}
	return n
}

// BuildPlan resolves every record to surrogate keys. Unseen canonical values
// get max(existing key)+1 in sorted label order, so the same inputs always
// produce the same plan. Company keys are allocated per category. Records
// whose category is outside categories, or whose canonical labels are empty,
// fail the whole plan with ErrKeyResolution.
func BuildPlan(records []model.ScoredRecord, dims Dimensions, catalog ProductCatalog, categories []model.Category) (*Plan, error) {
	inLoad := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		inLoad[c] = true
	}

	newProducts := make(map[string]bool)
	newCompanies := make(map[model.Category]map[string]bool)
	newPeriods := make(map[int]bool)

	for _, r := range records {
		if !inLoad[r.Category] {
			return nil, eris.Wrapf(ErrKeyResolution, "%s:%s row %d: category %q is not part of this load",
				r.SourceFile, r.Sheet, r.Row, r.Category)
		}
		if r.CanonicalCompany == "" || r.CanonicalProduct == "" {
			return nil, eris.Wrapf(ErrKeyResolution, "%s:%s row %d: empty canonical label",
				r.SourceFile, r.Sheet, r.Row)
		}
		if r.Month < 1 || r.Month > 12 || r.Year <= 0 {
			return nil, eris.Wrapf(ErrKeyResolution, "%s:%s row %d: invalid period %d-%02d",
				r.SourceFile, r.Sheet, r.Row, r.Year, r.Month)
		}

		if _, ok := dims.Products[r.CanonicalProduct]; !ok {
			if _, ok := catalog.Product(r.CanonicalProduct); !ok {
				return nil, eris.Wrapf(ErrKeyResolution, "product %q is not in the approved catalog", r.CanonicalProduct)
			}
			newProducts[r.CanonicalProduct] = true
		}
		if _, ok := dims.Companies[r.Category][r.CanonicalCompany]; !ok {
			if newCompanies[r.Category] == nil {
				newCompanies[r.Category] = make(map[string]bool)
			}
			newCompanies[r.Category][r.CanonicalCompany] = true
		}
		if pid := r.PeriodID(); !dims.Periods[pid] {
			newPeriods[pid] = true
		}
	}

	plan := &Plan{Facts: make(map[model.Category][]FactRow, len(categories))}

	products := copyKeys(dims.Products)
	next := maxValue(products) + 1
	for _, name := range sortedKeys(newProducts) {
		info, _ := catalog.Product(name)
		products[name] = next
		plan.Products = append(plan.Products, ProductRow{
			ID:        next,
			Name:      name,
			Family:    info.Family,
			UnitClass: info.UnitClass,
			Factor:    info.Factor,
		})
		next++
	}

	companies := make(map[model.Category]map[string]int, len(categories))
	for _, cat := range sortedCategories(categories) {
		ids := copyKeys(dims.Companies[cat])
		next := maxValue(ids) + 1
		for _, name := range sortedKeys(newCompanies[cat]) {
			ids[name] = next
			plan.Companies = append(plan.Companies, CompanyRow{Category: cat, ID: next, Name: name})
			next++
		}
		companies[cat] = ids
	}

	periodIDs := make([]int, 0, len(newPeriods))
	for id := range newPeriods {
		periodIDs = append(periodIDs, id)
	}
	sort.Ints(periodIDs)
	for _, id := range periodIDs {
		plan.Periods = append(plan.Periods, NewPeriodRow(id/100, id%100))
	}

	for _, r := range records {
		plan.Facts[r.Category] = append(plan.Facts[r.Category], FactRow{
			Category:  r.Category,
			CompanyID: companies[r.Category][r.CanonicalCompany],
			ProductID: products[r.CanonicalProduct],
			PeriodID:  r.PeriodID(),
			Record:    r,
		})
	}

	return plan, nil
}

// NewPeriodRow builds the time dimension row for a year and month.
func NewPeriodRow(year, month int) PeriodRow {
	return PeriodRow{
		ID:      model.PeriodID(year, month),
		Year:    year,
		Month:   month,
		Quarter: (month-1)/3 + 1,
		Start:   time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
	}
}

func copyKeys(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func maxValue(m map[string]int) int {
	hi := 0
	for _, v := range m {
		if v > hi {
			hi = v
		}
	}
	return hi
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCategories(cats []model.Category) []model.Category {
	out := append([]model.Category(nil), cats...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
