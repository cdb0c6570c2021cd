// Package mapping proposes, reads and serves the label mappings that turn
// free-text company and product names into canonical ones.
package mapping

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/model"
)

// Reasons attached to proposed entries.
const (
	ReasonNoRule  = "no_rule"
	ReasonGrouped = "grouped"
)

type labelStat struct {
	count    int
	spelling map[string]int
}

func (s *labelStat) add(original string) {
	s.count++
	s.spelling[original]++
}

// preferred returns the most frequent spelling, breaking ties by text.
func (s *labelStat) preferred() string {
	best, bestN := "", -1
	for sp, n := range s.spelling {
		if n > bestN || (n == bestN && sp < best) {
			best, bestN = sp, n
		}
	}
	return best
}

func newStat() *labelStat { return &labelStat{spelling: make(map[string]int)} }

// Generator accumulates distinct labels and proposes mappings for them.
type Generator struct {
	rules     *Rules
	products  map[string]*labelStat
	companies map[companyRef]*labelStat
	records   int
}

// NewGenerator creates a Generator. A nil catalog selects the built-in rules.
func NewGenerator(rules *Rules) *Generator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Generator{
		rules:     rules,
		products:  make(map[string]*labelStat),
		companies: make(map[companyRef]*labelStat),
	}
}

// Add records the labels of one raw record.
func (g *Generator) Add(rec model.RawRecord) {
	g.records++

	pk := LabelKey(rec.Product)
	ps, ok := g.products[pk]
	if !ok {
		ps = newStat()
		g.products[pk] = ps
	}
	ps.add(rec.Product)

	ref := companyRef{category: rec.Category, key: LabelKey(rec.Company)}
	cs, ok := g.companies[ref]
	if !ok {
		cs = newStat()
		g.companies[ref] = cs
	}
	cs.add(rec.Company)
}

// Consume drains an extractor stream into the generator.
func (g *Generator) Consume(ctx context.Context, recCh <-chan model.RawRecord, errCh <-chan error) error {
	for {
		select {
		case rec, ok := <-recCh:
			if !ok {
				if err := <-errCh; err != nil {
					return eris.Wrap(err, "mapping: read records")
				}
				return nil
			}
			g.Add(rec)
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "mapping: context cancelled")
		}
	}
}

// Proposal is a reviewable set of suggested mappings.
type Proposal struct {
	Products  []model.MappingEntry
	Companies []model.MappingEntry
	Removals  []model.MappingEntry
	Records   int
}

// Unmatched counts product proposals no rule could place.
func (p *Proposal) Unmatched() int {
	n := 0
	for _, e := range p.Products {
		if e.Reason == ReasonNoRule {
			n++
		}
	}
	return n
}

// Propose builds the suggestion set from everything added so far.
func (g *Generator) Propose() *Proposal {
	p := &Proposal{Records: g.records}

	for _, st := range g.products {
		original := st.preferred()
		if reason := removalReason(original); reason != "" {
			p.Removals = append(p.Removals, model.MappingEntry{
				Entity: model.EntityProduct, Original: original, Occurrences: st.count, Reason: reason,
			})
			continue
		}
		e := model.MappingEntry{
			Entity:      model.EntityProduct,
			Original:    original,
			Occurrences: st.count,
		}
		if rule, ok := g.rules.Match(original); ok {
			e.Canonical = rule.Canonical
			e.Category = rule.Family
			e.UnitClass = rule.UnitClass
			e.ConversionFactor = rule.Factor
			e.Include = true
		} else {
			e.Reason = ReasonNoRule
		}
		p.Products = append(p.Products, e)
	}

	// Group company spellings within each category.
	type groupRef struct {
		category model.Category
		key      string
	}
	groups := make(map[groupRef][]companyRef)
	for ref, st := range g.companies {
		original := st.preferred()
		if reason := removalReason(original); reason != "" {
			p.Removals = append(p.Removals, model.MappingEntry{
				Entity: model.EntityCompany, Original: original, Category: ref.category.String(),
				Occurrences: st.count, Reason: reason,
			})
			continue
		}
		gr := groupRef{category: ref.category, key: CompanyKey(original)}
		groups[gr] = append(groups[gr], ref)
	}
	for _, members := range groups {
		var lead string
		leadN := -1
		for _, ref := range members {
			st := g.companies[ref]
			sp := st.preferred()
			if st.count > leadN || (st.count == leadN && sp < lead) {
				lead, leadN = sp, st.count
			}
		}
		canonical := DisplayName(lead)
		for _, ref := range members {
			st := g.companies[ref]
			e := model.MappingEntry{
				Entity:      model.EntityCompany,
				Original:    st.preferred(),
				Canonical:   canonical,
				Category:    ref.category.String(),
				Include:     true,
				Occurrences: st.count,
			}
			if len(members) > 1 {
				e.Reason = ReasonGrouped
			}
			p.Companies = append(p.Companies, e)
		}
	}

	sort.Slice(p.Products, func(i, j int) bool {
		a, b := p.Products[i], p.Products[j]
		if a.Occurrences != b.Occurrences {
			return a.Occurrences > b.Occurrences
		}
		return a.Original < b.Original
	})
	sort.Slice(p.Companies, func(i, j int) bool {
		a, b := p.Companies[i], p.Companies[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Canonical != b.Canonical {
			return a.Canonical < b.Canonical
		}
		return a.Original < b.Original
	})
	sort.Slice(p.Removals, func(i, j int) bool {
		a, b := p.Removals[i], p.Removals[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Original < b.Original
	})

	zap.L().With(zap.String("component", "mapping")).Info("mapping proposal built",
		zap.Int("records", p.Records),
		zap.Int("products", len(p.Products)),
		zap.Int("companies", len(p.Companies)),
		zap.Int("removals", len(p.Removals)),
		zap.Int("unmatched_products", p.Unmatched()),
	)
	return p
}
