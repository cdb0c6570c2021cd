// Package convert turns standardized volumes into liters, kilograms and
// metric tons.
package convert

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/model"
)

var (
	// ErrMissingFactor means a volume-denominated product has no usable
	// liters-per-ton factor. No default is substituted.
	ErrMissingFactor = eris.New("convert: missing conversion factor")
	// ErrUnitMismatch means the record's unit disagrees with its product's unit class.
	ErrUnitMismatch = eris.New("convert: unit does not match product unit class")
)

// DefaultLitersPerKg is the LPG liquid density assumption (liters per kilogram).
const DefaultLitersPerKg = 1.8

// Unit is a normalized source unit.
type Unit string

const (
	UnitNone      Unit = ""
	UnitLiters    Unit = "L"
	UnitKilograms Unit = "KG"
	UnitTons      Unit = "MT"
	UnitUnknown   Unit = "?"
)

var unitAliases = map[string]Unit{
	"L": UnitLiters, "LT": UnitLiters, "LTR": UnitLiters, "LTRS": UnitLiters,
	"LITRE": UnitLiters, "LITRES": UnitLiters, "LITER": UnitLiters, "LITERS": UnitLiters,
	"KG": UnitKilograms, "KGS": UnitKilograms, "KILOGRAM": UnitKilograms, "KILOGRAMS": UnitKilograms, "KILOS": UnitKilograms,
	"MT": UnitTons, "MTS": UnitTons, "TONNE": UnitTons, "TONNES": UnitTons, "TON": UnitTons, "TONS": UnitTons, "METRIC TONS": UnitTons,
}

// ParseUnit normalizes a unit label. Unrecognized labels return UnitUnknown.
func ParseUnit(s string) Unit {
	s = strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(s, ".", "")), " "))
	if s == "" {
		return UnitNone
	}
	if u, ok := unitAliases[s]; ok {
		return u
	}
	return UnitUnknown
}

// Factor is the conversion entry for one canonical product.
type Factor struct {
	UnitClass model.UnitClass
	// LitersPerTon applies to volume-class products.
	LitersPerTon float64
}

// Converter applies per-product factors. It is safe for concurrent use.
type Converter struct {
	factors     map[string]Factor
	litersPerKg float64
}

// New builds a Converter from explicit factors.
func New(factors map[string]Factor, litersPerKg float64) *Converter {
	if litersPerKg <= 0 {
		litersPerKg = DefaultLitersPerKg
	}
	f := make(map[string]Factor, len(factors))
	for k, v := range factors {
		f[k] = v
	}
	return &Converter{factors: f, litersPerKg: litersPerKg}
}

// FromTable builds a Converter from the approved products of a mapping table.
func FromTable(t *mapping.Table, litersPerKg float64) *Converter {
	factors := make(map[string]Factor)
	for _, p := range t.Products() {
		factors[p.Canonical] = Factor{UnitClass: p.UnitClass, LitersPerTon: p.Factor}
	}
	return New(factors, litersPerKg)
}

// Convert computes the three volume units for one record. It is pure.
func (c *Converter) Convert(rec model.StandardizedRecord) (model.ConvertedRecord, error) {
	f, ok := c.factors[rec.CanonicalProduct]
	if !ok {
		return model.ConvertedRecord{}, eris.Wrapf(ErrMissingFactor, "product %q has no factor entry", rec.CanonicalProduct)
	}

	unit := ParseUnit(rec.Unit)
	out := model.ConvertedRecord{StandardizedRecord: rec}

	switch f.UnitClass {
	case model.UnitClassVolume:
		if f.LitersPerTon <= 0 {
			return model.ConvertedRecord{}, eris.Wrapf(ErrMissingFactor, "product %q factor is %v", rec.CanonicalProduct, f.LitersPerTon)
		}
		switch unit {
		case UnitNone, UnitLiters:
			out.Liters = rec.Volume
			out.MetricTons = rec.Volume / f.LitersPerTon
			out.Kilograms = out.MetricTons * 1000
		case UnitTons:
			out.MetricTons = rec.Volume
			out.Kilograms = rec.Volume * 1000
			out.Liters = rec.Volume * f.LitersPerTon
		default:
			return model.ConvertedRecord{}, eris.Wrapf(ErrUnitMismatch, "%s is volume-denominated, record unit %q", rec.CanonicalProduct, rec.Unit)
		}

	case model.UnitClassWeight:
		switch unit {
		case UnitNone, UnitKilograms:
			out.Kilograms = rec.Volume
			out.MetricTons = rec.Volume / 1000
			out.Liters = rec.Volume * c.litersPerKg
		case UnitTons:
			out.MetricTons = rec.Volume
			out.Kilograms = rec.Volume * 1000
			out.Liters = out.Kilograms * c.litersPerKg
		default:
			return model.ConvertedRecord{}, eris.Wrapf(ErrUnitMismatch, "%s is weight-denominated, record unit %q", rec.CanonicalProduct, rec.Unit)
		}

	default:
		return model.ConvertedRecord{}, eris.Wrapf(ErrMissingFactor, "product %q has unit class %q", rec.CanonicalProduct, f.UnitClass)
	}

	return out, nil
}

// Result is the output of converting a batch.
type Result struct {
	Records    []model.ConvertedRecord
	Rejections []model.Rejection
	Summary    model.StageSummary
}

// ConvertAll converts a batch, rejecting records whose conversion fails.
// Each missing factor is logged once per product as a data-quality event.
func (c *Converter) ConvertAll(recs []model.StandardizedRecord) *Result {
	start := time.Now()
	log := zap.L().With(zap.String("component", "convert"))
	res := &Result{Summary: model.StageSummary{Stage: model.StageConvert, In: len(recs)}}
	warned := make(map[string]bool)

	for _, r := range recs {
		out, err := c.Convert(r)
		if err == nil {
			res.Records = append(res.Records, out)
			continue
		}

		reason := model.ReasonUnitMismatch
		if eris.Is(err, ErrMissingFactor) {
			reason = model.ReasonMissingFactor
			if !warned[r.CanonicalProduct] {
				warned[r.CanonicalProduct] = true
				log.Warn("data quality: no conversion factor, records rejected",
					zap.String("product", r.CanonicalProduct), zap.Error(err))
			}
		}
		res.Rejections = append(res.Rejections, model.Rejection{
			Stage: model.StageConvert, Reason: reason, Detail: err.Error(), Record: r.Raw(),
		})
	}

	res.Summary.Out = len(res.Records)
	res.Summary.Rejected = len(res.Rejections)
	res.Summary.Elapsed = time.Since(start)
	log.Info("conversion complete",
		zap.Int("in", res.Summary.In), zap.Int("out", res.Summary.Out), zap.Int("rejected", res.Summary.Rejected))
	return res
}
