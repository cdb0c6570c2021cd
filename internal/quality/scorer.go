package quality

import (
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/config"
	"github.com/sells-group/petro-etl/internal/model"
)

// KnownSets answers whether a canonical label belongs to the approved sets.
type KnownSets interface {
	KnownCompany(cat model.Category, canonical string) bool
	KnownProduct(canonical string) bool
}

// Scorer computes composite quality scores.
type Scorer struct {
	weights   config.QualityWeights
	minCohort int
	known     KnownSets
}

// NewScorer creates a Scorer. Weights must already be validated.
func NewScorer(weights config.QualityWeights, minCohort int, known KnownSets) *Scorer {
	if minCohort < 2 {
		minCohort = DefaultMinCohort
	}
	return &Scorer{weights: weights, minCohort: minCohort, known: known}
}

// Completeness is the fraction of provenance and value fields populated.
func Completeness(r model.ConvertedRecord) float64 {
	present := 0
	checks := []bool{
		strings.TrimSpace(r.SourceFile) != "",
		strings.TrimSpace(r.Sheet) != "",
		r.Year > 0,
		r.Month >= 1 && r.Month <= 12,
		strings.TrimSpace(r.Company) != "",
		strings.TrimSpace(r.Product) != "",
		strings.TrimSpace(r.Unit) != "",
		true, // volume is always present past standardization
	}
	for _, ok := range checks {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(checks))
}

// Consistency is 0.5 per canonical label found in the approved sets.
func (s *Scorer) Consistency(r model.ConvertedRecord) float64 {
	if s.known == nil {
		return 1
	}
	c := 0.0
	if s.known.KnownCompany(r.Category, r.CanonicalCompany) {
		c += 0.5
	}
	if s.known.KnownProduct(r.CanonicalProduct) {
		c += 0.5
	}
	return c
}

// Score rates one record against its cohort bounds.
func (s *Scorer) Score(r model.ConvertedRecord, b Bounds) model.ScoredRecord {
	out := model.ScoredRecord{
		ConvertedRecord: r,
		Completeness:    Completeness(r),
		Consistency:     s.Consistency(r),
		Outlier:         b.Outlier(r.MetricTons),
		ZScore:          b.ZScore(r.MetricTons),
	}
	out.Validity = 1
	if out.Outlier || r.MetricTons < 0 {
		out.Validity = 0
	}
	score := s.weights.Completeness*out.Completeness +
		s.weights.Consistency*out.Consistency +
		s.weights.Validity*out.Validity
	// Weights only sum to 1 within tolerance; the fact table rejects > 1.
	out.Score = math.Min(math.Max(score, 0), 1)
	return out
}

// Cohort groups records whose volumes are compared with each other. BDC and
// OMC volumes differ by orders of magnitude, so categories never share one.
type Cohort struct {
	Category model.Category
	Product  string
}

func (c Cohort) String() string { return c.Category.String() + "/" + c.Product }

// CohortOf returns the cohort a record is scored in.
func CohortOf(r model.ConvertedRecord) Cohort {
	return Cohort{Category: r.Category, Product: r.CanonicalProduct}
}

// Result is the output of scoring a run.
type Result struct {
	Records []model.ScoredRecord
	Bounds  map[Cohort]Bounds
	Summary model.StageSummary
	// Outliers counts IQR flags; ZOutliers counts |z| > 3 for comparison.
	Outliers  int
	ZOutliers int
}

// ScoreAll groups records into (category, product) cohorts and scores every
// record. Output order matches input order.
func (s *Scorer) ScoreAll(recs []model.ConvertedRecord) *Result {
	start := time.Now()

	cohorts := make(map[Cohort][]float64)
	for _, r := range recs {
		c := CohortOf(r)
		cohorts[c] = append(cohorts[c], r.MetricTons)
	}
	res := &Result{
		Records: make([]model.ScoredRecord, 0, len(recs)),
		Bounds:  make(map[Cohort]Bounds, len(cohorts)),
		Summary: model.StageSummary{Stage: model.StageScore, In: len(recs)},
	}
	for c, vals := range cohorts {
		res.Bounds[c] = ComputeBounds(vals, s.minCohort)
	}

	for _, r := range recs {
		sr := s.Score(r, res.Bounds[CohortOf(r)])
		if sr.Outlier {
			res.Outliers++
		}
		if sr.ZScore > ZThreshold || sr.ZScore < -ZThreshold {
			res.ZOutliers++
		}
		res.Records = append(res.Records, sr)
	}
	res.Summary.Out = len(res.Records)
	res.Summary.Elapsed = time.Since(start)

	log := zap.L().With(zap.String("component", "quality"))
	keys := make([]Cohort, 0, len(res.Bounds))
	for c := range res.Bounds {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, c := range keys {
		b := res.Bounds[c]
		log.Debug("cohort bounds", zap.String("cohort", c.String()), zap.Int("n", b.N), zap.Bool("valid", b.Valid),
			zap.Float64("lower", b.Lower), zap.Float64("upper", b.Upper))
	}
	log.Info("scoring complete",
		zap.Int("records", len(res.Records)),
		zap.Int("cohorts", len(res.Bounds)),
		zap.Int("iqr_outliers", res.Outliers),
		zap.Int("z_outliers", res.ZOutliers),
	)
	return res
}
