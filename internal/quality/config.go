// Package quality scores converted records and flags statistical outliers.
package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/config"
)

// DefaultMinCohort is the smallest cohort that gets outlier bounds.
const DefaultMinCohort = 4

// ZThreshold is the |z| above which the secondary signal fires.
const ZThreshold = 3.0

// DefaultWeights returns the composite score weights (sum = 1).
func DefaultWeights() config.QualityWeights {
	return config.QualityWeights{
		Completeness: 0.4,
		Consistency:  0.3,
		Validity:     0.3,
	}
}

// WeightSum returns the sum of the three weights.
func WeightSum(w config.QualityWeights) float64 {
	return w.Completeness + w.Consistency + w.Validity
}

// ValidateWeights checks that weights are non-negative and sum to 1.
func ValidateWeights(w config.QualityWeights) error {
	var errs []string

	weights := map[string]float64{
		"completeness": w.Completeness,
		"consistency":  w.Consistency,
		"validity":     w.Validity,
	}
	for _, name := range []string{"completeness", "consistency", "validity"} {
		if weights[name] < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", name))
		}
	}

	if sum := WeightSum(w); math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1, got %.6f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("quality: invalid weights: %s", strings.Join(errs, "; "))
	}
	return nil
}
