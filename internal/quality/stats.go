package quality

import (
	"math"
	"sort"
)

// Bounds are the outlier fences of one product cohort.
type Bounds struct {
	N      int
	Q1     float64
	Q3     float64
	IQR    float64
	Lower  float64
	Upper  float64
	Mean   float64
	StdDev float64
	// Valid is false for cohorts too small to judge; nothing is flagged.
	Valid bool
}

// ComputeBounds derives IQR fences (Q1 − 1.5·IQR, Q3 + 1.5·IQR) and the
// population mean and standard deviation for a cohort.
func ComputeBounds(values []float64, minCohort int) Bounds {
	if minCohort < 2 {
		minCohort = DefaultMinCohort
	}
	b := Bounds{N: len(values)}
	if len(values) == 0 {
		return b
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	b.Mean = sum / float64(len(sorted))
	var ss float64
	for _, v := range sorted {
		d := v - b.Mean
		ss += d * d
	}
	b.StdDev = math.Sqrt(ss / float64(len(sorted)))

	if len(sorted) < minCohort {
		return b
	}

	b.Q1 = Quantile(sorted, 0.25)
	b.Q3 = Quantile(sorted, 0.75)
	b.IQR = b.Q3 - b.Q1
	b.Lower = b.Q1 - 1.5*b.IQR
	b.Upper = b.Q3 + 1.5*b.IQR
	b.Valid = true
	return b
}

// Quantile returns the p-quantile of sorted values using linear
// interpolation between closest ranks (Hyndman-Fan type 7).
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Outlier reports whether v falls strictly outside the fences.
func (b Bounds) Outlier(v float64) bool {
	if !b.Valid {
		return false
	}
	return v < b.Lower || v > b.Upper
}

// ZScore returns (v − mean) / stddev, or 0 when the cohort has no spread.
func (b Bounds) ZScore(v float64) float64 {
	if b.StdDev == 0 || b.N == 0 {
		return 0
	}
	return (v - b.Mean) / b.StdDev
}
