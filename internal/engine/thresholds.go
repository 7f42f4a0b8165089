package engine

import (
	"math"
	"sort"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// Quantile levels used when no precomputed thresholds artifact exists.
// A product is "high protein" above the 70th protein percentile and
// "low sugar" below the 30th sugar percentile of the full dataset.
const (
	highProteinQuantile = 0.70
	lowSugarQuantile    = 0.30
)

// ResolveThresholds returns the quadrant cutoff pair. A precomputed pair
// is returned verbatim; otherwise both cutoffs are derived from the full,
// unfiltered product table. Rows with missing or NaN values contribute
// nothing to the derived percentiles.
func ResolveThresholds(products []types.Product, precomputed *types.Thresholds) types.Thresholds {
	if precomputed != nil {
		return *precomputed
	}

	proteins := collectValues(products, func(p types.Product) *float64 { return p.Proteins100g })
	sugars := collectValues(products, func(p types.Product) *float64 { return p.Sugars100g })

	return types.Thresholds{
		Protein: quantile(proteins, highProteinQuantile),
		Sugar:   quantile(sugars, lowSugarQuantile),
	}
}

func collectValues(products []types.Product, field func(types.Product) *float64) []float64 {
	values := make([]float64, 0, len(products))
	for _, p := range products {
		v := field(p)
		if v == nil || math.IsNaN(*v) {
			continue
		}
		values = append(values, *v)
	}
	sort.Float64s(values)
	return values
}

// quantile computes the q-th quantile of a sorted slice using linear
// interpolation between order statistics, matching the standard default.
// Deterministic for a fixed input multiset.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
