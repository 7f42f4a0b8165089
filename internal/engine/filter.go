package engine

import (
	"math"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// Filter returns the subset of products matching the analyst's filter
// parameters, preserving the relative order of the input rows.
//
// An empty category selection returns the full input set unchanged:
// select-none means select-all, never an empty result. Otherwise a row is
// retained iff its category is selected, its sugar is at most SugarMax
// and its protein is at least ProteinMin. A row whose protein or sugar
// value is missing or NaN fails the corresponding numeric predicate.
func Filter(products []types.Product, params types.FilterParams) []types.Product {
	selected := params.CategorySet()
	if selected == nil {
		subset := make([]types.Product, len(products))
		copy(subset, products)
		return subset
	}

	subset := make([]types.Product, 0, len(products))
	for _, p := range products {
		if _, ok := selected[p.PrimaryCategory]; !ok {
			continue
		}
		if !lte(p.Sugars100g, params.SugarMax) {
			continue
		}
		if !gte(p.Proteins100g, params.ProteinMin) {
			continue
		}
		subset = append(subset, p)
	}
	return subset
}

func lte(v *float64, bound float64) bool {
	return v != nil && !math.IsNaN(*v) && *v <= bound
}

func gte(v *float64, bound float64) bool {
	return v != nil && !math.IsNaN(*v) && *v >= bound
}
