package engine

import (
	"math"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// Annotate returns a copy of products with the high-protein / low-sugar
// flag set on every row:
//
//	flag = proteins_100g >= thresholds.Protein && sugars_100g <= thresholds.Sugar
//
// Both comparisons include the boundary. Rows with a missing or NaN
// protein or sugar value are never flagged healthy. Idempotent: the flag
// is recomputed from scratch on every call, so annotating an already
// annotated table yields the same result.
func Annotate(products []types.Product, thresholds types.Thresholds) []types.Product {
	annotated := make([]types.Product, len(products))
	for i, p := range products {
		p.HighProteinLowSugar = isHealthy(p, thresholds)
		annotated[i] = p
	}
	return annotated
}

func isHealthy(p types.Product, thresholds types.Thresholds) bool {
	if p.Proteins100g == nil || p.Sugars100g == nil {
		return false
	}
	if math.IsNaN(*p.Proteins100g) || math.IsNaN(*p.Sugars100g) {
		return false
	}
	return *p.Proteins100g >= thresholds.Protein && *p.Sugars100g <= thresholds.Sugar
}
