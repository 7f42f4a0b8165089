package engine

import (
	"sort"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// AggregateByCategory groups the full, unfiltered product table by
// primary category and computes the per-category health breakdown. The
// result is an unordered mapping; ordering for display is a presentation
// concern (see SortByHealthRatio).
//
// health_ratio is healthy/total*100. A group cannot have zero rows, the
// guard is defensive only.
func AggregateByCategory(products []types.Product) map[string]types.CategorySummary {
	groups := make(map[string]types.CategorySummary)
	for _, p := range products {
		summary := groups[p.PrimaryCategory]
		summary.Category = p.PrimaryCategory
		summary.TotalProducts++
		if p.HighProteinLowSugar {
			summary.HealthyProducts++
		}
		groups[p.PrimaryCategory] = summary
	}

	for category, summary := range groups {
		if summary.TotalProducts > 0 {
			summary.HealthRatio = float64(summary.HealthyProducts) / float64(summary.TotalProducts) * 100
		}
		groups[category] = summary
	}
	return groups
}

// SortByHealthRatio flattens a category mapping into rows ordered
// ascending by health ratio, worst-gap categories first. Ties break on
// category name so the order is stable.
func SortByHealthRatio(groups map[string]types.CategorySummary) []types.CategorySummary {
	rows := make([]types.CategorySummary, 0, len(groups))
	for _, summary := range groups {
		rows = append(rows, summary)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].HealthRatio != rows[j].HealthRatio {
			return rows[i].HealthRatio < rows[j].HealthRatio
		}
		return rows[i].Category < rows[j].Category
	})
	return rows
}
