package types

// Product represents one packaged-food product row from the categorized dataset.
// This is the canonical product struct used throughout the application.
//
// Nutriment fields are pointers because the upstream pipeline leaves them empty
// for some rows; nil means "not reported" and marshals as JSON null. The health
// flag is derived at load time (see engine.Annotate) and never mutated after.
type Product struct {
	ProductName         string   `json:"product_name"`
	PrimaryCategory     string   `json:"primary_category"`
	Brands              string   `json:"brands,omitempty"`
	Proteins100g        *float64 `json:"proteins_100g"`
	Sugars100g          *float64 `json:"sugars_100g"`
	Fat100g             *float64 `json:"fat_100g,omitempty"`
	HighProteinLowSugar bool     `json:"is_high_protein_low_sugar"`
}

// Thresholds is the (protein, sugar) cutoff pair defining the
// high-protein / low-sugar quadrant. Resolved once per snapshot and
// treated as read-only afterwards.
type Thresholds struct {
	Protein float64 `json:"high_protein_threshold"`
	Sugar   float64 `json:"low_sugar_threshold"`
}

// CategorySummary is one row of the per-category health breakdown.
type CategorySummary struct {
	Category        string  `json:"category"`
	TotalProducts   int     `json:"total_products"`
	HealthyProducts int     `json:"healthy_products"`
	HealthRatio     float64 `json:"health_ratio"`
}

// BrandRank is one row of the precomputed brand leaderboard,
// sorted descending by HealthyPct upstream.
type BrandRank struct {
	PrimaryBrand string  `json:"primary_brand"`
	HealthyPct   float64 `json:"healthy_pct"`
}

// ProteinSource is one row of the precomputed ingredient frequency table,
// restricted upstream to products inside the healthy quadrant and sorted
// descending by Count.
type ProteinSource struct {
	Ingredient string `json:"ingredient"`
	Count      int    `json:"count"`
}

// FilterParams holds the analyst's transient filter selections. The zero
// set of categories deliberately means "all categories", mirroring the
// dashboard's select-none-selects-all behavior.
type FilterParams struct {
	Categories []string `json:"categories,omitempty"`
	SugarMax   float64  `json:"sugar_max"`
	ProteinMin float64  `json:"protein_min"`
}

// DefaultFilterParams returns the unfiltered view: every category,
// sugar up to 100g and protein from 0g.
func DefaultFilterParams() FilterParams {
	return FilterParams{
		SugarMax:   100,
		ProteinMin: 0,
	}
}

// CategorySet returns the selected categories as a membership set.
// An empty selection yields an empty set, which callers must treat as
// "no category restriction".
func (p FilterParams) CategorySet() map[string]struct{} {
	if len(p.Categories) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(p.Categories))
	for _, c := range p.Categories {
		set[c] = struct{}{}
	}
	return set
}

// Float returns a pointer to v. Convenience for building fixtures and
// filling nutriment fields.
func Float(v float64) *float64 {
	return &v
}
