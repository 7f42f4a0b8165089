// Package engine computes every derived view the dashboard shows: the
// health-flag annotation, threshold resolution, filtered subsets,
// reproducible visualization samples, per-category health ratios and
// top-N leaderboards. It owns no state; every view is a pure function of
// an immutable snapshot plus the analyst's transient filter parameters,
// recomputed on each evaluation.
package engine

import (
	"log/slog"
	"time"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// Options tunes view construction. Zero values fall back to the
// dashboard defaults.
type Options struct {
	SampleCap  int
	SampleSeed int64
	TopN       int
	TableRows  int
}

// Engine builds dashboard views from a snapshot. Safe for concurrent use;
// it carries only configuration and a logger.
type Engine struct {
	sampleCap  int
	sampleSeed int64
	topN       int
	tableRows  int
	log        *slog.Logger
}

// New creates an engine with the given options.
func New(opts Options, logger *slog.Logger) *Engine {
	if opts.SampleCap <= 0 {
		opts.SampleCap = DefaultSampleCap
	}
	if opts.SampleSeed == 0 {
		opts.SampleSeed = DefaultSampleSeed
	}
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.TableRows <= 0 {
		opts.TableRows = 20
	}
	return &Engine{
		sampleCap:  opts.SampleCap,
		sampleSeed: opts.SampleSeed,
		topN:       opts.TopN,
		tableRows:  opts.TableRows,
		log:        logger,
	}
}

// Overview holds the dashboard's headline metrics, computed over the
// full table plus the size of the current filtered view.
type Overview struct {
	TotalProducts int     `json:"total_products"`
	Categories    int     `json:"categories"`
	HealthyCount  int     `json:"healthy_count"`
	HealthyPct    float64 `json:"healthy_pct"`
	FilteredCount int     `json:"filtered_count"`
}

// CategoryGapView is the per-category health breakdown, ordered ascending
// by health ratio so the widest market gaps come first.
type CategoryGapView struct {
	Available bool                    `json:"available"`
	Rows      []types.CategorySummary `json:"rows,omitempty"`
}

// BrandView is the top-N slice of the precomputed brand leaderboard.
// Unsorted upstream data is reported, not repaired.
type BrandView struct {
	Available          bool              `json:"available"`
	Rows               []types.BrandRank `json:"rows,omitempty"`
	DataQualityWarning string            `json:"data_quality_warning,omitempty"`
}

// ProteinSourceView is the top-N slice of the precomputed ingredient
// frequency table for products inside the healthy quadrant.
type ProteinSourceView struct {
	Available          bool                  `json:"available"`
	Rows               []types.ProteinSource `json:"rows,omitempty"`
	DataQualityWarning string                `json:"data_quality_warning,omitempty"`
}

// HealthyTable lists the first rows of the filtered subset that sit in
// the healthy quadrant, for the sample-products table.
type HealthyTable struct {
	Rows         []types.Product `json:"rows"`
	TotalHealthy int             `json:"total_healthy"`
}

// DashboardView is everything the presentation layer needs for one
// render of the dashboard.
type DashboardView struct {
	Overview       Overview          `json:"overview"`
	Thresholds     types.Thresholds  `json:"thresholds"`
	Filtered       []types.Product   `json:"filtered"`
	Sample         []types.Product   `json:"sample"`
	CategoryGap    CategoryGapView   `json:"category_gap"`
	Brands         BrandView         `json:"brands"`
	ProteinSources ProteinSourceView `json:"protein_sources"`
	HealthyTable   HealthyTable      `json:"healthy_table"`
	Recommendation string            `json:"recommendation"`
}

// BuildView evaluates the whole dashboard for one (snapshot, params)
// pair. The snapshot is never mutated.
func (e *Engine) BuildView(snap *types.Snapshot, params types.FilterParams) *DashboardView {
	start := time.Now()

	filtered := Filter(snap.Products, params)
	sample := Sample(filtered, e.sampleCap, e.sampleSeed)

	view := &DashboardView{
		Overview:       e.overview(snap.Products, filtered),
		Thresholds:     snap.Thresholds,
		Filtered:       filtered,
		Sample:         sample,
		CategoryGap:    e.CategoryGap(snap),
		Brands:         e.TopBrands(snap, 0),
		ProteinSources: e.TopProteinSources(snap, 0),
		HealthyTable:   e.healthyTable(filtered),
		Recommendation: snap.Recommendation,
	}

	e.log.Debug("Dashboard view built",
		"total", view.Overview.TotalProducts,
		"filtered", view.Overview.FilteredCount,
		"sampled", len(sample),
		"duration", time.Since(start))
	return view
}

func (e *Engine) overview(products, filtered []types.Product) Overview {
	categories := make(map[string]struct{})
	healthy := 0
	for _, p := range products {
		categories[p.PrimaryCategory] = struct{}{}
		if p.HighProteinLowSugar {
			healthy++
		}
	}

	pct := 0.0
	if len(products) > 0 {
		pct = float64(healthy) / float64(len(products)) * 100
	}

	return Overview{
		TotalProducts: len(products),
		Categories:    len(categories),
		HealthyCount:  healthy,
		HealthyPct:    pct,
		FilteredCount: len(filtered),
	}
}

// CategoryGap uses the precomputed summary when the artifact loaded, and
// recomputes from the raw rows otherwise. Both paths must agree up to
// floating rounding; the precomputed table simply wins when present.
func (e *Engine) CategoryGap(snap *types.Snapshot) CategoryGapView {
	if snap.HasCategorySummary {
		rows := make([]types.CategorySummary, len(snap.CategorySummary))
		copy(rows, snap.CategorySummary)
		byCategory := make(map[string]types.CategorySummary, len(rows))
		for _, row := range rows {
			byCategory[row.Category] = row
		}
		return CategoryGapView{Available: true, Rows: SortByHealthRatio(byCategory)}
	}

	if len(snap.Products) == 0 {
		return CategoryGapView{}
	}
	return CategoryGapView{
		Available: true,
		Rows:      SortByHealthRatio(AggregateByCategory(snap.Products)),
	}
}

// TopBrands takes the leading n rows of the brand leaderboard; n <= 0
// means the configured default.
func (e *Engine) TopBrands(snap *types.Snapshot, n int) BrandView {
	if !snap.HasBrandLeaderboard {
		return BrandView{}
	}
	if n <= 0 {
		n = e.topN
	}

	view := BrandView{
		Available: true,
		Rows:      topPrefix(snap.BrandLeaderboard, n),
	}
	if !sortedDescending(snap.BrandLeaderboard, func(b types.BrandRank) float64 { return b.HealthyPct }) {
		view.DataQualityWarning = "brand leaderboard is not sorted descending by healthy_pct"
		e.log.Warn("Brand leaderboard failed ordering check", "rows", len(snap.BrandLeaderboard))
	}
	return view
}

// TopProteinSources takes the leading n rows of the ingredient frequency
// table; n <= 0 means the configured default.
func (e *Engine) TopProteinSources(snap *types.Snapshot, n int) ProteinSourceView {
	if !snap.HasProteinSources {
		return ProteinSourceView{}
	}
	if n <= 0 {
		n = e.topN
	}

	view := ProteinSourceView{
		Available: true,
		Rows:      topPrefix(snap.ProteinSources, n),
	}
	if !sortedDescending(snap.ProteinSources, func(s types.ProteinSource) float64 { return float64(s.Count) }) {
		view.DataQualityWarning = "protein sources table is not sorted descending by count"
		e.log.Warn("Protein sources table failed ordering check", "rows", len(snap.ProteinSources))
	}
	return view
}

func (e *Engine) healthyTable(filtered []types.Product) HealthyTable {
	table := HealthyTable{Rows: []types.Product{}}
	for _, p := range filtered {
		if !p.HighProteinLowSugar {
			continue
		}
		table.TotalHealthy++
		if len(table.Rows) < e.tableRows {
			table.Rows = append(table.Rows, p)
		}
	}
	return table
}
