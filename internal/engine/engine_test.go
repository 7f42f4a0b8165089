package engine

import (
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snacklab/sugartrap-dashboard/internal/config"
	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

func testProduct(name, category string, protein, sugar float64) types.Product {
	return types.Product{
		ProductName:     name,
		PrimaryCategory: category,
		Proteins100g:    types.Float(protein),
		Sugars100g:      types.Float(sugar),
	}
}

// fixtureProducts builds the known per-category dataset used across the
// aggregation tests: 10 bars with 4 healthy, 5 drinks with 1 healthy,
// against thresholds protein>=10, sugar<=5.
func fixtureProducts() []types.Product {
	var products []types.Product
	for i := 0; i < 10; i++ {
		p := testProduct(fmt.Sprintf("bar-%d", i), "bars", 5, 20)
		if i < 4 {
			p = testProduct(fmt.Sprintf("bar-%d", i), "bars", 15, 2)
		}
		products = append(products, p)
	}
	for i := 0; i < 5; i++ {
		p := testProduct(fmt.Sprintf("drink-%d", i), "drinks", 1, 30)
		if i == 0 {
			p = testProduct(fmt.Sprintf("drink-%d", i), "drinks", 12, 0)
		}
		products = append(products, p)
	}
	return products
}

var fixtureThresholds = types.Thresholds{Protein: 10, Sugar: 5}

func TestResolveThresholds_PrecomputedWinsVerbatim(t *testing.T) {
	precomputed := &types.Thresholds{Protein: 12.5, Sugar: 3.75}

	resolved := ResolveThresholds(fixtureProducts(), precomputed)

	assert.Equal(t, *precomputed, resolved)
}

func TestResolveThresholds_DerivedFromRecords(t *testing.T) {
	// proteins 0..10 and sugars 10..0 over eleven rows; with linear
	// interpolation the 70th percentile of 0..10 is exactly 7 and the
	// 30th percentile of 0..10 is exactly 3.
	var products []types.Product
	for i := 0; i <= 10; i++ {
		products = append(products, testProduct(fmt.Sprintf("p-%d", i), "bars", float64(i), float64(i)))
	}

	resolved := ResolveThresholds(products, nil)

	assert.InDelta(t, 7.0, resolved.Protein, 1e-9)
	assert.InDelta(t, 3.0, resolved.Sugar, 1e-9)
}

func TestResolveThresholds_Interpolates(t *testing.T) {
	products := []types.Product{
		testProduct("a", "bars", 0, 0),
		testProduct("b", "bars", 10, 10),
	}

	resolved := ResolveThresholds(products, nil)

	// pos = q*(n-1): 0.7 between 0 and 10 is 7, 0.3 is 3.
	assert.InDelta(t, 7.0, resolved.Protein, 1e-9)
	assert.InDelta(t, 3.0, resolved.Sugar, 1e-9)
}

func TestResolveThresholds_IgnoresMissingAndNaN(t *testing.T) {
	nan := math.NaN()
	products := []types.Product{
		testProduct("a", "bars", 1, 1),
		testProduct("b", "bars", 2, 2),
		testProduct("c", "bars", 3, 3),
		{ProductName: "missing", PrimaryCategory: "bars"},
		{ProductName: "nan", PrimaryCategory: "bars", Proteins100g: &nan, Sugars100g: &nan},
	}

	resolved := ResolveThresholds(products, nil)

	// Only the three finite rows count: 70th pct of {1,2,3} = 2.4,
	// 30th pct = 1.6.
	assert.InDelta(t, 2.4, resolved.Protein, 1e-9)
	assert.InDelta(t, 1.6, resolved.Sugar, 1e-9)
}

func TestResolveThresholds_EmptyTable(t *testing.T) {
	resolved := ResolveThresholds(nil, nil)
	assert.Equal(t, types.Thresholds{}, resolved)
}

func TestAnnotate_BoundaryInclusive(t *testing.T) {
	thresholds := types.Thresholds{Protein: 10, Sugar: 5}

	tests := []struct {
		name    string
		protein float64
		sugar   float64
		healthy bool
	}{
		{name: "clearly healthy", protein: 20, sugar: 1, healthy: true},
		{name: "exactly on both boundaries", protein: 10, sugar: 5, healthy: true},
		{name: "protein just under", protein: 9.999, sugar: 5, healthy: false},
		{name: "sugar just over", protein: 10, sugar: 5.001, healthy: false},
		{name: "clearly unhealthy", protein: 1, sugar: 40, healthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			annotated := Annotate([]types.Product{testProduct("p", "bars", tt.protein, tt.sugar)}, thresholds)
			assert.Equal(t, tt.healthy, annotated[0].HighProteinLowSugar)
		})
	}
}

func TestAnnotate_MissingOrNaNIsNeverHealthy(t *testing.T) {
	nan := math.NaN()
	products := []types.Product{
		{ProductName: "no protein", PrimaryCategory: "bars", Sugars100g: types.Float(0)},
		{ProductName: "no sugar", PrimaryCategory: "bars", Proteins100g: types.Float(99)},
		{ProductName: "nan protein", PrimaryCategory: "bars", Proteins100g: &nan, Sugars100g: types.Float(0)},
		{ProductName: "nan sugar", PrimaryCategory: "bars", Proteins100g: types.Float(99), Sugars100g: &nan},
	}

	annotated := Annotate(products, types.Thresholds{Protein: 0, Sugar: 100})

	for _, p := range annotated {
		assert.False(t, p.HighProteinLowSugar, p.ProductName)
	}
}

func TestAnnotate_Idempotent(t *testing.T) {
	products := fixtureProducts()

	once := Annotate(products, fixtureThresholds)
	twice := Annotate(once, fixtureThresholds)

	assert.Equal(t, once, twice)
}

func TestAnnotate_DoesNotMutateInput(t *testing.T) {
	products := fixtureProducts()

	Annotate(products, fixtureThresholds)

	for _, p := range products {
		assert.False(t, p.HighProteinLowSugar)
	}
}

func TestFilter_EmptySelectionReturnsEverything(t *testing.T) {
	products := Annotate(fixtureProducts(), fixtureThresholds)

	subset := Filter(products, types.FilterParams{SugarMax: 100, ProteinMin: 0})

	assert.Equal(t, products, subset)
}

func TestFilter_AppliesAllPredicates(t *testing.T) {
	products := []types.Product{
		testProduct("keep", "bars", 15, 3),
		testProduct("wrong category", "drinks", 15, 3),
		testProduct("too sugary", "bars", 15, 50),
		testProduct("too little protein", "bars", 2, 3),
		{ProductName: "missing nutriments", PrimaryCategory: "bars"},
	}

	subset := Filter(products, types.FilterParams{
		Categories: []string{"bars"},
		SugarMax:   10,
		ProteinMin: 10,
	})

	require.Len(t, subset, 1)
	assert.Equal(t, "keep", subset[0].ProductName)
}

func TestFilter_PreservesInputOrder(t *testing.T) {
	var products []types.Product
	var expected []string
	for i := 0; i < 50; i++ {
		p := testProduct(fmt.Sprintf("p-%d", i), "bars", float64(i%20), 1)
		products = append(products, p)
		if i%20 >= 10 {
			expected = append(expected, p.ProductName)
		}
	}

	subset := Filter(products, types.FilterParams{Categories: []string{"bars"}, SugarMax: 100, ProteinMin: 10})

	require.NotEmpty(t, subset)
	var got []string
	for _, p := range subset {
		got = append(got, p.ProductName)
	}
	assert.Equal(t, expected, got, "relative order must match the input")
}

func TestSample_UnderCapIsIdentity(t *testing.T) {
	products := Annotate(fixtureProducts(), fixtureThresholds)
	require.Len(t, products, 15)

	sample := Sample(products, DefaultSampleCap, DefaultSampleSeed)

	assert.Equal(t, products, sample)
}

func TestSample_OverCapIsDeterministic(t *testing.T) {
	var products []types.Product
	for i := 0; i < 3000; i++ {
		products = append(products, testProduct(fmt.Sprintf("p-%d", i), "bars", 10, 2))
	}

	first := Sample(products, DefaultSampleCap, DefaultSampleSeed)
	second := Sample(products, DefaultSampleCap, DefaultSampleSeed)

	require.Len(t, first, DefaultSampleCap)
	assert.Equal(t, first, second, "same subset and seed must draw the identical sample")
}

func TestSample_KeepsRelativeOrder(t *testing.T) {
	var products []types.Product
	for i := 0; i < 2500; i++ {
		products = append(products, testProduct(fmt.Sprintf("%06d", i), "bars", 10, 2))
	}

	sample := Sample(products, 100, DefaultSampleSeed)

	require.Len(t, sample, 100)
	for i := 1; i < len(sample); i++ {
		assert.Less(t, sample[i-1].ProductName, sample[i].ProductName)
	}
}

func TestAggregateByCategory(t *testing.T) {
	products := Annotate(fixtureProducts(), fixtureThresholds)

	groups := AggregateByCategory(products)

	require.Len(t, groups, 2)
	assert.Equal(t, types.CategorySummary{Category: "bars", TotalProducts: 10, HealthyProducts: 4, HealthRatio: 40.0}, groups["bars"])
	assert.Equal(t, types.CategorySummary{Category: "drinks", TotalProducts: 5, HealthyProducts: 1, HealthRatio: 20.0}, groups["drinks"])
}

func TestSortByHealthRatio_AscendingWorstFirst(t *testing.T) {
	products := Annotate(fixtureProducts(), fixtureThresholds)

	rows := SortByHealthRatio(AggregateByCategory(products))

	require.Len(t, rows, 2)
	assert.Equal(t, "drinks", rows[0].Category)
	assert.Equal(t, "bars", rows[1].Category)
}

func TestAggregateByCategory_MatchesPrecomputedSummary(t *testing.T) {
	// The precomputed artifact is produced upstream from the same rows;
	// recomputing from raw records must reproduce it within rounding.
	precomputed := []types.CategorySummary{
		{Category: "bars", TotalProducts: 10, HealthyProducts: 4, HealthRatio: 40.0},
		{Category: "drinks", TotalProducts: 5, HealthyProducts: 1, HealthRatio: 20.0},
	}

	groups := AggregateByCategory(Annotate(fixtureProducts(), fixtureThresholds))

	for _, expected := range precomputed {
		actual, ok := groups[expected.Category]
		require.True(t, ok, expected.Category)
		assert.Equal(t, expected.TotalProducts, actual.TotalProducts)
		assert.Equal(t, expected.HealthyProducts, actual.HealthyProducts)
		assert.InDelta(t, expected.HealthRatio, actual.HealthRatio, 1e-6)
	}
}

func TestTopPrefix(t *testing.T) {
	ranked := []types.BrandRank{
		{PrimaryBrand: "a", HealthyPct: 90},
		{PrimaryBrand: "b", HealthyPct: 80},
		{PrimaryBrand: "c", HealthyPct: 70},
		{PrimaryBrand: "d", HealthyPct: 60},
		{PrimaryBrand: "e", HealthyPct: 50},
	}

	tests := []struct {
		name     string
		n        int
		expected int
	}{
		{name: "n larger than input returns everything", n: 10, expected: 5},
		{name: "n smaller than input truncates", n: 2, expected: 2},
		{name: "zero n", n: 0, expected: 0},
		{name: "negative n", n: -3, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix := topPrefix(ranked, tt.n)
			require.Len(t, prefix, tt.expected)
			assert.Equal(t, ranked[:tt.expected], prefix)
		})
	}
}

func TestSortedDescending(t *testing.T) {
	sorted := []types.ProteinSource{{Ingredient: "pea protein", Count: 40}, {Ingredient: "whey", Count: 40}, {Ingredient: "soy", Count: 12}}
	unsorted := []types.ProteinSource{{Ingredient: "soy", Count: 12}, {Ingredient: "whey", Count: 40}}

	metric := func(s types.ProteinSource) float64 { return float64(s.Count) }
	assert.True(t, sortedDescending(sorted, metric))
	assert.False(t, sortedDescending(unsorted, metric))
	assert.True(t, sortedDescending([]types.ProteinSource{}, metric))
}

func testEngine(opts Options) *Engine {
	return New(opts, config.NewTestLogger(io.Discard, "ERROR"))
}

func testSnapshot() *types.Snapshot {
	products := Annotate(fixtureProducts(), fixtureThresholds)
	return &types.Snapshot{
		Products:              products,
		Thresholds:            fixtureThresholds,
		ThresholdsPrecomputed: true,
		BrandLeaderboard: []types.BrandRank{
			{PrimaryBrand: "Snacktopia", HealthyPct: 80},
			{PrimaryBrand: "SucroCorp", HealthyPct: 5},
		},
		HasBrandLeaderboard: true,
		ProteinSources: []types.ProteinSource{
			{Ingredient: "pea protein", Count: 9},
			{Ingredient: "whey", Count: 4},
		},
		HasProteinSources: true,
		Recommendation:    "Launch a low-sugar drink.",
	}
}

func TestBuildView(t *testing.T) {
	e := testEngine(Options{TopN: 1, TableRows: 3})

	view := e.BuildView(testSnapshot(), types.DefaultFilterParams())

	assert.Equal(t, 15, view.Overview.TotalProducts)
	assert.Equal(t, 2, view.Overview.Categories)
	assert.Equal(t, 5, view.Overview.HealthyCount)
	assert.InDelta(t, 100.0*5/15, view.Overview.HealthyPct, 1e-9)
	assert.Equal(t, 15, view.Overview.FilteredCount)

	assert.Equal(t, fixtureThresholds, view.Thresholds)
	assert.Len(t, view.Sample, 15)

	// No precomputed summary in the snapshot: recomputed from raw rows.
	require.True(t, view.CategoryGap.Available)
	require.Len(t, view.CategoryGap.Rows, 2)
	assert.Equal(t, "drinks", view.CategoryGap.Rows[0].Category)

	require.True(t, view.Brands.Available)
	require.Len(t, view.Brands.Rows, 1)
	assert.Equal(t, "Snacktopia", view.Brands.Rows[0].PrimaryBrand)
	assert.Empty(t, view.Brands.DataQualityWarning)

	require.True(t, view.ProteinSources.Available)
	require.Len(t, view.ProteinSources.Rows, 1)

	assert.Equal(t, 5, view.HealthyTable.TotalHealthy)
	assert.Len(t, view.HealthyTable.Rows, 3)
	for _, p := range view.HealthyTable.Rows {
		assert.True(t, p.HighProteinLowSugar)
	}

	assert.Equal(t, "Launch a low-sugar drink.", view.Recommendation)
}

func TestBuildView_PrecomputedCategorySummaryWins(t *testing.T) {
	snap := testSnapshot()
	snap.CategorySummary = []types.CategorySummary{
		{Category: "bars", TotalProducts: 10, HealthyProducts: 4, HealthRatio: 40},
		{Category: "drinks", TotalProducts: 5, HealthyProducts: 1, HealthRatio: 20},
	}
	snap.HasCategorySummary = true

	view := testEngine(Options{}).BuildView(snap, types.DefaultFilterParams())

	require.True(t, view.CategoryGap.Available)
	require.Len(t, view.CategoryGap.Rows, 2)
	// Still presented ascending by health ratio.
	assert.Equal(t, "drinks", view.CategoryGap.Rows[0].Category)
	assert.Equal(t, "bars", view.CategoryGap.Rows[1].Category)
}

func TestBuildView_AbsentArtifacts(t *testing.T) {
	snap := testSnapshot()
	snap.HasBrandLeaderboard = false
	snap.BrandLeaderboard = nil
	snap.HasProteinSources = false
	snap.ProteinSources = nil

	view := testEngine(Options{}).BuildView(snap, types.DefaultFilterParams())

	assert.False(t, view.Brands.Available)
	assert.Empty(t, view.Brands.Rows)
	assert.False(t, view.ProteinSources.Available)
	assert.Empty(t, view.ProteinSources.Rows)
}

func TestBuildView_FlagsUnsortedLeaderboard(t *testing.T) {
	snap := testSnapshot()
	snap.BrandLeaderboard = []types.BrandRank{
		{PrimaryBrand: "SucroCorp", HealthyPct: 5},
		{PrimaryBrand: "Snacktopia", HealthyPct: 80},
	}

	view := testEngine(Options{}).BuildView(snap, types.DefaultFilterParams())

	require.True(t, view.Brands.Available)
	assert.NotEmpty(t, view.Brands.DataQualityWarning)
	// Order is trusted, never repaired.
	assert.Equal(t, "SucroCorp", view.Brands.Rows[0].PrimaryBrand)
}

func TestBuildView_FilteredSubset(t *testing.T) {
	view := testEngine(Options{}).BuildView(testSnapshot(), types.FilterParams{
		Categories: []string{"drinks"},
		SugarMax:   10,
		ProteinMin: 5,
	})

	assert.Equal(t, 1, view.Overview.FilteredCount)
	require.Len(t, view.Filtered, 1)
	assert.Equal(t, "drink-0", view.Filtered[0].ProductName)
	assert.Equal(t, 1, view.HealthyTable.TotalHealthy)
}
