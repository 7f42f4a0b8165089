package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadThresholds(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, ThresholdsFile,
		"metric,value\nhigh_protein_threshold,12.5\nlow_sugar_threshold,3.75\n")

	thresholds, err := loadThresholds(path)

	require.NoError(t, err)
	assert.Equal(t, &types.Thresholds{Protein: 12.5, Sugar: 3.75}, thresholds)
}

func TestLoadThresholds_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "wrong header", content: "name,val\nhigh_protein_threshold,12.5\n"},
		{name: "missing sugar row", content: "metric,value\nhigh_protein_threshold,12.5\n"},
		{name: "non-numeric value", content: "metric,value\nhigh_protein_threshold,abc\nlow_sugar_threshold,3\n"},
		{name: "empty file", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArtifact(t, dir, tt.name+".csv", tt.content)
			_, err := loadThresholds(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadProteinSources(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, ProteinSourcesFile,
		"ingredient,count\npea protein,42\nwhey,17\n")

	sources, err := loadProteinSources(path)

	require.NoError(t, err)
	assert.Equal(t, []types.ProteinSource{
		{Ingredient: "pea protein", Count: 42},
		{Ingredient: "whey", Count: 17},
	}, sources)
}

func TestLoadProteinSources_SchemaMismatchFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	// Column-name drift must be reported, never guessed around.
	path := writeArtifact(t, dir, ProteinSourcesFile,
		"protein_source,n\npea protein,42\n")

	_, err := loadProteinSources(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
}

func TestLoadCategorySummary(t *testing.T) {
	dir := t.TempDir()
	// The upstream job writes the category as a frame index, so the
	// first header cell may be empty.
	path := writeArtifact(t, dir, CategorySummaryFile,
		",total_products,healthy_products,health_ratio\nbars,10,4,40.0\ndrinks,5,1,20.0\n")

	rows, err := loadCategorySummary(path)

	require.NoError(t, err)
	assert.Equal(t, []types.CategorySummary{
		{Category: "bars", TotalProducts: 10, HealthyProducts: 4, HealthRatio: 40.0},
		{Category: "drinks", TotalProducts: 5, HealthyProducts: 1, HealthRatio: 20.0},
	}, rows)
}

func TestLoadCategorySummary_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, CategorySummaryFile,
		"category,total,healthy,ratio\nbars,10,4,40.0\n")

	_, err := loadCategorySummary(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
}

func TestLoadBrandLeaderboard(t *testing.T) {
	dir := t.TempDir()
	// Trailing columns beyond the two required ones are ignored.
	path := writeArtifact(t, dir, BrandLeaderboardFile,
		"primary_brand,healthy_pct,product_count\nSnacktopia,80.5,12\nSucroCorp,4.2,310\n")

	ranks, err := loadBrandLeaderboard(path)

	require.NoError(t, err)
	assert.Equal(t, []types.BrandRank{
		{PrimaryBrand: "Snacktopia", HealthyPct: 80.5},
		{PrimaryBrand: "SucroCorp", HealthyPct: 4.2},
	}, ranks)
}

func TestLoadBrandLeaderboard_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, BrandLeaderboardFile,
		"brand,pct\nSnacktopia,80.5\n")

	_, err := loadBrandLeaderboard(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
}

func TestLoadRecommendation(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, RecommendationFile, "Launch a low-sugar drink.")

	assert.Equal(t, "Launch a low-sugar drink.", loadRecommendation(path))
}

func TestLoadRecommendation_MissingFileFallsBack(t *testing.T) {
	text := loadRecommendation(filepath.Join(t.TempDir(), RecommendationFile))

	assert.Equal(t, "Recommendation not available. Run the analysis cells first.", text)
}
