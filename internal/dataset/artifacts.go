package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// Artifact file names as written by the upstream analysis pipeline.
// A source is a directory (or archive) containing some subset of these;
// only the product records are mandatory.
const (
	ProductsFile         = "categorized_products.csv"
	ThresholdsFile       = "thresholds.csv"
	ProteinSourcesFile   = "top_protein_sources.csv"
	CategorySummaryFile  = "category_summary.csv"
	BrandLeaderboardFile = "brand_leaderboard.csv"
	RecommendationFile   = "recommendation.txt"
)

// RecommendationFallback is returned verbatim when the recommendation
// artifact is missing.
const RecommendationFallback = "Recommendation not available. Run the analysis cells first."

// ArtifactNames lists every artifact the loader knows about.
var ArtifactNames = []string{
	ProductsFile,
	ThresholdsFile,
	ProteinSourcesFile,
	CategorySummaryFile,
	BrandLeaderboardFile,
	RecommendationFile,
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return records, nil
}

// loadThresholds parses the thresholds artifact: metric/value rows naming
// high_protein_threshold and low_sugar_threshold. Both rows are required.
func loadThresholds(path string) (*types.Thresholds, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	header := records[0]
	if len(header) < 2 || header[0] != "metric" || header[1] != "value" {
		return nil, fmt.Errorf("thresholds schema mismatch: want columns [metric value], got %v", header)
	}

	var thresholds types.Thresholds
	var haveProtein, haveSugar bool
	for _, row := range records[1:] {
		if len(row) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("thresholds: bad value for %q: %w", row[0], err)
		}
		switch row[0] {
		case "high_protein_threshold":
			thresholds.Protein = value
			haveProtein = true
		case "low_sugar_threshold":
			thresholds.Sugar = value
			haveSugar = true
		}
	}
	if !haveProtein || !haveSugar {
		return nil, fmt.Errorf("thresholds: missing high_protein_threshold or low_sugar_threshold row")
	}
	return &thresholds, nil
}

// loadProteinSources parses the ingredient frequency artifact. The schema
// is fixed: ingredient,count. Anything else is a data-quality error, not
// an invitation to guess column names.
func loadProteinSources(path string) ([]types.ProteinSource, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	header := records[0]
	if len(header) < 2 || header[0] != "ingredient" || header[1] != "count" {
		return nil, fmt.Errorf("protein sources schema mismatch: want columns [ingredient count], got %v", header)
	}

	sources := make([]types.ProteinSource, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 2 {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, fmt.Errorf("protein sources: bad count for %q: %w", row[0], err)
		}
		sources = append(sources, types.ProteinSource{Ingredient: row[0], Count: count})
	}
	return sources, nil
}

// loadCategorySummary parses the per-category health table. The first
// column is the category label (the upstream job writes it as a frame
// index, so its header name varies); the remaining columns are fixed.
func loadCategorySummary(path string) ([]types.CategorySummary, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	header := records[0]
	if len(header) < 4 || header[1] != "total_products" || header[2] != "healthy_products" || header[3] != "health_ratio" {
		return nil, fmt.Errorf("category summary schema mismatch: want columns [<category> total_products healthy_products health_ratio], got %v", header)
	}

	rows := make([]types.CategorySummary, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 4 {
			continue
		}
		total, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, fmt.Errorf("category summary: bad total_products for %q: %w", row[0], err)
		}
		healthy, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, fmt.Errorf("category summary: bad healthy_products for %q: %w", row[0], err)
		}
		ratio, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("category summary: bad health_ratio for %q: %w", row[0], err)
		}
		rows = append(rows, types.CategorySummary{
			Category:        row[0],
			TotalProducts:   total,
			HealthyProducts: healthy,
			HealthRatio:     ratio,
		})
	}
	return rows, nil
}

// loadBrandLeaderboard parses the brand ranking artifact. The first two
// columns must be primary_brand and healthy_pct; trailing columns are
// permitted and ignored.
func loadBrandLeaderboard(path string) ([]types.BrandRank, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	header := records[0]
	if len(header) < 2 || header[0] != "primary_brand" || header[1] != "healthy_pct" {
		return nil, fmt.Errorf("brand leaderboard schema mismatch: want leading columns [primary_brand healthy_pct], got %v", header)
	}

	ranks := make([]types.BrandRank, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 2 {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("brand leaderboard: bad healthy_pct for %q: %w", row[0], err)
		}
		ranks = append(ranks, types.BrandRank{PrimaryBrand: row[0], HealthyPct: pct})
	}
	return ranks, nil
}

// loadRecommendation reads the insight text blob. A missing file is the
// one artifact with a literal fallback instead of an absence marker.
func loadRecommendation(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return RecommendationFallback
	}
	return string(data)
}
