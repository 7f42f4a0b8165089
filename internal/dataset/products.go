package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// ProductReader reads the product-records artifact into memory.
type ProductReader interface {
	ReadProducts(ctx context.Context, path string) ([]types.Product, error)
	Close() error
}

// DuckDBReader loads the categorized products CSV through DuckDB, which
// handles quoting, nulls and type inference for the large table.
type DuckDBReader struct {
	db  *sql.DB
	log *slog.Logger
}

var _ ProductReader = (*DuckDBReader)(nil)

// NewDuckDBReader creates a product reader backed by an in-process DuckDB.
func NewDuckDBReader(logger *slog.Logger) (*DuckDBReader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &DuckDBReader{db: db, log: logger}, nil
}

// Close closes the database connection
func (r *DuckDBReader) Close() error {
	return r.db.Close()
}

// ReadProducts reads every product row from the CSV at path, in file
// order. Nutriment values that are missing or NaN come back as nil.
func (r *DuckDBReader) ReadProducts(ctx context.Context, path string) ([]types.Product, error) {
	start := time.Now()
	r.log.Debug("ReadProducts starting", "path", path)

	query := `
		SELECT product_name, primary_category, brands, proteins_100g, sugars_100g, fat_100g
		FROM read_csv_auto(?)`

	rows, err := r.db.QueryContext(ctx, query, path)
	if err != nil {
		r.log.Error("DuckDB CSV query failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("product records query failed: %w", err)
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		var nameStr, categoryStr, brandsStr sql.NullString
		var proteins, sugars, fat sql.NullFloat64

		if err := rows.Scan(&nameStr, &categoryStr, &brandsStr, &proteins, &sugars, &fat); err != nil {
			r.log.Error("Row scan failed", "error", err)
			continue
		}

		p := types.Product{
			ProductName:     nameStr.String,
			PrimaryCategory: categoryStr.String,
			Brands:          brandsStr.String,
			Proteins100g:    nullableFloat(proteins),
			Sugars100g:      nullableFloat(sugars),
			Fat100g:         nullableFloat(fat),
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.log.Error("Rows iteration failed", "error", err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	r.log.Info("ReadProducts completed", "count", len(products), "duration", time.Since(start))
	return products, nil
}

// nullableFloat normalizes SQL nulls and NaN to nil so a single "not
// reported" state flows through the rest of the system.
func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid || math.IsNaN(v.Float64) {
		return nil
	}
	f := v.Float64
	return &f
}
