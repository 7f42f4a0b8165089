package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ProductsResponse mirrors the /api/products payload of the running server.
type ProductsResponse struct {
	Overview struct {
		TotalProducts int     `json:"total_products"`
		Categories    int     `json:"categories"`
		HealthyCount  int     `json:"healthy_count"`
		HealthyPct    float64 `json:"healthy_pct"`
		FilteredCount int     `json:"filtered_count"`
	} `json:"overview"`
	Thresholds struct {
		Protein float64 `json:"high_protein_threshold"`
		Sugar   float64 `json:"low_sugar_threshold"`
	} `json:"thresholds"`
	Products []map[string]interface{} `json:"products"`
}

const (
	serverURL   = "http://localhost:8080/api/products"
	authToken   = "super-secret-token"
	maxDuration = 1 * time.Second
	testRuns    = 5
)

func main() {
	fmt.Printf("🧪 Running acceptance tests for Sugar Trap Dashboard\n")
	fmt.Printf("Expected: All queries should complete in under %v\n", maxDuration)
	fmt.Printf("Validating: Overview counts, thresholds, and filtered product rows\n\n")

	// Filter that any realistic bundle should satisfy: everything with
	// sugar at or below 100g/100g, i.e. the whole table.
	query := url.Values{}
	query.Set("sugar_max", "100")
	query.Set("protein_min", "0")

	var totalDuration time.Duration
	var maxDur time.Duration
	var minDur = time.Hour // Initialize to a large value

	fmt.Printf("Running query %d times: %s\n", testRuns, query.Encode())

	for i := 1; i <= testRuns; i++ {
		start := time.Now()

		response, err := makeRequest(query)
		if err != nil {
			fmt.Printf("❌ Test %d failed: %v\n", i, err)
			os.Exit(1)
		}

		duration := time.Since(start)
		totalDuration += duration

		if duration > maxDur {
			maxDur = duration
		}
		if duration < minDur {
			minDur = duration
		}

		if err := validateResponse(response); err != nil {
			fmt.Printf("❌ Test %d failed: %v\n", i, err)
			os.Exit(1)
		}

		status := "✅"
		if duration > maxDuration {
			status = "❌"
		}

		fmt.Printf("%s Test %d: %v (%d products, %d matching filter)\n",
			status, i, duration, response.Overview.TotalProducts, response.Overview.FilteredCount)

		// Fail fast if performance requirement not met
		if duration > maxDuration {
			fmt.Printf("\n❌ FAILED: Query took %v, which exceeds the %v limit\n", duration, maxDuration)
			os.Exit(1)
		}
	}

	avgDuration := totalDuration / testRuns

	fmt.Printf("\n📊 Performance Summary:\n")
	fmt.Printf("   Runs: %d\n", testRuns)
	fmt.Printf("   Average: %v\n", avgDuration)
	fmt.Printf("   Min: %v\n", minDur)
	fmt.Printf("   Max: %v\n", maxDur)
	fmt.Printf("   Limit: %v\n", maxDuration)

	if maxDur <= maxDuration {
		fmt.Printf("\n🎉 ALL TESTS PASSED! All queries completed within the performance requirements.\n")
	} else {
		fmt.Printf("\n❌ TESTS FAILED! Some queries exceeded the performance requirements.\n")
		os.Exit(1)
	}
}

func makeRequest(query url.Values) (*ProductsResponse, error) {
	httpReq, err := http.NewRequest("GET", serverURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+authToken)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var response ProductsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &response, nil
}

// validateResponse checks the invariants any loaded dashboard must satisfy.
func validateResponse(response *ProductsResponse) error {
	if response.Overview.TotalProducts == 0 {
		return fmt.Errorf("overview reports zero products")
	}

	if response.Overview.Categories == 0 {
		return fmt.Errorf("overview reports zero categories")
	}

	if response.Overview.HealthyCount > response.Overview.TotalProducts {
		return fmt.Errorf("healthy count %d exceeds total %d",
			response.Overview.HealthyCount, response.Overview.TotalProducts)
	}

	// The widest possible filter must match the whole table.
	if response.Overview.FilteredCount != response.Overview.TotalProducts {
		return fmt.Errorf("widest filter matched %d of %d products",
			response.Overview.FilteredCount, response.Overview.TotalProducts)
	}

	if response.Thresholds.Protein <= 0 {
		return fmt.Errorf("protein threshold %v is not positive", response.Thresholds.Protein)
	}

	if len(response.Products) == 0 {
		return fmt.Errorf("empty products array")
	}

	for _, product := range response.Products {
		name, ok := product["product_name"].(string)
		if !ok || name == "" {
			return fmt.Errorf("product row without a product_name")
		}
		if _, ok := product["primary_category"].(string); !ok {
			return fmt.Errorf("product %q has no primary_category", name)
		}
		if _, ok := product["is_high_protein_low_sugar"].(bool); !ok {
			return fmt.Errorf("product %q has no health flag", name)
		}
	}

	return nil
}
