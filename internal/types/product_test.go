package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_JSONSerialization(t *testing.T) {
	product := Product{
		ProductName:         "Peanut Power Bar",
		PrimaryCategory:     "bars",
		Brands:              "Snacktopia",
		Proteins100g:        Float(21.5),
		Sugars100g:          Float(4.2),
		HighProteinLowSugar: true,
	}

	data, err := json.Marshal(product)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "Peanut Power Bar", decoded["product_name"])
	assert.Equal(t, "bars", decoded["primary_category"])
	assert.Equal(t, 21.5, decoded["proteins_100g"])
	assert.Equal(t, true, decoded["is_high_protein_low_sugar"])

	// Fat was never reported, so the field is omitted entirely.
	_, hasFat := decoded["fat_100g"]
	assert.False(t, hasFat)
}

func TestProduct_MissingNutrimentsMarshalAsNull(t *testing.T) {
	product := Product{ProductName: "Mystery Snack", PrimaryCategory: "snacks"}

	data, err := json.Marshal(product)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Nil(t, decoded["proteins_100g"])
	assert.Nil(t, decoded["sugars_100g"])
}

func TestDefaultFilterParams(t *testing.T) {
	params := DefaultFilterParams()

	assert.Empty(t, params.Categories)
	assert.Equal(t, 100.0, params.SugarMax)
	assert.Equal(t, 0.0, params.ProteinMin)
}

func TestFilterParams_CategorySet(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
		expected   map[string]struct{}
	}{
		{
			name:       "empty selection means no restriction",
			categories: nil,
			expected:   nil,
		},
		{
			name:       "selection builds a set",
			categories: []string{"bars", "drinks", "bars"},
			expected:   map[string]struct{}{"bars": {}, "drinks": {}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := FilterParams{Categories: tt.categories}
			assert.Equal(t, tt.expected, params.CategorySet())
		})
	}
}
