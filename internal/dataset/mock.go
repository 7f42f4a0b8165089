package dataset

import (
	"context"
	"os"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// MockReader is an in-memory ProductReader for tests.
type MockReader struct {
	products []types.Product
	err      error
	calls    int
}

var _ ProductReader = (*MockReader)(nil)

// NewMockReader creates a mock reader returning the given rows.
func NewMockReader(products []types.Product) *MockReader {
	return &MockReader{products: products}
}

// ReadProducts returns the configured rows regardless of path, unless the
// path does not exist on disk, mirroring the real reader's failure mode.
func (m *MockReader) ReadProducts(ctx context.Context, path string) ([]types.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	out := make([]types.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

// Close closes the mock reader (no-op)
func (m *MockReader) Close() error {
	return nil
}

// SetError sets an error to be returned by the mock
func (m *MockReader) SetError(err error) {
	m.err = err
}

// Calls reports how many times ReadProducts ran, for cache assertions.
func (m *MockReader) Calls() int {
	return m.calls
}
