package engine

import (
	"math/rand"
	"sort"

	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// Default sampling parameters for the scatter-plot view. The seed is
// fixed so repeated evaluations of the same subset draw the identical
// sample; the chart must not flicker between re-renders, and tests rely
// on the determinism.
const (
	DefaultSampleCap  = 2000
	DefaultSampleSeed = 42
)

// Sample caps the subset for visualization. At or under the cap the input
// is returned unchanged. Over the cap it draws a uniform sample of
// exactly cap rows without replacement, seeded deterministically, and the
// sampled rows keep their relative input order.
func Sample(subset []types.Product, cap int, seed int64) []types.Product {
	if cap <= 0 || len(subset) <= cap {
		return subset
	}

	rng := rand.New(rand.NewSource(seed))
	picked := rng.Perm(len(subset))[:cap]
	sort.Ints(picked)

	sample := make([]types.Product, cap)
	for i, idx := range picked {
		sample[i] = subset[idx]
	}
	return sample
}
