package engine

// topPrefix takes the first min(n, len) elements of an already-ranked
// sequence. The core trusts upstream ordering and never re-sorts.
func topPrefix[T any](ranked []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	prefix := make([]T, n)
	copy(prefix, ranked[:n])
	return prefix
}

// sortedDescending validates the precondition that a ranked sequence
// arrives sorted descending by its ranking metric. A violation is a
// data-quality problem to surface, not something to silently fix.
func sortedDescending[T any](ranked []T, metric func(T) float64) bool {
	for i := 1; i < len(ranked); i++ {
		if metric(ranked[i]) > metric(ranked[i-1]) {
			return false
		}
	}
	return true
}
