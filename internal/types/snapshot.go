package types

// Snapshot is the immutable result of one dataset load. The Loader owns
// its construction; everything downstream treats it as read-only.
//
// Product records are the only mandatory table. Each secondary artifact
// carries its own availability flag so consumers can degrade per view
// instead of failing the whole dashboard.
type Snapshot struct {
	// Products is the full annotated product table, in artifact order.
	Products []Product

	// Thresholds is the resolved quadrant cutoff pair.
	// ThresholdsPrecomputed records whether it came from the thresholds
	// artifact or was derived from the product records.
	Thresholds            Thresholds
	ThresholdsPrecomputed bool

	CategorySummary    []CategorySummary
	HasCategorySummary bool

	BrandLeaderboard    []BrandRank
	HasBrandLeaderboard bool

	ProteinSources    []ProteinSource
	HasProteinSources bool

	// Recommendation is the analyst-facing insight text, or the documented
	// fallback string when the artifact is missing.
	Recommendation string

	// Fingerprint identifies the source contents this snapshot was built
	// from. Used as the memoization key.
	Fingerprint string
}
