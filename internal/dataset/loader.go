package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/snacklab/sugartrap-dashboard/internal/engine"
	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// Loader reads the artifact set and produces immutable snapshots.
//
// Only a missing or unreadable product-records artifact fails a load;
// every secondary artifact degrades to an absence marker (or, for the
// recommendation, a fallback string) so the dashboard can render a
// partial view. Loads are memoized by source content: repeated calls for
// an unchanged source return the cached snapshot without re-reading.
type Loader struct {
	reader    ProductReader
	extractor *Extractor
	log       *slog.Logger

	mu    sync.RWMutex
	cache map[string]*types.Snapshot
}

// NewLoader creates a loader on top of a product reader. The extractor
// may be nil when zip sources are not needed.
func NewLoader(reader ProductReader, extractor *Extractor, logger *slog.Logger) *Loader {
	return &Loader{
		reader:    reader,
		extractor: extractor,
		log:       logger,
		cache:     make(map[string]*types.Snapshot),
	}
}

// Load reads every artifact under source, which is either a directory of
// artifact files or a .zip archive bundling them.
func (l *Loader) Load(ctx context.Context, source string) (*types.Snapshot, error) {
	start := time.Now()

	dir, err := l.resolveDir(ctx, source)
	if err != nil {
		return nil, err
	}

	fingerprint, err := fingerprintDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint source: %w", err)
	}

	l.mu.RLock()
	cached, ok := l.cache[fingerprint]
	l.mu.RUnlock()
	if ok {
		l.log.Debug("Snapshot cache hit", "source", source, "fingerprint", fingerprint[:12])
		return cached, nil
	}

	snap, err := l.loadSnapshot(ctx, dir)
	if err != nil {
		return nil, err
	}
	snap.Fingerprint = fingerprint

	l.mu.Lock()
	l.cache[fingerprint] = snap
	l.mu.Unlock()

	l.log.Info("Snapshot loaded",
		"source", source,
		"products", len(snap.Products),
		"thresholds_precomputed", snap.ThresholdsPrecomputed,
		"category_summary", snap.HasCategorySummary,
		"brand_leaderboard", snap.HasBrandLeaderboard,
		"protein_sources", snap.HasProteinSources,
		"duration", time.Since(start))
	return snap, nil
}

// resolveDir turns the source into a directory of artifact files,
// extracting zip archives through the cache first.
func (l *Loader) resolveDir(ctx context.Context, source string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("source not found: %w", err)
	}
	if info.IsDir() {
		return source, nil
	}
	if strings.EqualFold(filepath.Ext(source), ".zip") {
		if l.extractor == nil {
			return "", fmt.Errorf("zip source %s requires an extractor", source)
		}
		return l.extractor.EnsureExtracted(ctx, source)
	}
	return "", fmt.Errorf("source %s is neither a directory nor a .zip archive", source)
}

func (l *Loader) loadSnapshot(ctx context.Context, dir string) (*types.Snapshot, error) {
	// Product records are the only fatal artifact: nothing downstream
	// works without them.
	productsPath := filepath.Join(dir, ProductsFile)
	if _, err := os.Stat(productsPath); err != nil {
		return nil, fmt.Errorf("product records artifact missing: %w", err)
	}
	products, err := l.reader.ReadProducts(ctx, productsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read product records: %w", err)
	}

	snap := &types.Snapshot{}

	precomputed := l.loadThresholdsArtifact(dir)
	snap.Thresholds = engine.ResolveThresholds(products, precomputed)
	snap.ThresholdsPrecomputed = precomputed != nil

	// The flag depends on the resolved thresholds, so annotation happens
	// exactly here, once per load.
	snap.Products = engine.Annotate(products, snap.Thresholds)

	if rows, err := loadCategorySummary(filepath.Join(dir, CategorySummaryFile)); err != nil {
		l.warnArtifact(CategorySummaryFile, err)
	} else {
		snap.CategorySummary = rows
		snap.HasCategorySummary = true
	}

	if rows, err := loadBrandLeaderboard(filepath.Join(dir, BrandLeaderboardFile)); err != nil {
		l.warnArtifact(BrandLeaderboardFile, err)
	} else {
		snap.BrandLeaderboard = rows
		snap.HasBrandLeaderboard = true
	}

	if rows, err := loadProteinSources(filepath.Join(dir, ProteinSourcesFile)); err != nil {
		l.warnArtifact(ProteinSourcesFile, err)
	} else {
		snap.ProteinSources = rows
		snap.HasProteinSources = true
	}

	snap.Recommendation = loadRecommendation(filepath.Join(dir, RecommendationFile))

	return snap, nil
}

func (l *Loader) loadThresholdsArtifact(dir string) *types.Thresholds {
	thresholds, err := loadThresholds(filepath.Join(dir, ThresholdsFile))
	if err != nil {
		l.warnArtifact(ThresholdsFile, err)
		return nil
	}
	return thresholds
}

func (l *Loader) warnArtifact(name string, err error) {
	if os.IsNotExist(err) {
		l.log.Warn("Artifact missing, view degrades to absent", "artifact", name)
		return
	}
	l.log.Warn("Artifact unreadable, view degrades to absent", "artifact", name, "error", err)
}

// fingerprintDir hashes the artifact contents of dir. The fingerprint
// changes iff any artifact's bytes change, which makes it the snapshot
// cache key.
func fingerprintDir(dir string) (string, error) {
	hash := sha256.New()
	for _, name := range ArtifactNames {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		io.WriteString(hash, name)
		hash.Write([]byte{0})
		if _, err := io.Copy(hash, f); err != nil {
			f.Close()
			return "", err
		}
		f.Close()
		hash.Write([]byte{0})
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
