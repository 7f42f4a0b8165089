package dataset

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/snacklab/sugartrap-dashboard/internal/config"
)

// Metadata records what an extraction produced, keyed by the archive's
// content hash so unchanged archives are never re-extracted.
type Metadata struct {
	SHA256      string    `json:"sha256"`
	ExtractedAt time.Time `json:"extracted_at"`
	Size        int64     `json:"size"`
}

// Extractor materializes a zip source into a cache directory so the
// artifact files can be read in place. Extraction is guarded by a lock
// file because several processes may share the cache.
type Extractor struct {
	cacheDir     string
	metadataPath string
	lockPath     string
	log          *slog.Logger
	config       *config.Config
}

// NewExtractor creates a new archive extractor
func NewExtractor(cfg *config.Config, logger *slog.Logger) *Extractor {
	return &Extractor{
		cacheDir:     cfg.CacheDir,
		metadataPath: cfg.MetadataPath,
		lockPath:     cfg.LockFile,
		log:          logger,
		config:       cfg,
	}
}

// EnsureExtracted returns a directory containing the archive's artifact
// files, extracting only when the archive content changed since the last
// run.
func (e *Extractor) EnsureExtracted(ctx context.Context, archivePath string) (string, error) {
	start := time.Now()
	e.log.Info("Ensuring archive is extracted", "archive", archivePath)

	sha, err := computeSHA256(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to hash archive: %w", err)
	}
	targetDir := filepath.Join(e.cacheDir, "extracted-"+sha[:12])

	if meta, err := e.loadMetadata(); err == nil && meta.SHA256 == sha {
		if _, err := os.Stat(targetDir); err == nil {
			e.log.Info("Archive already extracted", "dir", targetDir, "duration", time.Since(start))
			return targetDir, nil
		}
	}

	if err := e.extractWithLock(ctx, archivePath, sha, targetDir); err != nil {
		return "", fmt.Errorf("failed to extract archive: %w", err)
	}

	e.log.Info("Archive extracted", "dir", targetDir, "duration", time.Since(start))
	return targetDir, nil
}

func (e *Extractor) extractWithLock(ctx context.Context, archivePath, sha, targetDir string) error {
	start := time.Now()
	e.log.Debug("Attempting to acquire extract lock", "lock_path", e.lockPath)

	// IGNORE_LOCK forcefully removes a stale lock left by a crashed run
	if e.config.IgnoreLock {
		if _, err := os.Stat(e.lockPath); err == nil {
			e.log.Warn("IGNORE_LOCK enabled, removing existing lock file", "lock_path", e.lockPath)
			if err := os.Remove(e.lockPath); err != nil {
				e.log.Warn("Failed to remove lock file", "error", err)
			}
		}
	}

	lockFile, err := acquireLock(e.lockPath)
	if err != nil {
		if e.config.IgnoreLock {
			e.log.Warn("IGNORE_LOCK enabled but lock still held, proceeding anyway", "error", err)
		} else {
			e.log.Info("Another instance is extracting, waiting", "lock_path", e.lockPath)
			return e.waitForExtraction(ctx, targetDir)
		}
	}
	if lockFile != nil {
		defer releaseLock(lockFile, e.lockPath)
	}

	e.log.Debug("Lock acquired, starting extraction", "duration", time.Since(start))

	// Extract into a temp dir first, then rename into place
	tmpDir := targetDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("failed to clear temp dir: %w", err)
	}
	if err := extractArchive(archivePath, tmpDir); err != nil {
		os.RemoveAll(tmpDir)
		return err
	}
	if err := os.RemoveAll(targetDir); err != nil {
		os.RemoveAll(tmpDir)
		return fmt.Errorf("failed to clear target dir: %w", err)
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		os.RemoveAll(tmpDir)
		return fmt.Errorf("failed to move extraction into place: %w", err)
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	meta := &Metadata{
		SHA256:      sha,
		ExtractedAt: time.Now().UTC(),
		Size:        stat.Size(),
	}
	if err := e.saveMetadata(meta); err != nil {
		e.log.Warn("Failed to save metadata", "error", err)
	}

	return nil
}

// extractArchive writes the known artifact entries of the zip into dir.
// Entries are matched by base name, so the layout inside the archive does
// not matter. Unknown entries are skipped.
func extractArchive(archivePath, dir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create extraction dir: %w", err)
	}

	known := make(map[string]struct{}, len(ArtifactNames))
	for _, name := range ArtifactNames {
		known[name] = struct{}{}
	}

	for _, entry := range reader.File {
		base := filepath.Base(entry.Name)
		if _, ok := known[base]; !ok || entry.FileInfo().IsDir() {
			continue
		}

		src, err := entry.Open()
		if err != nil {
			return fmt.Errorf("failed to open archive entry %s: %w", entry.Name, err)
		}
		dst, err := os.Create(filepath.Join(dir, base))
		if err != nil {
			src.Close()
			return fmt.Errorf("failed to create %s: %w", base, err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", base, err)
		}
	}
	return nil
}

// waitForExtraction waits for another instance to finish extracting
func (e *Extractor) waitForExtraction(ctx context.Context, targetDir string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	timeout := time.After(5 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for extraction by other instance")
		case <-ticker.C:
			if _, err := os.Stat(targetDir); err == nil {
				e.log.Info("Extraction now available after other instance completed")
				return nil
			}
		}
	}
}

func (e *Extractor) loadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(e.metadataPath)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (e *Extractor) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(e.metadataPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(e.metadataPath, data, 0644)
}

// acquireLock attempts to acquire an exclusive lock
func acquireLock(lockPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// O_CREATE|O_EXCL fails if the file exists
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// releaseLock releases the lock file
func releaseLock(f *os.File, lockPath string) {
	f.Close()
	os.Remove(lockPath)
}

// computeSHA256 computes the SHA256 hash of a file
func computeSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
