package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the dashboard server
type Config struct {
	// Auth
	AuthToken string

	// Data source: a directory of artifact files or a single .zip archive
	DataSource string

	// Cache for extracted archives and snapshot bookkeeping
	CacheDir     string
	MetadataPath string
	LockFile     string
	IgnoreLock   bool

	// Engine tuning
	SampleCap  int
	SampleSeed int64
	TopN       int
	TableRows  int

	// Server
	Port        string
	Environment string
}

// Load reads configuration from the environment, after merging any .env
// file in the working directory. Real environment variables always win
// over .env values.
func Load() *Config {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load()

	cacheDir := getEnv("CACHE_DIR", "./cache")

	return &Config{
		AuthToken:    getEnv("AUTH_TOKEN", "super-secret-token"),
		DataSource:   getEnv("DATA_SOURCE", "./data"),
		CacheDir:     cacheDir,
		MetadataPath: getEnv("METADATA_PATH", filepath.Join(cacheDir, "metadata.json")),
		LockFile:     getEnv("LOCK_FILE", filepath.Join(cacheDir, "extract.lock")),
		IgnoreLock:   getEnvBool("IGNORE_LOCK", false),
		SampleCap:    getEnvInt("SAMPLE_CAP", 2000),
		SampleSeed:   int64(getEnvInt("SAMPLE_SEED", 42)),
		TopN:         getEnvInt("TOP_N", 10),
		TableRows:    getEnvInt("TABLE_ROWS", 20),
		Port:         getEnv("PORT", "8080"),
		Environment:  getEnv("ENV", "production"),
	}
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
