package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	defaultChipTargetSize  = 450
	defaultFeatureMaxCount = 500
	defaultIndexNumTrees   = 4
	defaultIndexLeafSize   = 16
	defaultQueryChecks     = 128

	defaultPrecomputeQueueSize  = 200
	defaultNumPrecomputeWorkers = 4
)

type Config struct {
	// source directory (where original imagery is scanned)
	LibraryRoot string

	// database path
	DatabasePath string

	// root for generated assets (chips, serialized indexes)
	CacheStoragePath string

	// chip rendering settings
	ChipTargetSize int

	// feature extraction settings
	FeatureMaxCount int

	// nearest-neighbor index settings
	IndexNumTrees    int
	IndexMaxLeafSize int
	QueryChecks      int

	// worker settings
	PrecomputeQueueSize  int
	NumPrecomputeWorkers int
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	root := getEnvOrDefault("LIBRARY_ROOT", ".")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for library root '%s': %w", root, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "wildid.db")

	cacheStorage := getEnvOrDefault("CACHE_STORAGE_PATH", filepath.Join(".", "cache_storage"))
	absCacheStorage, err := filepath.Abs(cacheStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for cache storage '%s': %w", cacheStorage, err)
	}

	cfg := Config{
		LibraryRoot:          absRoot,
		DatabasePath:         dbPath,
		CacheStoragePath:     absCacheStorage,
		ChipTargetSize:       getEnvIntOrDefault("CHIP_TARGET_SIZE", defaultChipTargetSize),
		FeatureMaxCount:      getEnvIntOrDefault("FEATURE_MAX_COUNT", defaultFeatureMaxCount),
		IndexNumTrees:        getEnvIntOrDefault("INDEX_NUM_TREES", defaultIndexNumTrees),
		IndexMaxLeafSize:     getEnvIntOrDefault("INDEX_MAX_LEAF_SIZE", defaultIndexLeafSize),
		QueryChecks:          getEnvIntOrDefault("QUERY_CHECKS", defaultQueryChecks),
		PrecomputeQueueSize:  getEnvIntOrDefault("PRECOMPUTE_QUEUE_SIZE", defaultPrecomputeQueueSize),
		NumPrecomputeWorkers: getEnvIntOrDefault("NUM_PRECOMPUTE_WORKERS", defaultNumPrecomputeWorkers),
	}

	return cfg, nil
}

// ChipConfigString names the chip rendering parameters. It keys derived chip
// rows, so two runs with the same settings share cached artifacts.
func (c Config) ChipConfigString() string {
	return fmt.Sprintf("chip(sz=%d)", c.ChipTargetSize)
}

// FeatureConfigString names the feature extraction parameters, analogous to
// ChipConfigString.
func (c Config) FeatureConfigString() string {
	return fmt.Sprintf("feat(orb,n=%d)", c.FeatureMaxCount)
}
