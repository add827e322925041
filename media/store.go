package media

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// AssetType selects a subdirectory of the derived-artifact cache.
type AssetType string

const (
	// AssetTypeChip holds rendered chip rasters.
	AssetTypeChip AssetType = "chips"
	// AssetTypeIndex holds serialized nearest-neighbor index files.
	AssetTypeIndex AssetType = "index"
)

// Store manages the on-disk cache of derived artifacts, one subdirectory per
// asset type, all under a single base path.
type Store struct {
	basePath string
	resolved map[AssetType]string
}

// NewLocalStore creates the cache layout under basePath.
func NewLocalStore(basePath string) (*Store, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid cache base path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache base directory '%s': %w", absBasePath, err)
	}

	resolved := make(map[AssetType]string)
	for _, assetType := range []AssetType{AssetTypeChip, AssetTypeIndex} {
		dirPath := filepath.Join(absBasePath, string(assetType))
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory '%s': %w", dirPath, err)
		}
		resolved[assetType] = dirPath
	}

	log.Printf("media.store: initialized artifact cache at %s", absBasePath)
	return &Store{basePath: absBasePath, resolved: resolved}, nil
}

// Dir returns the absolute directory for an asset type.
func (s *Store) Dir(assetType AssetType) string {
	return s.resolved[assetType]
}

// FilePath resolves a filename within an asset type's directory, refusing
// names that would escape it.
func (s *Store) FilePath(assetType AssetType, filename string) (string, error) {
	dirPath, ok := s.resolved[assetType]
	if !ok {
		return "", fmt.Errorf("media.store: unknown asset type '%s'", assetType)
	}
	fullPath := filepath.Join(dirPath, filepath.Clean(filename))
	if !strings.HasPrefix(fullPath, dirPath+string(os.PathSeparator)) {
		return "", fmt.Errorf("media.store: invalid filename '%s'", filename)
	}
	return fullPath, nil
}

// Remove deletes an asset file, treating a missing file as success.
func (s *Store) Remove(assetType AssetType, filename string) error {
	fullPath, err := s.FilePath(assetType, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("media.store: failed to delete '%s': %w", fullPath, err)
	}
	return nil
}
