package matcher

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DescriptorSource supplies descriptor matrices for annotations. Entries for
// annotations without usable artifacts are nil.
type DescriptorSource interface {
	AnnotationDescriptors(annotUUIDs []string) ([][][]float32, error)
}

// Config controls index construction and caching.
type Config struct {
	// FeatureConfig is the parameter string of the feature sets the index
	// is built over. It participates in the cache key so indexes built
	// from different extraction parameters never collide.
	FeatureConfig string
	// CacheDir is where serialized indexes are stored. Empty disables
	// disk caching.
	CacheDir string

	NumTrees    int
	MaxLeafSize int
}

// Index is a nearest-neighbor index over the descriptors of a fixed
// reference set of annotations. Each aggregated descriptor remembers which
// annotation contributed it and its position within that annotation's
// feature set, so neighbor hits can be attributed back to subjects.
type Index struct {
	dim      int
	vectors  [][]float32
	owners   []string
	featIdxs []int32
	trees    []*Node
}

// Dim returns the descriptor width the index was built over.
func (idx *Index) Dim() int { return idx.dim }

// Count returns the total number of aggregated descriptors.
func (idx *Index) Count() int { return len(idx.vectors) }

// CacheKey derives the identity of an index from its feature configuration
// and reference set. Order of the reference set does not matter.
func CacheKey(featureConfig string, annotUUIDs []string) string {
	sorted := make([]string, len(annotUUIDs))
	copy(sorted, annotUUIDs)
	sort.Strings(sorted)

	h := sha1.New()
	h.Write([]byte(featureConfig))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func cacheFilename(key string) string {
	return fmt.Sprintf("index_%s.gob", key)
}

// Build aggregates the descriptors of the given annotations and grows a
// search forest over them. Annotations whose artifacts cannot be produced
// contribute nothing; if the whole set contributes nothing the build fails
// with ErrEmptyReferenceSet. The forest is seeded from the cache key, so
// rebuilding the same reference set yields an identical index.
func Build(cfg Config, source DescriptorSource, annotUUIDs []string) (*Index, error) {
	descriptors, err := source.AnnotationDescriptors(annotUUIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to gather descriptors: %w", err)
	}

	idx := &Index{}
	for i, matrix := range descriptors {
		for fx, vec := range matrix {
			if idx.dim == 0 {
				idx.dim = len(vec)
			}
			if len(vec) != idx.dim {
				return nil, DimensionMismatchError{Expected: idx.dim, Actual: len(vec)}
			}
			idx.vectors = append(idx.vectors, vec)
			idx.owners = append(idx.owners, annotUUIDs[i])
			idx.featIdxs = append(idx.featIdxs, int32(fx))
		}
	}
	if len(idx.vectors) == 0 {
		return nil, ErrEmptyReferenceSet
	}

	key := CacheKey(cfg.FeatureConfig, annotUUIDs)
	seed := int64(binary.BigEndian.Uint64([]byte(key)[:8]))
	rng := rand.New(rand.NewSource(seed))

	numTrees := cfg.NumTrees
	if numTrees <= 0 {
		numTrees = 4
	}
	maxLeafSize := cfg.MaxLeafSize
	if maxLeafSize <= 0 {
		maxLeafSize = 16
	}
	idx.trees = buildForest(idx.vectors, numTrees, maxLeafSize, rng)

	log.Printf("matcher: built index over %d descriptors from %d annotations (%d trees)",
		len(idx.vectors), len(annotUUIDs), numTrees)
	return idx, nil
}

// LoadOrBuild returns a cached index for the reference set if one exists on
// disk, otherwise builds one and persists it. A corrupt cache file is
// rebuilt, not fatal; a failed save is logged and the fresh index returned
// anyway.
func LoadOrBuild(cfg Config, source DescriptorSource, annotUUIDs []string) (*Index, error) {
	if cfg.CacheDir == "" {
		return Build(cfg, source, annotUUIDs)
	}

	key := CacheKey(cfg.FeatureConfig, annotUUIDs)
	path := filepath.Join(cfg.CacheDir, cacheFilename(key))

	if idx, err := loadIndex(path); err == nil {
		log.Printf("matcher: loaded cached index %s (%d descriptors)", cacheFilename(key), idx.Count())
		return idx, nil
	} else if !os.IsNotExist(err) {
		log.Printf("matcher: discarding unreadable index cache %s: %v", path, err)
	}

	idx, err := Build(cfg, source, annotUUIDs)
	if err != nil {
		return nil, err
	}
	if err := saveIndex(path, idx); err != nil {
		log.Printf("matcher: failed to persist index cache %s: %v", path, err)
	}
	return idx, nil
}
