package matcher

import (
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSource serves canned descriptor matrices keyed by annotation uuid.
type mapSource map[string][][]float32

func (m mapSource) AnnotationDescriptors(annotUUIDs []string) ([][][]float32, error) {
	out := make([][][]float32, len(annotUUIDs))
	for i, uuid := range annotUUIDs {
		out[i] = m[uuid]
	}
	return out, nil
}

func testConfig() Config {
	return Config{FeatureConfig: "feat(orb,n=500)", NumTrees: 4, MaxLeafSize: 4}
}

func smallSource() mapSource {
	return mapSource{
		"annot-a": {{0, 0, 0, 1}, {0, 0, 1, 0}, {0, 1, 0, 0}},
		"annot-b": nil,
		"annot-c": {{1, 0, 0, 0}, {10, 10, 10, 10}},
	}
}

func TestBuild(t *testing.T) {
	source := smallSource()
	refs := []string{"annot-a", "annot-b", "annot-c"}

	idx, err := Build(testConfig(), source, refs)
	require.NoError(t, err)

	t.Run("AggregatesSkippingEmptyReferences", func(t *testing.T) {
		assert.Equal(t, 5, idx.Count())
		assert.Equal(t, 4, idx.Dim())
	})

	t.Run("NeighborsAttributeToOwners", func(t *testing.T) {
		// query exactly one of annot-c's descriptors; its own row must
		// come back first with distance zero and a restarted feature
		// index
		result, err := idx.Query([][]float32{{1, 0, 0, 0}}, 1, 0, 0)
		require.NoError(t, err)
		top := result.Neighbors[0][0]
		assert.Equal(t, "annot-c", top.AnnotUUID)
		assert.Equal(t, int32(0), top.FeatureIndex)
		assert.Equal(t, float32(0), top.Distance)
	})

	t.Run("EmptyReferenceSet", func(t *testing.T) {
		_, err := Build(testConfig(), source, []string{"annot-b"})
		assert.ErrorIs(t, err, ErrEmptyReferenceSet)
	})

	t.Run("InconsistentDims", func(t *testing.T) {
		bad := mapSource{"annot-x": {{1, 2, 3, 4}, {1, 2}}}
		_, err := Build(testConfig(), bad, []string{"annot-x"})
		var dimErr DimensionMismatchError
		assert.ErrorAs(t, err, &dimErr)
	})
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("feat(orb,n=500)", []string{"u1", "u2"})

	t.Run("OrderInsensitive", func(t *testing.T) {
		assert.Equal(t, a, CacheKey("feat(orb,n=500)", []string{"u2", "u1"}))
	})

	t.Run("ConfigSensitive", func(t *testing.T) {
		assert.NotEqual(t, a, CacheKey("feat(orb,n=900)", []string{"u1", "u2"}))
	})

	t.Run("MembershipSensitive", func(t *testing.T) {
		assert.NotEqual(t, a, CacheKey("feat(orb,n=500)", []string{"u1", "u2", "u3"}))
	})
}

func randomSource(rng *rand.Rand, numAnnots, perAnnot, dim int) (mapSource, []string) {
	source := mapSource{}
	refs := make([]string, numAnnots)
	for i := range refs {
		refs[i] = fmt.Sprintf("annot-%03d", i)
		matrix := make([][]float32, perAnnot)
		for j := range matrix {
			row := make([]float32, dim)
			for d := range row {
				row[d] = rng.Float32() * 100
			}
			matrix[j] = row
		}
		source[refs[i]] = matrix
	}
	return source, refs
}

func TestQuery(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	source, refs := randomSource(rng, 20, 10, 8)

	idx, err := Build(Config{FeatureConfig: "f", NumTrees: 4, MaxLeafSize: 8}, source, refs)
	require.NoError(t, err)
	require.Equal(t, 200, idx.Count())

	query := [][]float32{source[refs[0]][0], source[refs[3]][5]}

	t.Run("ReturnsKPlusKNormOrdered", func(t *testing.T) {
		result, err := idx.Query(query, 4, 2, 64)
		require.NoError(t, err)
		assert.False(t, result.Partial)
		require.Len(t, result.Neighbors, 2)
		for _, neighbors := range result.Neighbors {
			require.Len(t, neighbors, 6)
			for i := 1; i < len(neighbors); i++ {
				assert.LessOrEqual(t, neighbors[i-1].Distance, neighbors[i].Distance)
			}
		}
		// self-match comes first
		assert.Equal(t, refs[0], result.Neighbors[0][0].AnnotUUID)
		assert.Equal(t, float32(0), result.Neighbors[0][0].Distance)
	})

	t.Run("LargeBudgetIsExact", func(t *testing.T) {
		// with every leaf visited the forest degrades to an exhaustive
		// scan, so the self-match must surface for both descriptors
		generous, err := idx.Query(query, 4, 0, idx.Count())
		require.NoError(t, err)
		assert.Equal(t, refs[0], generous.Neighbors[0][0].AnnotUUID)
		assert.Equal(t, refs[3], generous.Neighbors[1][0].AnnotUUID)
		assert.Equal(t, float32(0), generous.Neighbors[1][0].Distance)
	})

	t.Run("PartialWhenIndexTooSmall", func(t *testing.T) {
		tiny, err := Build(testConfig(), smallSource(), []string{"annot-a", "annot-c"})
		require.NoError(t, err)

		result, err := tiny.Query([][]float32{{0, 0, 0, 1}}, 4, 2, 0)
		require.NoError(t, err)
		assert.True(t, result.Partial)
		// short lists are returned as-is, never padded
		assert.Len(t, result.Neighbors[0], 5)
	})

	t.Run("RejectsBadK", func(t *testing.T) {
		_, err := idx.Query(query, 0, 1, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
		_, err = idx.Query(query, 4, -1, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("RejectsDimensionMismatch", func(t *testing.T) {
		_, err := idx.Query([][]float32{{1, 2, 3}}, 4, 0, 0)
		var dimErr DimensionMismatchError
		assert.ErrorAs(t, err, &dimErr)
	})
}

func TestLoadOrBuild(t *testing.T) {
	cacheDir := t.TempDir()
	cfg := Config{FeatureConfig: "f", CacheDir: cacheDir, NumTrees: 4, MaxLeafSize: 4}
	source := smallSource()
	refs := []string{"annot-a", "annot-c"}

	built, err := LoadOrBuild(cfg, source, refs)
	require.NoError(t, err)

	t.Run("PersistsCacheFile", func(t *testing.T) {
		key := CacheKey(cfg.FeatureConfig, refs)
		_, err := os.Stat(cacheDir + "/" + cacheFilename(key))
		assert.NoError(t, err)
	})

	t.Run("ReloadedIndexAnswersIdentically", func(t *testing.T) {
		// nil source proves the second call never recomputes descriptors
		loaded, err := LoadOrBuild(cfg, mapSource{}, refs)
		require.NoError(t, err)
		assert.Equal(t, built.Count(), loaded.Count())

		query := [][]float32{{0, 0, 0, 1}, {10, 10, 10, 10}}
		a, err := built.Query(query, 3, 1, 0)
		require.NoError(t, err)
		b, err := loaded.Query(query, 3, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("FailedBuildLeavesNoCacheFile", func(t *testing.T) {
		emptyRefs := []string{"annot-b"}
		_, err := LoadOrBuild(cfg, source, emptyRefs)
		require.ErrorIs(t, err, ErrEmptyReferenceSet)

		key := CacheKey(cfg.FeatureConfig, emptyRefs)
		_, statErr := os.Stat(cacheDir + "/" + cacheFilename(key))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("DeterministicRebuild", func(t *testing.T) {
		again, err := Build(cfg, source, refs)
		require.NoError(t, err)
		query := [][]float32{{0, 1, 0, 0}}
		a, err := built.Query(query, 2, 1, 8)
		require.NoError(t, err)
		b, err := again.Query(query, 2, 1, 8)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
