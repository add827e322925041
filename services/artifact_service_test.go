package services

import (
	"database/sql"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/media"
)

type fakeProvider struct{}

func (fakeProvider) ReadMetadata(uri string) (database.ImageMeta, error) {
	return database.ImageMeta{Width: 800, Height: 600}, nil
}

type fakeRenderer struct {
	calls atomic.Int64
}

func (r *fakeRenderer) RenderChip(imagePath string, bbox database.BBox, theta float64) (image.Image, error) {
	r.calls.Add(1)
	return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
}

type fakeExtractor struct {
	calls atomic.Int64
}

func (e *fakeExtractor) Extract(chipPath string) ([]media.Keypoint, [][]float32, error) {
	e.calls.Add(1)
	kpts := []media.Keypoint{{X: 1, Y: 1, Size: 3}, {X: 2, Y: 2, Size: 3}, {X: 3, Y: 3, Size: 3}}
	descs := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	return kpts, descs, nil
}

type testHarness struct {
	db         *sql.DB
	service    *ArtifactService
	renderer   *fakeRenderer
	extractor  *fakeExtractor
	annotUUIDs []string
}

func newHarness(t *testing.T, numAnnotations int) *testHarness {
	t.Helper()

	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := media.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	renderer := &fakeRenderer{}
	extractor := &fakeExtractor{}
	reader := &media.MetadataReader{LibraryRoot: t.TempDir()}

	service, err := NewArtifactService(db, store, reader, renderer, extractor,
		"chip(sz=450)", "feat(orb,n=500)")
	require.NoError(t, err)

	uris := make([]string, numAnnotations)
	bboxes := make([]database.BBox, numAnnotations)
	thetas := make([]float64, numAnnotations)
	for i := range uris {
		uris[i] = fmt.Sprintf("img_%03d.jpg", i)
		bboxes[i] = database.BBox{X: 10 * i, Y: 0, W: 100, H: 100}
	}
	imageUUIDs, err := database.AddImages(db, fakeProvider{}, uris)
	require.NoError(t, err)
	annotUUIDs, err := database.AddAnnotations(db, imageUUIDs, bboxes, thetas, nil, nil)
	require.NoError(t, err)

	return &testHarness{
		db:         db,
		service:    service,
		renderer:   renderer,
		extractor:  extractor,
		annotUUIDs: annotUUIDs,
	}
}

func TestEnsureChips(t *testing.T) {
	h := newHarness(t, 3)

	chipIDs, err := h.service.EnsureChips(h.annotUUIDs)
	require.NoError(t, err)
	require.Len(t, chipIDs, 3)
	for i, id := range chipIDs {
		require.NotNil(t, id, "chip %d", i)
	}
	assert.Equal(t, int64(3), h.renderer.calls.Load())

	t.Run("ChipFilesWritten", func(t *testing.T) {
		for _, uuid := range h.annotUUIDs {
			path, err := h.service.Store.FilePath(media.AssetTypeChip, h.service.ChipFilename(uuid))
			require.NoError(t, err)
			_, err = os.Stat(path)
			assert.NoError(t, err)
		}
	})

	t.Run("SecondCallHitsCache", func(t *testing.T) {
		again, err := h.service.EnsureChips(h.annotUUIDs)
		require.NoError(t, err)
		assert.Equal(t, chipIDs, again)
		assert.Equal(t, int64(3), h.renderer.calls.Load())
	})

	t.Run("PartialFailure", func(t *testing.T) {
		// an annotation whose source image is gone cannot be rendered,
		// but must not take the rest of the batch down with it
		orphan, err := database.AddAnnotations(h.db,
			[]string{"no-such-image"}, []database.BBox{{W: 10, H: 10}}, []float64{0}, nil, nil)
		require.NoError(t, err)

		mixed := append([]string{orphan[0]}, h.annotUUIDs...)
		ids, err := h.service.EnsureChips(mixed)
		require.NoError(t, err)
		assert.Nil(t, ids[0])
		for i := 1; i < len(ids); i++ {
			assert.NotNil(t, ids[i])
		}
	})
}

func TestEnsureFeatureSets(t *testing.T) {
	h := newHarness(t, 2)

	chipIDs, err := h.service.EnsureChips(h.annotUUIDs)
	require.NoError(t, err)
	flat := []int64{*chipIDs[0], *chipIDs[1]}

	featIDs, err := h.service.EnsureFeatureSets(flat)
	require.NoError(t, err)
	require.NotNil(t, featIDs[0])
	require.NotNil(t, featIDs[1])
	assert.Equal(t, int64(2), h.extractor.calls.Load())

	t.Run("SecondCallHitsCache", func(t *testing.T) {
		again, err := h.service.EnsureFeatureSets(flat)
		require.NoError(t, err)
		assert.Equal(t, featIDs, again)
		assert.Equal(t, int64(2), h.extractor.calls.Load())
	})

	t.Run("RecordedCounts", func(t *testing.T) {
		counts, err := database.GetFeatureCounts(h.db, []int64{*featIDs[0]})
		require.NoError(t, err)
		assert.Equal(t, int64(3), *counts[0])
	})
}

func TestAnnotationDescriptors(t *testing.T) {
	h := newHarness(t, 2)

	matrices, err := h.service.AnnotationDescriptors(h.annotUUIDs)
	require.NoError(t, err)
	require.Len(t, matrices, 2)
	for _, matrix := range matrices {
		require.Len(t, matrix, 3)
		assert.Len(t, matrix[0], 4)
	}
	assert.Equal(t, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}, matrices[0])

	t.Run("NilForUncomputableAnnotation", func(t *testing.T) {
		orphan, err := database.AddAnnotations(h.db,
			[]string{"no-such-image"}, []database.BBox{{W: 10, H: 10}}, []float64{0}, nil, nil)
		require.NoError(t, err)

		matrices, err := h.service.AnnotationDescriptors([]string{h.annotUUIDs[0], orphan[0]})
		require.NoError(t, err)
		assert.NotNil(t, matrices[0])
		assert.Nil(t, matrices[1])
	})
}

func TestSweepOrphans(t *testing.T) {
	h := newHarness(t, 2)

	_, err := h.service.AnnotationDescriptors(h.annotUUIDs)
	require.NoError(t, err)

	// a second service over the same store caches the same annotation's
	// chip under a different configuration
	other, err := NewArtifactService(h.db, h.service.Store, h.service.Reader,
		&fakeRenderer{}, &fakeExtractor{}, "chip(sz=300)", "feat(orb,n=250)")
	require.NoError(t, err)
	require.NotEqual(t, h.service.ChipConfigUID, other.ChipConfigUID)
	otherChips, err := other.EnsureChips(h.annotUUIDs[:1])
	require.NoError(t, err)
	require.NotNil(t, otherChips[0])

	imageUUIDs, err := database.GetAnnotationImageUUIDs(h.db, h.annotUUIDs[:1])
	require.NoError(t, err)
	require.NoError(t, database.DeleteImages(h.db, []string{*imageUUIDs[0]}))

	// sweeping top down lets one pass collapse the whole chain: the
	// orphaned annotation, then its chips, then the chip's feature set
	result, err := h.service.SweepOrphans(h.db)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Annotations: 1, Chips: 2, FeatureSets: 1}, result)

	again, err := h.service.SweepOrphans(h.db)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, again)

	t.Run("ChipFilesRemovedForEveryConfig", func(t *testing.T) {
		for _, svc := range []*ArtifactService{h.service, other} {
			path, err := svc.Store.FilePath(media.AssetTypeChip, svc.ChipFilename(h.annotUUIDs[0]))
			require.NoError(t, err)
			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		}
	})

	t.Run("SurvivorsUntouched", func(t *testing.T) {
		ids, err := h.service.EnsureChips(h.annotUUIDs[1:])
		require.NoError(t, err)
		assert.NotNil(t, ids[0])
	})
}
