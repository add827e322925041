package services

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/media"
)

func TestScanLibrary(t *testing.T) {
	libRoot := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for _, name := range []string{"site_b10.png", "site_b2.png", "site_a1.png"} {
		require.NoError(t, imaging.Save(img, filepath.Join(libRoot, name)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(libRoot, "notes.txt"), []byte("not an image"), 0644))

	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	reader := &media.MetadataReader{LibraryRoot: libRoot}

	uuids, err := ScanLibrary(db, reader, libRoot)
	require.NoError(t, err)
	require.Len(t, uuids, 3)
	for _, uuid := range uuids {
		assert.NotEmpty(t, uuid)
	}

	t.Run("NaturalOrder", func(t *testing.T) {
		uris, err := database.GetImageURIs(db, uuids)
		require.NoError(t, err)
		// numeric suffixes sort by value, so b2 precedes b10
		assert.Equal(t, filepath.Join(libRoot, "site_a1.png"), *uris[0])
		assert.Equal(t, filepath.Join(libRoot, "site_b2.png"), *uris[1])
		assert.Equal(t, filepath.Join(libRoot, "site_b10.png"), *uris[2])
	})

	t.Run("Rescan", func(t *testing.T) {
		again, err := ScanLibrary(db, reader, libRoot)
		require.NoError(t, err)
		assert.Equal(t, uuids, again)

		count, err := database.CountRows(db, "images")
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}
