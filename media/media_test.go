package media

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/wildidbackend/database"
)

func TestStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	t.Run("CreatesAssetDirs", func(t *testing.T) {
		for _, assetType := range []AssetType{AssetTypeChip, AssetTypeIndex} {
			info, err := os.Stat(store.Dir(assetType))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}
	})

	t.Run("FilePathStaysInside", func(t *testing.T) {
		path, err := store.FilePath(AssetTypeChip, "abc_1.png")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(store.Dir(AssetTypeChip), "abc_1.png"), path)
	})

	t.Run("RejectsTraversal", func(t *testing.T) {
		_, err := store.FilePath(AssetTypeChip, "../escape.png")
		assert.Error(t, err)
	})

	t.Run("RejectsUnknownAssetType", func(t *testing.T) {
		_, err := store.FilePath(AssetType("nope"), "abc.png")
		assert.Error(t, err)
	})

	t.Run("RemoveMissingIsNoop", func(t *testing.T) {
		assert.NoError(t, store.Remove(AssetTypeChip, "never_written.png"))
	})
}

func writeTestImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	path := filepath.Join(t.TempDir(), "source.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestCropRenderer(t *testing.T) {
	imagePath := writeTestImage(t, 400, 300)

	t.Run("CropWithinBounds", func(t *testing.T) {
		r := &CropRenderer{TargetSize: 0}
		chip, err := r.RenderChip(imagePath, database.BBox{X: 10, Y: 20, W: 100, H: 50}, 0)
		require.NoError(t, err)
		assert.Equal(t, 100, chip.Bounds().Dx())
		assert.Equal(t, 50, chip.Bounds().Dy())
	})

	t.Run("ClampsOverhangingBox", func(t *testing.T) {
		r := &CropRenderer{TargetSize: 0}
		chip, err := r.RenderChip(imagePath, database.BBox{X: 350, Y: 250, W: 100, H: 100}, 0)
		require.NoError(t, err)
		assert.Equal(t, 50, chip.Bounds().Dx())
		assert.Equal(t, 50, chip.Bounds().Dy())
	})

	t.Run("RejectsBoxOutsideImage", func(t *testing.T) {
		r := &CropRenderer{TargetSize: 0}
		_, err := r.RenderChip(imagePath, database.BBox{X: 1000, Y: 1000, W: 10, H: 10}, 0)
		assert.Error(t, err)
	})

	t.Run("ScalesDownToTargetArea", func(t *testing.T) {
		r := &CropRenderer{TargetSize: 50}
		chip, err := r.RenderChip(imagePath, database.BBox{X: 0, Y: 0, W: 200, H: 200}, 0)
		require.NoError(t, err)
		assert.Equal(t, 50, chip.Bounds().Dx())
		assert.Equal(t, 50, chip.Bounds().Dy())
	})

	t.Run("NeverScalesUp", func(t *testing.T) {
		r := &CropRenderer{TargetSize: 500}
		chip, err := r.RenderChip(imagePath, database.BBox{X: 0, Y: 0, W: 40, H: 40}, 0)
		require.NoError(t, err)
		assert.Equal(t, 40, chip.Bounds().Dx())
	})

	t.Run("RotationKeepsContent", func(t *testing.T) {
		r := &CropRenderer{TargetSize: 0}
		chip, err := r.RenderChip(imagePath, database.BBox{X: 50, Y: 50, W: 100, H: 100}, 0.5)
		require.NoError(t, err)
		// rotation expands the canvas to hold the turned square
		assert.GreaterOrEqual(t, chip.Bounds().Dx(), 100)
	})
}

func TestMetadataReader(t *testing.T) {
	libRoot := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 60, 40))
	require.NoError(t, imaging.Save(img, filepath.Join(libRoot, "plain.png")))

	reader := &MetadataReader{LibraryRoot: libRoot}

	t.Run("ResolvePath", func(t *testing.T) {
		assert.Equal(t, filepath.Join(libRoot, "plain.png"), reader.ResolvePath("plain.png"))
		abs := filepath.Join(libRoot, "plain.png")
		assert.Equal(t, abs, reader.ResolvePath(abs))
	})

	t.Run("DimensionsWithoutExif", func(t *testing.T) {
		meta, err := reader.ReadMetadata("plain.png")
		require.NoError(t, err)
		assert.Equal(t, 60, meta.Width)
		assert.Equal(t, 40, meta.Height)
		assert.Nil(t, meta.TimePosix)
		assert.Nil(t, meta.GPSLat)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := reader.ReadMetadata("no_such.png")
		assert.Error(t, err)
	})

	// every extension the scanner admits must have a registered decoder
	t.Run("DecodesEveryScannableFormat", func(t *testing.T) {
		for _, name := range []string{"fmt.bmp", "fmt.tif", "fmt.gif", "fmt.jpg"} {
			require.NoError(t, imaging.Save(img, filepath.Join(libRoot, name)))
			meta, err := reader.ReadMetadata(name)
			require.NoError(t, err, name)
			assert.Equal(t, 60, meta.Width, name)
			assert.Equal(t, 40, meta.Height, name)
		}
	})
}

func TestIsRasterImage(t *testing.T) {
	assert.True(t, IsRasterImage("a/b/photo.JPG"))
	assert.True(t, IsRasterImage("photo.png"))
	assert.True(t, IsRasterImage("scan.bmp"))
	assert.True(t, IsRasterImage("scan.TIFF"))
	assert.False(t, IsRasterImage("notes.txt"))
	assert.False(t, IsRasterImage("archive.zip"))
}
