package media

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/camden-git/wildidbackend/database"
)

// MetadataReader probes image files for dimensions, capture time and GPS
// coordinates. It implements database.MetadataProvider. Relative locators
// are resolved against LibraryRoot.
type MetadataReader struct {
	LibraryRoot string
}

// ResolvePath turns a stored locator into an absolute filesystem path.
func (r *MetadataReader) ResolvePath(uri string) string {
	if filepath.IsAbs(uri) {
		return uri
	}
	return filepath.Join(r.LibraryRoot, filepath.FromSlash(uri))
}

// ReadMetadata decodes image dimensions and, when present, EXIF capture time
// and GPS position. Dimensions are mandatory: a file whose config cannot be
// decoded is rejected. Missing EXIF data is not an error.
func (r *MetadataReader) ReadMetadata(uri string) (database.ImageMeta, error) {
	path := r.ResolvePath(uri)
	file, err := os.Open(path)
	if err != nil {
		return database.ImageMeta{}, fmt.Errorf("metadata: failed to open file %s: %w", path, err)
	}
	defer file.Close()

	config, format, err := image.DecodeConfig(file)
	if err != nil {
		return database.ImageMeta{}, fmt.Errorf("metadata: failed to decode config of %s: %w", path, err)
	}
	meta := database.ImageMeta{Width: config.Width, Height: config.Height}

	if _, err := file.Seek(0, 0); err != nil {
		return database.ImageMeta{}, fmt.Errorf("metadata: failed to seek file %s: %w", path, err)
	}

	exifData, err := exif.Decode(file)
	if err != nil {
		// not necessarily a problem, file might just lack EXIF data
		log.Printf("metadata: no EXIF data for %s (format: %s): %v", path, format, err)
		return meta, nil
	}

	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TimePosix = &ts
	}
	if lat, lon, err := exifData.LatLong(); err == nil {
		meta.GPSLat = &lat
		meta.GPSLon = &lon
	}

	return meta, nil
}
