package media

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// rasterExtensions lists the file extensions library scans will ingest. A
// decoder for each format is registered above so the metadata probe can parse
// everything the scanner admits.
var rasterExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsRasterImage reports whether the filename has an ingestible raster image
// extension.
func IsRasterImage(filename string) bool {
	return rasterExtensions[strings.ToLower(filepath.Ext(filename))]
}
