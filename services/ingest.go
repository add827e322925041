package services

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/facette/natsort"

	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/media"
)

// ScanLibrary walks a directory tree, registers every raster image found and
// returns the resulting image uuids in natural filename order. Files that
// cannot be probed are skipped with a log entry and yield an empty uuid, the
// same contract as database.AddImages.
func ScanLibrary(db *sql.DB, reader *media.MetadataReader, dir string) ([]string, error) {
	var uris []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !media.IsRasterImage(path) {
			return nil
		}
		uris = append(uris, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan library '%s': %w", dir, err)
	}

	natsort.Sort(uris)
	log.Printf("ingest: found %d raster images under %s", len(uris), dir)
	return database.AddImages(db, reader, uris)
}
