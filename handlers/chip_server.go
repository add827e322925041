package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/wildidbackend/media"
)

// ChipServer serves rendered chip rasters out of the artifact cache, e.g.
// GET /api/chips/<annot_uuid>_<config_uid>.png. Chips are immutable once
// rendered, so aggressive client caching is safe.
func ChipServer(store *media.Store) http.HandlerFunc {
	log.Printf("Serving chips from directory: %s", store.Dir(media.AssetTypeChip))

	return func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		if filename == "" || strings.Contains(filename, "..") {
			http.Error(w, "Invalid chip path", http.StatusBadRequest)
			return
		}

		chipPath, err := store.FilePath(media.AssetTypeChip, filename)
		if err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			log.Printf("SECURITY: Attempted chip access outside cache directory: Request='%s'", r.URL.Path)
			return
		}

		if _, err := os.Stat(chipPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Printf("Error stating chip file %s: %v", chipPath, err)
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, chipPath)
	}
}
