package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/wildidbackend/config"
	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/media"
	"github.com/camden-git/wildidbackend/services"
)

type ImageHandler struct {
	DB     *sql.DB
	Cfg    config.Config
	Reader *media.MetadataReader
}

// AddImages registers a batch of source images by uri. Entries that cannot
// be probed come back as empty uuids rather than failing the batch.
func (ih *ImageHandler) AddImages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.URIs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: uris"})
		return
	}

	uuids, err := database.AddImages(ih.DB, ih.Reader, req.URIs)
	if err != nil {
		log.Printf("Error adding images: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to add images"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"image_uuids": uuids})
}

// ScanLibrary walks the configured library root and registers every raster
// image found.
func (ih *ImageHandler) ScanLibrary(w http.ResponseWriter, r *http.Request) {
	uuids, err := services.ScanLibrary(ih.DB, ih.Reader, ih.Cfg.LibraryRoot)
	if err != nil {
		log.Printf("Error scanning library: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to scan library"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"image_uuids": uuids})
}

func (ih *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	uuids, err := database.ValidImageUUIDs(ih.DB)
	if err != nil {
		log.Printf("Error listing images: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve images"})
		return
	}
	if uuids == nil {
		uuids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"image_uuids": uuids})
}

func (ih *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	imageUUID := chi.URLParam(r, "image_uuid")

	img, err := database.GetImageInfo(ih.DB, imageUUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Image not found"})
		} else {
			log.Printf("Error getting image %s: %v", imageUUID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve image"})
		}
		return
	}

	annots, err := database.GetAnnotationsInImages(ih.DB, []string{imageUUID})
	if err != nil {
		log.Printf("Error fetching annotations for image %s: %v", imageUUID, err)
		writeJSON(w, http.StatusOK, img)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"image":       img,
		"annot_uuids": annots[0],
	})
}

// DeleteImages removes image rows. Annotations referencing them survive
// until the next orphan sweep.
func (ih *ImageHandler) DeleteImages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageUUIDs []string `json:"image_uuids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.ImageUUIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: image_uuids"})
		return
	}

	if err := database.DeleteImages(ih.DB, req.ImageUUIDs); err != nil {
		log.Printf("Error deleting images: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete images"})
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
