package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/workers"
)

type AnnotationHandler struct {
	DB          *sql.DB
	Precomputer *workers.Precomputer
}

type annotationRequest struct {
	ImageUUID string        `json:"image_uuid"`
	BBox      database.BBox `json:"bbox"`
	Theta     float64       `json:"theta"`
	Viewpoint *string       `json:"viewpoint"`
	Name      *string       `json:"name"`
}

// AddAnnotations upserts a batch of oriented regions and queues their
// derived artifacts for background computation.
func (ah *AnnotationHandler) AddAnnotations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Annotations []annotationRequest `json:"annotations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.Annotations) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: annotations"})
		return
	}

	n := len(req.Annotations)
	imageUUIDs := make([]string, n)
	bboxes := make([]database.BBox, n)
	thetas := make([]float64, n)
	viewpoints := make([]string, n)
	names := make([]string, n)
	hasName := false
	for i, a := range req.Annotations {
		imageUUIDs[i] = a.ImageUUID
		bboxes[i] = a.BBox
		thetas[i] = a.Theta
		if a.Viewpoint != nil {
			viewpoints[i] = *a.Viewpoint
		} else {
			viewpoints[i] = database.UnknownViewpoint
		}
		if a.Name != nil {
			names[i] = *a.Name
			hasName = true
		} else {
			names[i] = database.UnknownNameText
		}
	}

	var nameIDs []int64
	if hasName {
		var err error
		nameIDs, err = database.AddNames(ah.DB, names)
		if err != nil {
			log.Printf("Error resolving names for annotations: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to resolve names"})
			return
		}
	}

	annotUUIDs, err := database.AddAnnotations(ah.DB, imageUUIDs, bboxes, thetas, viewpoints, nameIDs)
	if err != nil {
		if errors.Is(err, database.ErrInvalidArity) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		} else {
			log.Printf("Error adding annotations: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to add annotations"})
		}
		return
	}

	if ah.Precomputer != nil {
		for _, uuid := range annotUUIDs {
			ah.Precomputer.QueueJob(workers.PrecomputeJob{AnnotUUID: uuid, TaskType: workers.TaskFeatures})
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"annot_uuids": annotUUIDs})
}

func (ah *AnnotationHandler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	uuids, err := database.ValidAnnotationUUIDs(ah.DB)
	if err != nil {
		log.Printf("Error listing annotations: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve annotations"})
		return
	}
	if uuids == nil {
		uuids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"annot_uuids": uuids})
}

func (ah *AnnotationHandler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	annotUUID := chi.URLParam(r, "annot_uuid")

	annot, err := database.GetAnnotationInfo(ah.DB, annotUUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Annotation not found"})
		} else {
			log.Printf("Error getting annotation %s: %v", annotUUID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve annotation"})
		}
		return
	}

	nameTexts, err := database.GetNameTexts(ah.DB, []int64{annot.NameID})
	if err != nil {
		log.Printf("Error fetching name for annotation %s: %v", annotUUID, err)
		writeJSON(w, http.StatusOK, annot)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"annotation": annot,
		"name":       nameTexts[0],
	})
}

// UpdateAnnotation edits the mutable fields of one annotation. Geometry is
// part of the annotation's identity and cannot be edited in place; submit a
// new annotation instead.
func (ah *AnnotationHandler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	annotUUID := chi.URLParam(r, "annot_uuid")

	var req struct {
		Viewpoint *string `json:"viewpoint"`
		Name      *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Viewpoint == nil && req.Name == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Nothing to update"})
		return
	}

	if _, err := database.GetAnnotationInfo(ah.DB, annotUUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Annotation not found"})
		} else {
			log.Printf("Error checking annotation %s: %v", annotUUID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to verify annotation"})
		}
		return
	}

	if req.Viewpoint != nil {
		if err := database.SetAnnotationViewpoints(ah.DB, []string{annotUUID}, []string{*req.Viewpoint}); err != nil {
			log.Printf("Error updating viewpoint for %s: %v", annotUUID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update viewpoint"})
			return
		}
	}
	if req.Name != nil {
		if err := database.SetAnnotationNames(ah.DB, []string{annotUUID}, []string{*req.Name}); err != nil {
			log.Printf("Error updating name for %s: %v", annotUUID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update name"})
			return
		}
	}

	annot, err := database.GetAnnotationInfo(ah.DB, annotUUID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Annotation updated successfully"})
		return
	}
	writeJSON(w, http.StatusOK, annot)
}

func (ah *AnnotationHandler) DeleteAnnotations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnnotUUIDs []string `json:"annot_uuids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.AnnotUUIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: annot_uuids"})
		return
	}

	if err := database.DeleteAnnotations(ah.DB, req.AnnotUUIDs); err != nil {
		log.Printf("Error deleting annotations: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete annotations"})
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
