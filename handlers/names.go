package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/wildidbackend/database"
)

type NameHandler struct {
	DB *sql.DB
}

// AddNames registers subject names, returning existing ids for names already
// known.
func (nh *NameHandler) AddNames(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.Names) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: names"})
		return
	}
	for _, name := range req.Names {
		if strings.TrimSpace(name) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Names must be non-empty"})
			return
		}
	}

	nameIDs, err := database.AddNames(nh.DB, req.Names)
	if err != nil {
		log.Printf("Error adding names: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to add names"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"name_ids": nameIDs})
}

func (nh *NameHandler) ListNames(w http.ResponseWriter, r *http.Request) {
	nameIDs, err := database.ValidNameIDs(nh.DB)
	if err != nil {
		log.Printf("Error listing names: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve names"})
		return
	}

	texts, err := database.GetNameTexts(nh.DB, nameIDs)
	if err != nil {
		log.Printf("Error fetching name texts: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve names"})
		return
	}

	names := make([]map[string]interface{}, 0, len(nameIDs))
	for i, id := range nameIDs {
		names = append(names, map[string]interface{}{"id": id, "text": texts[i]})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"names": names})
}

// GetName resolves a name text to its id and the annotations labeled with it.
func (nh *NameHandler) GetName(w http.ResponseWriter, r *http.Request) {
	nameText := chi.URLParam(r, "name_text")

	nameID, err := database.GetNameID(nh.DB, nameText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Name not found"})
		} else {
			log.Printf("Error getting name '%s': %v", nameText, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve name"})
		}
		return
	}

	annotUUIDs, err := database.GetNameAnnotationUUIDs(nh.DB, nameID)
	if err != nil {
		log.Printf("Error fetching annotations for name %d: %v", nameID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve annotations"})
		return
	}
	if annotUUIDs == nil {
		annotUUIDs = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          nameID,
		"text":        nameText,
		"annot_uuids": annotUUIDs,
	})
}
