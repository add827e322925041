package handlers

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/camden-git/wildidbackend/services"
)

type MaintenanceHandler struct {
	DB        *sql.DB
	Artifacts *services.ArtifactService
}

// Sweep garbage-collects rows orphaned by non-cascading deletes.
func (mh *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := mh.Artifacts.SweepOrphans(mh.DB)
	if err != nil {
		log.Printf("Error sweeping orphans: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to sweep orphans"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
