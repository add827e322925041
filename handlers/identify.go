package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/camden-git/wildidbackend/config"
	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/matcher"
	"github.com/camden-git/wildidbackend/media"
	"github.com/camden-git/wildidbackend/services"
)

type IdentifyHandler struct {
	DB        *sql.DB
	Cfg       config.Config
	Artifacts *services.ArtifactService
	Store     *media.Store
}

const (
	defaultNeighborCount = 4
	defaultNormCount     = 1
)

// Identify matches one query annotation against a reference set. The
// reference set defaults to every other annotation in the repository; an
// index over it is loaded from the cache or built and persisted. Each query
// descriptor gets its k nearest reference descriptors plus k_norm extras for
// score normalization.
func (idh *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueryAnnotUUID     string   `json:"query_annot_uuid"`
		ReferenceAnnotUUID []string `json:"reference_annot_uuids"`
		K                  int      `json:"k"`
		KNorm              int      `json:"k_norm"`
		Checks             int      `json:"checks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.QueryAnnotUUID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: query_annot_uuid"})
		return
	}
	if req.K == 0 {
		req.K = defaultNeighborCount
	}
	if req.KNorm == 0 {
		req.KNorm = defaultNormCount
	}
	if req.Checks == 0 {
		req.Checks = idh.Cfg.QueryChecks
	}

	references := req.ReferenceAnnotUUID
	if len(references) == 0 {
		all, err := database.ValidAnnotationUUIDs(idh.DB)
		if err != nil {
			log.Printf("Error listing reference annotations: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to build reference set"})
			return
		}
		for _, uuid := range all {
			if uuid != req.QueryAnnotUUID {
				references = append(references, uuid)
			}
		}
	}

	idxCfg := matcher.Config{
		FeatureConfig: idh.Cfg.FeatureConfigString(),
		CacheDir:      idh.Store.Dir(media.AssetTypeIndex),
		NumTrees:      idh.Cfg.IndexNumTrees,
		MaxLeafSize:   idh.Cfg.IndexMaxLeafSize,
	}
	idx, err := matcher.LoadOrBuild(idxCfg, idh.Artifacts, references)
	if err != nil {
		if errors.Is(err, matcher.ErrEmptyReferenceSet) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Reference set contains no descriptors"})
		} else {
			log.Printf("Error building index for query %s: %v", req.QueryAnnotUUID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to build reference index"})
		}
		return
	}

	queryMatrices, err := idh.Artifacts.AnnotationDescriptors([]string{req.QueryAnnotUUID})
	if err != nil {
		log.Printf("Error computing query descriptors for %s: %v", req.QueryAnnotUUID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to compute query descriptors"})
		return
	}
	if queryMatrices[0] == nil || len(queryMatrices[0]) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "Query annotation has no usable descriptors"})
		return
	}

	result, err := idx.Query(queryMatrices[0], req.K, req.KNorm, req.Checks)
	if err != nil {
		var dimErr matcher.DimensionMismatchError
		switch {
		case errors.Is(err, matcher.ErrInvalidK):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.As(err, &dimErr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": dimErr.Error()})
		default:
			log.Printf("Error querying index for %s: %v", req.QueryAnnotUUID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to query reference index"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query_annot_uuid": req.QueryAnnotUUID,
		"reference_count":  idx.Count(),
		"neighbors":        result.Neighbors,
		"partial":          result.Partial,
	})
}
