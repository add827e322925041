package services

import (
	"database/sql"
	"log"

	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/media"
)

// SweepResult reports how many orphaned rows each pass removed.
type SweepResult struct {
	Annotations int `json:"annotations"`
	Chips       int `json:"chips"`
	FeatureSets int `json:"feature_sets"`
}

// SweepOrphans garbage-collects rows left behind by non-cascading deletes,
// walking the dependency chain top down so one pass reaches a fixed point.
// Cached chip files belonging to removed chips are deleted as well; a failed
// file removal is logged but does not abort the sweep.
func (s *ArtifactService) SweepOrphans(db *sql.DB) (SweepResult, error) {
	var result SweepResult

	annotUUIDs, err := database.OrphanAnnotationUUIDs(db)
	if err != nil {
		return result, err
	}
	if len(annotUUIDs) > 0 {
		if err := database.DeleteAnnotations(db, annotUUIDs); err != nil {
			return result, err
		}
		result.Annotations = len(annotUUIDs)
	}

	orphanChips, err := database.OrphanChips(db)
	if err != nil {
		return result, err
	}
	if len(orphanChips) > 0 {
		chipIDs := make([]int64, len(orphanChips))
		for i, o := range orphanChips {
			chipIDs[i] = o.UID
		}
		if err := database.DeleteChips(db, chipIDs); err != nil {
			return result, err
		}
		for _, o := range orphanChips {
			if err := s.Store.Remove(media.AssetTypeChip, chipFilename(o.AnnotUUID, o.ConfigUID)); err != nil {
				log.Printf("sweep: failed to remove chip file for %s: %v", o.AnnotUUID, err)
			}
		}
		result.Chips = len(orphanChips)
	}

	featureIDs, err := database.OrphanFeatureIDs(db)
	if err != nil {
		return result, err
	}
	if len(featureIDs) > 0 {
		if err := database.DeleteFeatureSets(db, featureIDs); err != nil {
			return result, err
		}
		result.FeatureSets = len(featureIDs)
	}

	log.Printf("sweep: removed %d annotations, %d chips, %d feature sets",
		result.Annotations, result.Chips, result.FeatureSets)
	return result, nil
}
