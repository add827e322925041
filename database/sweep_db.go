package database

import (
	"fmt"
)

// Deletes never cascade, so rows referencing deleted parents linger until
// collected. These queries enumerate them.

// OrphanAnnotationUUIDs returns annotations whose source image no longer
// exists.
func OrphanAnnotationUUIDs(db Querier) ([]string, error) {
	rows, err := db.Query(`SELECT annot_uuid FROM annotations
		WHERE image_uuid NOT IN (SELECT image_uuid FROM images)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan annotations: %w", err)
	}
	defer rows.Close()

	var uuids []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("failed to scan orphan annotation: %w", err)
		}
		uuids = append(uuids, uuid)
	}
	return uuids, rows.Err()
}

// OrphanChip identifies an orphaned chip row. The former owner uuid and the
// config uid are carried along so callers can also remove the cached file,
// whichever configuration produced it.
type OrphanChip struct {
	UID       int64
	AnnotUUID string
	ConfigUID int64
}

// OrphanChips returns chips whose annotation no longer exists.
func OrphanChips(db Querier) ([]OrphanChip, error) {
	rows, err := db.Query(`SELECT chip_uid, annot_uuid, config_uid FROM chips
		WHERE annot_uuid NOT IN (SELECT annot_uuid FROM annotations)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan chips: %w", err)
	}
	defer rows.Close()

	var orphans []OrphanChip
	for rows.Next() {
		var o OrphanChip
		if err := rows.Scan(&o.UID, &o.AnnotUUID, &o.ConfigUID); err != nil {
			return nil, fmt.Errorf("failed to scan orphan chip: %w", err)
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

// OrphanFeatureIDs returns feature sets whose chip no longer exists.
func OrphanFeatureIDs(db Querier) ([]int64, error) {
	rows, err := db.Query(`SELECT feature_uid FROM feature_sets
		WHERE chip_uid NOT IN (SELECT chip_uid FROM chips)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan feature sets: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan orphan feature set: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
