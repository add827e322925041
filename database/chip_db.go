package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Chip is a derived raster crop of an annotation under one cropping
// configuration. Rows are created lazily, never updated in place; a new
// configuration produces a logically distinct chip row.
type Chip struct {
	UID       int64  `json:"uid"`
	AnnotUUID string `json:"annot_uuid"`
	ConfigUID int64  `json:"config_uid"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// AddChip inserts a chip row for (annotation, config) with insert-or-ignore
// semantics and returns the row's uid. The UNIQUE(annot_uuid, config_uid)
// constraint makes the insert atomic at the storage layer, so two writers
// racing on the same key both end up with the single surviving row.
func AddChip(db Querier, annotUUID string, configUID int64, width, height int) (int64, error) {
	sqlStr, args, err := psql.Insert("chips").
		Columns("annot_uuid", "config_uid", "chip_width", "chip_height").
		Values(annotUUID, configUID, width, height).
		Suffix("ON CONFLICT(annot_uuid, config_uid) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for AddChip: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return 0, fmt.Errorf("failed to insert chip for %s: %w", annotUUID, err)
	}

	ids, err := GetAnnotationChipIDs(db, configUID, []string{annotUUID})
	if err != nil {
		return 0, err
	}
	if ids[0] == nil {
		return 0, fmt.Errorf("chip row for %s missing after insert", annotUUID)
	}
	return *ids[0], nil
}

// GetAnnotationChipIDs returns the chip uid of each annotation under the
// given configuration, nil where no chip has been computed yet.
func GetAnnotationChipIDs(db Querier, configUID int64, annotUUIDs []string) ([]*int64, error) {
	ids := make([]*int64, len(annotUUIDs))
	for i, annotUUID := range annotUUIDs {
		sqlStr, args, err := psql.Select("chip_uid").
			From("chips").
			Where(sq.Eq{"annot_uuid": annotUUID, "config_uid": configUID}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for GetAnnotationChipIDs: %w", err)
		}

		var id int64
		err = db.QueryRow(sqlStr, args...).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query chip of %s: %w", annotUUID, err)
		}
		ids[i] = &id
	}
	return ids, nil
}

// GetChipAnnotUUIDs returns the owning annotation of each chip uid.
func GetChipAnnotUUIDs(db Querier, chipIDs []int64) ([]*string, error) {
	ids := make([]interface{}, len(chipIDs))
	for i, id := range chipIDs {
		ids[i] = id
	}
	values, err := GetTableProperty(db, "chips", "annot_uuid", ids)
	if err != nil {
		return nil, err
	}
	return anyToStrings(values), nil
}

// GetChipSizes returns (width, height) pairs by chip uid.
func GetChipSizes(db Querier, chipIDs []int64) ([]*[2]int64, error) {
	ids := make([]interface{}, len(chipIDs))
	for i, id := range chipIDs {
		ids[i] = id
	}
	widths, err := GetTableProperty(db, "chips", "chip_width", ids)
	if err != nil {
		return nil, err
	}
	heights, err := GetTableProperty(db, "chips", "chip_height", ids)
	if err != nil {
		return nil, err
	}

	sizes := make([]*[2]int64, len(chipIDs))
	for i := range chipIDs {
		w, wok := asInt64(widths[i])
		h, hok := asInt64(heights[i])
		if wok && hok {
			sizes[i] = &[2]int64{w, h}
		}
	}
	return sizes, nil
}

// DeleteChips removes chip rows by uid. Feature sets derived from a deleted
// chip are left behind; see services.SweepOrphans.
func DeleteChips(db Querier, chipIDs []int64) error {
	sqlStr, args, err := psql.Delete("chips").Where(sq.Eq{"chip_uid": chipIDs}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for DeleteChips: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete chips: %w", err)
	}
	return nil
}
