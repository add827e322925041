package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// FeatureSet is the keypoints-plus-descriptors artifact extracted from one
// chip under one feature configuration. Keypoint and descriptor arrays are
// stored as packed little-endian float32 BLOBs (see media.EncodeKeypoints
// and media.EncodeDescriptors).
type FeatureSet struct {
	UID           int64
	ChipUID       int64
	ConfigUID     int64
	NumFeatures   int
	DescriptorDim int
	KeypointData  []byte
	DescData      []byte
}

// AddFeatureSet inserts a feature-set row for (chip, config) with
// insert-or-ignore semantics and returns the row's uid.
func AddFeatureSet(db Querier, chipUID, configUID int64, numFeatures, descriptorDim int,
	keypointData, descriptorData []byte) (int64, error) {
	sqlStr, args, err := psql.Insert("feature_sets").
		Columns("chip_uid", "config_uid", "num_features", "descriptor_dim",
			"keypoint_data", "descriptor_data").
		Values(chipUID, configUID, numFeatures, descriptorDim, keypointData, descriptorData).
		Suffix("ON CONFLICT(chip_uid, config_uid) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for AddFeatureSet: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return 0, fmt.Errorf("failed to insert feature set for chip %d: %w", chipUID, err)
	}

	ids, err := GetChipFeatureIDs(db, configUID, []int64{chipUID})
	if err != nil {
		return 0, err
	}
	if ids[0] == nil {
		return 0, fmt.Errorf("feature set row for chip %d missing after insert", chipUID)
	}
	return *ids[0], nil
}

// GetChipFeatureIDs returns the feature-set uid of each chip under the given
// configuration, nil where no feature set has been computed yet.
func GetChipFeatureIDs(db Querier, configUID int64, chipIDs []int64) ([]*int64, error) {
	ids := make([]*int64, len(chipIDs))
	for i, chipUID := range chipIDs {
		sqlStr, args, err := psql.Select("feature_uid").
			From("feature_sets").
			Where(sq.Eq{"chip_uid": chipUID, "config_uid": configUID}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for GetChipFeatureIDs: %w", err)
		}

		var id int64
		err = db.QueryRow(sqlStr, args...).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query feature set of chip %d: %w", chipUID, err)
		}
		ids[i] = &id
	}
	return ids, nil
}

// GetFeatureSets loads full feature-set rows by uid, nil entries for unknown
// ids.
func GetFeatureSets(db Querier, featureIDs []int64) ([]*FeatureSet, error) {
	out := make([]*FeatureSet, len(featureIDs))
	for i, featureUID := range featureIDs {
		sqlStr, args, err := psql.Select("feature_uid", "chip_uid", "config_uid",
			"num_features", "descriptor_dim", "keypoint_data", "descriptor_data").
			From("feature_sets").
			Where(sq.Eq{"feature_uid": featureUID}).
			Limit(1).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for GetFeatureSets: %w", err)
		}

		var fs FeatureSet
		err = db.QueryRow(sqlStr, args...).Scan(&fs.UID, &fs.ChipUID, &fs.ConfigUID,
			&fs.NumFeatures, &fs.DescriptorDim, &fs.KeypointData, &fs.DescData)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query feature set %d: %w", featureUID, err)
		}
		out[i] = &fs
	}
	return out, nil
}

// GetFeatureCounts returns the number of features in each feature set.
func GetFeatureCounts(db Querier, featureIDs []int64) ([]*int64, error) {
	ids := make([]interface{}, len(featureIDs))
	for i, id := range featureIDs {
		ids[i] = id
	}
	values, err := GetTableProperty(db, "feature_sets", "num_features", ids)
	if err != nil {
		return nil, err
	}
	return anyToInt64s(values), nil
}

// DeleteFeatureSets removes feature-set rows by uid.
func DeleteFeatureSets(db Querier, featureIDs []int64) error {
	sqlStr, args, err := psql.Delete("feature_sets").Where(sq.Eq{"feature_uid": featureIDs}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for DeleteFeatureSets: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete feature sets: %w", err)
	}
	return nil
}
