package database

import (
	"database/sql"
	"fmt"
	"log"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/wildidbackend/ident"
)

// Image is a source photograph row. Identity is content-derived at ingestion
// and stable for the image's lifetime.
type Image struct {
	UUID      string   `json:"uuid"`
	URI       string   `json:"uri"`
	Width     *int64   `json:"width,omitempty"`
	Height    *int64   `json:"height,omitempty"`
	TimePosix *int64   `json:"time_posix,omitempty"`
	GPSLat    *float64 `json:"gps_lat,omitempty"`
	GPSLon    *float64 `json:"gps_lon,omitempty"`
}

// ImageMeta holds what the metadata collaborator could recover from a
// locator. Width and height are required; the rest is optional.
type ImageMeta struct {
	Width     int
	Height    int
	TimePosix *int64
	GPSLat    *float64
	GPSLon    *float64
}

// MetadataProvider probes an image locator for dimensions, capture time and
// GPS coordinates.
type MetadataProvider interface {
	ReadMetadata(uri string) (ImageMeta, error)
}

// AddImages ingests a batch of image locators. Each locator is probed for
// metadata, given a content-derived uuid and upserted with insert-or-ignore
// semantics, so re-adding an image yields its existing id. The returned slice
// matches the input order; a locator whose metadata probe failed yields an
// empty string and no row.
func AddImages(db Querier, mp MetadataProvider, uris []string) ([]string, error) {
	uuids := make([]string, len(uris))
	for i, uri := range uris {
		meta, err := mp.ReadMetadata(uri)
		if err != nil {
			log.Printf("database: skipping image %s: %v", uri, err)
			continue
		}

		var timePosix int64
		if meta.TimePosix != nil {
			timePosix = *meta.TimePosix
		}
		imageUUID := ident.ImageUUID(uri, meta.Width, meta.Height, timePosix)

		sqlStr, args, err := psql.Insert("images").
			Columns("image_uuid", "image_uri", "image_width", "image_height",
				"image_time_posix", "image_gps_lat", "image_gps_lon").
			Values(imageUUID, uri, meta.Width, meta.Height, meta.TimePosix, meta.GPSLat, meta.GPSLon).
			Suffix("ON CONFLICT(image_uuid) DO NOTHING").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for AddImages: %w", err)
		}
		if _, err := db.Exec(sqlStr, args...); err != nil {
			return nil, fmt.Errorf("failed to insert image %s: %w", uri, err)
		}
		uuids[i] = imageUUID
	}
	return uuids, nil
}

// GetImageInfo retrieves a full image row by uuid.
func GetImageInfo(db Querier, imageUUID string) (Image, error) {
	var info Image
	sqlStr, args, err := psql.Select("image_uuid", "image_uri", "image_width", "image_height",
		"image_time_posix", "image_gps_lat", "image_gps_lon").
		From("images").
		Where(sq.Eq{"image_uuid": imageUUID}).
		Limit(1).
		ToSql()
	if err != nil {
		return Image{}, fmt.Errorf("failed to build SQL for GetImageInfo: %w", err)
	}

	err = db.QueryRow(sqlStr, args...).Scan(&info.UUID, &info.URI, &info.Width, &info.Height,
		&info.TimePosix, &info.GPSLat, &info.GPSLon)
	if err != nil {
		if err == sql.ErrNoRows {
			return Image{}, sql.ErrNoRows
		}
		return Image{}, fmt.Errorf("failed to query image info for %s: %w", imageUUID, err)
	}
	return info, nil
}

// GetImageURIs returns storage locators by image uuid, nil for unknown ids.
func GetImageURIs(db Querier, imageUUIDs []string) ([]*string, error) {
	values, err := GetTableProperty(db, "images", "image_uri", toAnySlice(imageUUIDs))
	if err != nil {
		return nil, err
	}
	return anyToStrings(values), nil
}

// GetImageSizes returns (width, height) pairs by image uuid. Entries for
// unknown ids are nil.
func GetImageSizes(db Querier, imageUUIDs []string) ([]*[2]int64, error) {
	ids := toAnySlice(imageUUIDs)
	widths, err := GetTableProperty(db, "images", "image_width", ids)
	if err != nil {
		return nil, err
	}
	heights, err := GetTableProperty(db, "images", "image_height", ids)
	if err != nil {
		return nil, err
	}

	sizes := make([]*[2]int64, len(imageUUIDs))
	for i := range imageUUIDs {
		w, wok := asInt64(widths[i])
		h, hok := asInt64(heights[i])
		if wok && hok {
			sizes[i] = &[2]int64{w, h}
		}
	}
	return sizes, nil
}

// GetImageUnixtimes returns capture timestamps by image uuid, nil when the
// image carried no time metadata.
func GetImageUnixtimes(db Querier, imageUUIDs []string) ([]*int64, error) {
	values, err := GetTableProperty(db, "images", "image_time_posix", toAnySlice(imageUUIDs))
	if err != nil {
		return nil, err
	}
	return anyToInt64s(values), nil
}

// GetImageGPS returns (lat, lon) pairs by image uuid, nil when no GPS data
// was recorded.
func GetImageGPS(db Querier, imageUUIDs []string) ([]*[2]float64, error) {
	ids := toAnySlice(imageUUIDs)
	lats, err := GetTableProperty(db, "images", "image_gps_lat", ids)
	if err != nil {
		return nil, err
	}
	lons, err := GetTableProperty(db, "images", "image_gps_lon", ids)
	if err != nil {
		return nil, err
	}

	coords := make([]*[2]float64, len(imageUUIDs))
	for i := range imageUUIDs {
		lat, latok := asFloat64(lats[i])
		lon, lonok := asFloat64(lons[i])
		if latok && lonok {
			coords[i] = &[2]float64{lat, lon}
		}
	}
	return coords, nil
}

// ValidImageUUIDs lists every image id in the store.
func ValidImageUUIDs(db Querier) ([]string, error) {
	sqlStr, _, err := psql.Select("image_uuid").From("images").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ValidImageUUIDs: %w", err)
	}
	return queryStrings(db, sqlStr)
}

// DeleteImages removes image rows by uuid. The delete does not cascade:
// annotations, chips and feature sets referencing a deleted image are left in
// place and must be reclaimed by the caller (see services.SweepOrphans).
func DeleteImages(db Querier, imageUUIDs []string) error {
	sqlStr, args, err := psql.Delete("images").Where(sq.Eq{"image_uuid": imageUUIDs}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for DeleteImages: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete images: %w", err)
	}
	return nil
}

func queryStrings(db Querier, sqlStr string, args ...interface{}) ([]string, error) {
	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func toAnySlice(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func asInt64(v interface{}) (int64, bool) {
	n, ok := v.(int64)
	return n, ok
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func anyToStrings(values []interface{}) []*string {
	out := make([]*string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = &s
		}
	}
	return out
}

func anyToInt64s(values []interface{}) []*int64 {
	out := make([]*int64, len(values))
	for i, v := range values {
		if n, ok := asInt64(v); ok {
			out[i] = &n
		}
	}
	return out
}
