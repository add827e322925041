package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/wildidbackend/ident"
)

// BBox is an axis-aligned bounding box in image pixel space. Together with a
// rotation angle it defines an oriented annotation region. The box is
// expected to lie within image bounds; that is a caller responsibility, not a
// storage constraint.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Annotation is an oriented region of interest within one image, denoting a
// single subject. Its uuid is a pure function of (image uuid, bbox, theta).
type Annotation struct {
	UUID      string  `json:"uuid"`
	ImageUUID string  `json:"image_uuid"`
	NameID    int64   `json:"name_id"`
	BBox      BBox    `json:"bbox"`
	Theta     float64 `json:"theta"`
	Viewpoint string  `json:"viewpoint"`
}

// AddAnnotations upserts a batch of oriented regions. Identities come from
// the content hash of each region's geometry, so re-submitting the same
// region is idempotent. Insert-or-replace is used rather than
// insert-or-ignore because name and viewpoint edits on an existing region
// are allowed. viewpoints and nameIDs may be nil, defaulting to the unknown
// markers; all non-nil slices must match len(imageUUIDs) or ErrInvalidArity
// is returned before any row is written.
func AddAnnotations(db Querier, imageUUIDs []string, bboxes []BBox, thetas []float64,
	viewpoints []string, nameIDs []int64) ([]string, error) {
	n := len(imageUUIDs)
	if len(bboxes) != n || len(thetas) != n {
		return nil, fmt.Errorf("%w: %d images, %d bboxes, %d thetas",
			ErrInvalidArity, n, len(bboxes), len(thetas))
	}
	if viewpoints == nil {
		viewpoints = make([]string, n)
		for i := range viewpoints {
			viewpoints[i] = UnknownViewpoint
		}
	} else if len(viewpoints) != n {
		return nil, fmt.Errorf("%w: %d images, %d viewpoints", ErrInvalidArity, n, len(viewpoints))
	}
	if nameIDs == nil {
		nameIDs = make([]int64, n)
		for i := range nameIDs {
			nameIDs[i] = UnknownNameID
		}
	} else if len(nameIDs) != n {
		return nil, fmt.Errorf("%w: %d images, %d name ids", ErrInvalidArity, n, len(nameIDs))
	}

	annotUUIDs := make([]string, n)
	for i := 0; i < n; i++ {
		bbox := bboxes[i]
		annotUUIDs[i] = ident.AnnotationUUID(imageUUIDs[i], bbox.X, bbox.Y, bbox.W, bbox.H, thetas[i])

		sqlStr, args, err := psql.Insert("annotations").
			Columns("annot_uuid", "image_uuid", "name_uid",
				"annot_xtl", "annot_ytl", "annot_width", "annot_height",
				"annot_theta", "annot_viewpoint").
			Values(annotUUIDs[i], imageUUIDs[i], nameIDs[i],
				bbox.X, bbox.Y, bbox.W, bbox.H, thetas[i], viewpoints[i]).
			Suffix("ON CONFLICT(annot_uuid) DO UPDATE SET").
			Suffix("name_uid = excluded.name_uid,").
			Suffix("annot_viewpoint = excluded.annot_viewpoint").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for AddAnnotations: %w", err)
		}
		if _, err := db.Exec(sqlStr, args...); err != nil {
			return nil, fmt.Errorf("failed to insert annotation %s: %w", annotUUIDs[i], err)
		}
	}
	return annotUUIDs, nil
}

// GetAnnotationInfo retrieves a full annotation row by uuid.
func GetAnnotationInfo(db Querier, annotUUID string) (Annotation, error) {
	var a Annotation
	sqlStr, args, err := psql.Select("annot_uuid", "image_uuid", "name_uid",
		"annot_xtl", "annot_ytl", "annot_width", "annot_height",
		"annot_theta", "annot_viewpoint").
		From("annotations").
		Where(sq.Eq{"annot_uuid": annotUUID}).
		Limit(1).
		ToSql()
	if err != nil {
		return Annotation{}, fmt.Errorf("failed to build SQL for GetAnnotationInfo: %w", err)
	}

	err = db.QueryRow(sqlStr, args...).Scan(&a.UUID, &a.ImageUUID, &a.NameID,
		&a.BBox.X, &a.BBox.Y, &a.BBox.W, &a.BBox.H, &a.Theta, &a.Viewpoint)
	if err != nil {
		if err == sql.ErrNoRows {
			return Annotation{}, sql.ErrNoRows
		}
		return Annotation{}, fmt.Errorf("failed to query annotation %s: %w", annotUUID, err)
	}
	return a, nil
}

// GetAnnotationBBoxes returns bounding boxes by annotation uuid, nil entries
// for unknown ids.
func GetAnnotationBBoxes(db Querier, annotUUIDs []string) ([]*BBox, error) {
	ids := toAnySlice(annotUUIDs)
	xs, err := GetTableProperty(db, "annotations", "annot_xtl", ids)
	if err != nil {
		return nil, err
	}
	ys, err := GetTableProperty(db, "annotations", "annot_ytl", ids)
	if err != nil {
		return nil, err
	}
	ws, err := GetTableProperty(db, "annotations", "annot_width", ids)
	if err != nil {
		return nil, err
	}
	hs, err := GetTableProperty(db, "annotations", "annot_height", ids)
	if err != nil {
		return nil, err
	}

	bboxes := make([]*BBox, len(annotUUIDs))
	for i := range annotUUIDs {
		x, xok := asInt64(xs[i])
		y, yok := asInt64(ys[i])
		w, wok := asInt64(ws[i])
		h, hok := asInt64(hs[i])
		if xok && yok && wok && hok {
			bboxes[i] = &BBox{X: int(x), Y: int(y), W: int(w), H: int(h)}
		}
	}
	return bboxes, nil
}

// GetAnnotationThetas returns rotation angles by annotation uuid.
func GetAnnotationThetas(db Querier, annotUUIDs []string) ([]*float64, error) {
	values, err := GetTableProperty(db, "annotations", "annot_theta", toAnySlice(annotUUIDs))
	if err != nil {
		return nil, err
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		if f, ok := asFloat64(v); ok {
			out[i] = &f
		}
	}
	return out, nil
}

// GetAnnotationImageUUIDs returns the owning image of each annotation.
func GetAnnotationImageUUIDs(db Querier, annotUUIDs []string) ([]*string, error) {
	values, err := GetTableProperty(db, "annotations", "image_uuid", toAnySlice(annotUUIDs))
	if err != nil {
		return nil, err
	}
	return anyToStrings(values), nil
}

// GetAnnotationNameIDs returns the owning name of each annotation.
func GetAnnotationNameIDs(db Querier, annotUUIDs []string) ([]*int64, error) {
	values, err := GetTableProperty(db, "annotations", "name_uid", toAnySlice(annotUUIDs))
	if err != nil {
		return nil, err
	}
	return anyToInt64s(values), nil
}

// GetAnnotationViewpoints returns viewpoint labels by annotation uuid.
func GetAnnotationViewpoints(db Querier, annotUUIDs []string) ([]*string, error) {
	values, err := GetTableProperty(db, "annotations", "annot_viewpoint", toAnySlice(annotUUIDs))
	if err != nil {
		return nil, err
	}
	return anyToStrings(values), nil
}

// GetAnnotationsInImages returns, per image uuid, the annotations it owns.
func GetAnnotationsInImages(db Querier, imageUUIDs []string) ([][]string, error) {
	out := make([][]string, len(imageUUIDs))
	for i, imageUUID := range imageUUIDs {
		sqlStr, args, err := psql.Select("annot_uuid").
			From("annotations").
			Where(sq.Eq{"image_uuid": imageUUID}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for GetAnnotationsInImages: %w", err)
		}
		uuids, err := queryStrings(db, sqlStr, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list annotations of image %s: %w", imageUUID, err)
		}
		out[i] = uuids
	}
	return out, nil
}

// GetAnnotationGroundTruth returns, per annotation, the other annotations
// sharing its name. Annotations still carrying the unknown sentinel get an
// empty list since "unknown" is not an identity.
func GetAnnotationGroundTruth(db Querier, annotUUIDs []string) ([][]string, error) {
	nameIDs, err := GetAnnotationNameIDs(db, annotUUIDs)
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(annotUUIDs))
	for i, nameID := range nameIDs {
		if nameID == nil || *nameID == UnknownNameID {
			continue
		}
		sqlStr, args, err := psql.Select("annot_uuid").
			From("annotations").
			Where(sq.Eq{"name_uid": *nameID}).
			Where(sq.NotEq{"annot_uuid": annotUUIDs[i]}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build SQL for GetAnnotationGroundTruth: %w", err)
		}
		uuids, err := queryStrings(db, sqlStr, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list ground truth for %s: %w", annotUUIDs[i], err)
		}
		out[i] = uuids
	}
	return out, nil
}

// SetAnnotationBBoxes bulk-updates bounding boxes by annotation uuid. Note
// that editing geometry does not re-derive the annotation uuid; the identity
// keeps naming the originally submitted region.
func SetAnnotationBBoxes(db Querier, annotUUIDs []string, bboxes []BBox) error {
	if len(annotUUIDs) != len(bboxes) {
		return fmt.Errorf("%w: %d ids, %d bboxes", ErrInvalidArity, len(annotUUIDs), len(bboxes))
	}
	for i, annotUUID := range annotUUIDs {
		bbox := bboxes[i]
		sqlStr, args, err := psql.Update("annotations").
			Set("annot_xtl", bbox.X).
			Set("annot_ytl", bbox.Y).
			Set("annot_width", bbox.W).
			Set("annot_height", bbox.H).
			Where(sq.Eq{"annot_uuid": annotUUID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build SQL for SetAnnotationBBoxes: %w", err)
		}
		if _, err := db.Exec(sqlStr, args...); err != nil {
			return fmt.Errorf("failed to update bbox of %s: %w", annotUUID, err)
		}
	}
	return nil
}

// SetAnnotationThetas bulk-updates rotation angles by annotation uuid.
func SetAnnotationThetas(db Querier, annotUUIDs []string, thetas []float64) error {
	if len(annotUUIDs) != len(thetas) {
		return fmt.Errorf("%w: %d ids, %d thetas", ErrInvalidArity, len(annotUUIDs), len(thetas))
	}
	values := make([]interface{}, len(thetas))
	for i, theta := range thetas {
		values[i] = theta
	}
	return SetTableProperty(db, "annotations", "annot_theta", toAnySlice(annotUUIDs), values)
}

// SetAnnotationViewpoints bulk-updates viewpoint labels by annotation uuid.
func SetAnnotationViewpoints(db Querier, annotUUIDs []string, viewpoints []string) error {
	if len(annotUUIDs) != len(viewpoints) {
		return fmt.Errorf("%w: %d ids, %d viewpoints", ErrInvalidArity, len(annotUUIDs), len(viewpoints))
	}
	values := make([]interface{}, len(viewpoints))
	for i, vp := range viewpoints {
		values[i] = vp
	}
	return SetTableProperty(db, "annotations", "annot_viewpoint", toAnySlice(annotUUIDs), values)
}

// SetAnnotationNames assigns name labels to annotations, creating any label
// that does not exist yet and rewriting the foreign key.
func SetAnnotationNames(db Querier, annotUUIDs []string, names []string) error {
	if len(annotUUIDs) != len(names) {
		return fmt.Errorf("%w: %d ids, %d names", ErrInvalidArity, len(annotUUIDs), len(names))
	}
	nameIDs, err := AddNames(db, names)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(nameIDs))
	for i, id := range nameIDs {
		values[i] = id
	}
	return SetTableProperty(db, "annotations", "name_uid", toAnySlice(annotUUIDs), values)
}

// ValidAnnotationUUIDs lists every annotation id in the store.
func ValidAnnotationUUIDs(db Querier) ([]string, error) {
	sqlStr, _, err := psql.Select("annot_uuid").From("annotations").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ValidAnnotationUUIDs: %w", err)
	}
	return queryStrings(db, sqlStr)
}

// DeleteAnnotations removes annotation rows by uuid. Chips and feature sets
// derived from a deleted annotation are left behind; see
// services.SweepOrphans.
func DeleteAnnotations(db Querier, annotUUIDs []string) error {
	sqlStr, args, err := psql.Delete("annotations").Where(sq.Eq{"annot_uuid": annotUUIDs}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for DeleteAnnotations: %w", err)
	}
	if _, err := db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete annotations: %w", err)
	}
	return nil
}
