// Package ident derives stable, content-addressed identifiers for images and
// annotations. Two machines ingesting the same logical region independently
// compute the same id, which keeps re-runs of a pipeline idempotent without a
// storage round trip.
package ident

import (
	"fmt"

	"github.com/google/uuid"
)

// Fixed namespaces so the v5 UUIDs stay stable across releases.
var (
	imageNamespace      = uuid.MustParse("9a6e2c1d-4b8f-4c73-a20e-5b1f83c6d9aa")
	annotationNamespace = uuid.MustParse("3f4d8b02-71ce-49a1-bd35-0c92ee47f1b4")
)

// ImageUUID derives an image identity from its locator and probed metadata.
func ImageUUID(uri string, width, height int, timePosix int64) string {
	payload := fmt.Sprintf("%s|%dx%d|%d", uri, width, height, timePosix)
	return uuid.NewSHA1(imageNamespace, []byte(payload)).String()
}

// AnnotationUUID derives an annotation identity from its defining geometry.
// It is a pure function: identical inputs always produce the same id, and any
// differing input produces a different id with overwhelming probability.
func AnnotationUUID(imageUUID string, x, y, w, h int, theta float64) string {
	// %.17g round-trips every float64 exactly, so theta changes below
	// printf precision still change the identity.
	payload := fmt.Sprintf("%s|%d,%d,%d,%d|%.17g", imageUUID, x, y, w, h, theta)
	return uuid.NewSHA1(annotationNamespace, []byte(payload)).String()
}
