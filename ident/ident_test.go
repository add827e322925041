package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageUUID(t *testing.T) {
	t.Run("Stable", func(t *testing.T) {
		a := ImageUUID("photos/zebra_001.jpg", 4000, 3000, 1700000000)
		b := ImageUUID("photos/zebra_001.jpg", 4000, 3000, 1700000000)
		assert.Equal(t, a, b)
	})

	t.Run("SensitiveToEveryInput", func(t *testing.T) {
		base := ImageUUID("photos/zebra_001.jpg", 4000, 3000, 1700000000)
		assert.NotEqual(t, base, ImageUUID("photos/zebra_002.jpg", 4000, 3000, 1700000000))
		assert.NotEqual(t, base, ImageUUID("photos/zebra_001.jpg", 4001, 3000, 1700000000))
		assert.NotEqual(t, base, ImageUUID("photos/zebra_001.jpg", 4000, 3001, 1700000000))
		assert.NotEqual(t, base, ImageUUID("photos/zebra_001.jpg", 4000, 3000, 1700000001))
	})
}

func TestAnnotationUUID(t *testing.T) {
	img := ImageUUID("photos/zebra_001.jpg", 4000, 3000, 1700000000)

	t.Run("Stable", func(t *testing.T) {
		a := AnnotationUUID(img, 10, 20, 300, 400, 0.5)
		b := AnnotationUUID(img, 10, 20, 300, 400, 0.5)
		assert.Equal(t, a, b)
	})

	t.Run("SensitiveToGeometry", func(t *testing.T) {
		base := AnnotationUUID(img, 10, 20, 300, 400, 0.5)
		assert.NotEqual(t, base, AnnotationUUID(img, 11, 20, 300, 400, 0.5))
		assert.NotEqual(t, base, AnnotationUUID(img, 10, 20, 300, 400, 0.5000000001))
	})

	t.Run("DistinctFromImageNamespace", func(t *testing.T) {
		// Same payload text under different namespaces must not collide.
		assert.NotEqual(t, ImageUUID("x", 1, 1, 1), AnnotationUUID("x", 1, 1, 1, 1, 1))
	})
}
