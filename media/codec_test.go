package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypointCodec(t *testing.T) {
	kpts := []Keypoint{
		{X: 12.5, Y: 40.25, Size: 31, Angle: 182.75, Response: 0.003, Octave: 0},
		{X: 0, Y: 0, Size: 1, Angle: -1, Response: 0, Octave: 3},
	}

	data := EncodeKeypoints(kpts)
	assert.Len(t, data, len(kpts)*keypointRecordSize)

	decoded, err := DecodeKeypoints(data)
	require.NoError(t, err)
	assert.Equal(t, kpts, decoded)

	t.Run("RejectsTruncatedBlob", func(t *testing.T) {
		_, err := DecodeKeypoints(data[:keypointRecordSize-3])
		assert.Error(t, err)
	})

	t.Run("EmptyBlob", func(t *testing.T) {
		decoded, err := DecodeKeypoints(nil)
		require.NoError(t, err)
		assert.Empty(t, decoded)
	})
}

func TestDescriptorCodec(t *testing.T) {
	descs := [][]float32{
		{1, 2, 3, 4},
		{0.5, -0.5, 255, 0},
	}

	data, err := EncodeDescriptors(descs)
	require.NoError(t, err)
	assert.Len(t, data, 2*4*4)

	decoded, err := DecodeDescriptors(data, 4)
	require.NoError(t, err)
	assert.Equal(t, descs, decoded)

	t.Run("RejectsRaggedRows", func(t *testing.T) {
		_, err := EncodeDescriptors([][]float32{{1, 2}, {1, 2, 3}})
		assert.Error(t, err)
	})

	t.Run("RejectsWrongDim", func(t *testing.T) {
		_, err := DecodeDescriptors(data, 3)
		assert.Error(t, err)
	})

	t.Run("EmptySet", func(t *testing.T) {
		data, err := EncodeDescriptors(nil)
		require.NoError(t, err)
		assert.Nil(t, data)

		decoded, err := DecodeDescriptors(nil, 0)
		require.NoError(t, err)
		assert.Nil(t, decoded)
	})
}
