package media

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Keypoint is one detected interest point in chip pixel space.
type Keypoint struct {
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	Size     float32 `json:"size"`
	Angle    float32 `json:"angle"`
	Response float32 `json:"response"`
	Octave   int32   `json:"octave"`
}

const keypointRecordSize = 24 // six little-endian 32-bit fields

// EncodeKeypoints packs keypoints into the BLOB layout used by the
// feature_sets table.
func EncodeKeypoints(kpts []Keypoint) []byte {
	data := make([]byte, len(kpts)*keypointRecordSize)
	for i, kp := range kpts {
		off := i * keypointRecordSize
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(kp.X))
		binary.LittleEndian.PutUint32(data[off+4:], math.Float32bits(kp.Y))
		binary.LittleEndian.PutUint32(data[off+8:], math.Float32bits(kp.Size))
		binary.LittleEndian.PutUint32(data[off+12:], math.Float32bits(kp.Angle))
		binary.LittleEndian.PutUint32(data[off+16:], math.Float32bits(kp.Response))
		binary.LittleEndian.PutUint32(data[off+20:], uint32(kp.Octave))
	}
	return data
}

// DecodeKeypoints unpacks a keypoint BLOB.
func DecodeKeypoints(data []byte) ([]Keypoint, error) {
	if len(data)%keypointRecordSize != 0 {
		return nil, fmt.Errorf("codec: keypoint blob length %d is not a multiple of %d",
			len(data), keypointRecordSize)
	}
	kpts := make([]Keypoint, len(data)/keypointRecordSize)
	for i := range kpts {
		off := i * keypointRecordSize
		kpts[i] = Keypoint{
			X:        math.Float32frombits(binary.LittleEndian.Uint32(data[off:])),
			Y:        math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:])),
			Size:     math.Float32frombits(binary.LittleEndian.Uint32(data[off+8:])),
			Angle:    math.Float32frombits(binary.LittleEndian.Uint32(data[off+12:])),
			Response: math.Float32frombits(binary.LittleEndian.Uint32(data[off+16:])),
			Octave:   int32(binary.LittleEndian.Uint32(data[off+20:])),
		}
	}
	return kpts, nil
}

// EncodeDescriptors packs row-major descriptor vectors into a float32 BLOB.
// All rows must share one dimensionality.
func EncodeDescriptors(descs [][]float32) ([]byte, error) {
	if len(descs) == 0 {
		return nil, nil
	}
	dim := len(descs[0])
	data := make([]byte, 0, len(descs)*dim*4)
	buf := make([]byte, 4)
	for i, desc := range descs {
		if len(desc) != dim {
			return nil, fmt.Errorf("codec: descriptor %d has dim %d, expected %d", i, len(desc), dim)
		}
		for _, v := range desc {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			data = append(data, buf...)
		}
	}
	return data, nil
}

// DecodeDescriptors unpacks a descriptor BLOB into rows of the given
// dimensionality.
func DecodeDescriptors(data []byte, dim int) ([][]float32, error) {
	if dim <= 0 {
		if len(data) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("codec: invalid descriptor dim %d", dim)
	}
	rowBytes := dim * 4
	if len(data)%rowBytes != 0 {
		return nil, fmt.Errorf("codec: descriptor blob length %d is not a multiple of %d",
			len(data), rowBytes)
	}
	descs := make([][]float32, len(data)/rowBytes)
	for i := range descs {
		row := make([]float32, dim)
		off := i * rowBytes
		for j := 0; j < dim; j++ {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+j*4:]))
		}
		descs[i] = row
	}
	return descs, nil
}
