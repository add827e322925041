package media

import (
	"fmt"
	"log"
	"sync"

	"gocv.io/x/gocv"
)

// FeatureExtractor turns a rendered chip into keypoints and fixed-dimension
// descriptor vectors. Implementations must be safe for concurrent use.
type FeatureExtractor interface {
	Extract(chipPath string) ([]Keypoint, [][]float32, error)
}

// ORBDescriptorDim is the byte width of an ORB descriptor, widened to one
// float32 per element for storage and matching.
const ORBDescriptorDim = 32

// ORBExtractor computes ORB keypoints and descriptors with gocv. The native
// detector is not reentrant, so extractions are serialized.
type ORBExtractor struct {
	mu      sync.Mutex
	orb     gocv.ORB
	enabled bool
}

// NewORBExtractor creates an extractor limited to maxFeatures keypoints per
// chip.
func NewORBExtractor(maxFeatures int) *ORBExtractor {
	if maxFeatures <= 0 {
		maxFeatures = 500
	}
	orb := gocv.NewORBWithParams(maxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	log.Printf("features: initialized ORB extractor (max %d keypoints)", maxFeatures)
	return &ORBExtractor{orb: orb, enabled: true}
}

// Close releases the native detector.
func (e *ORBExtractor) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled {
		e.orb.Close()
		e.enabled = false
		log.Println("features: closed ORB extractor")
	}
}

// Extract reads a chip file and runs keypoint detection plus descriptor
// computation on it.
func (e *ORBExtractor) Extract(chipPath string) ([]Keypoint, [][]float32, error) {
	if e == nil {
		return nil, nil, fmt.Errorf("features: extractor is closed")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return nil, nil, fmt.Errorf("features: extractor is closed")
	}

	img := gocv.IMRead(chipPath, gocv.IMReadGrayScale)
	if img.Empty() {
		return nil, nil, fmt.Errorf("features: failed to read chip file %s", chipPath)
	}
	defer img.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	cvKpts, cvDescs := e.orb.DetectAndCompute(img, mask)
	defer cvDescs.Close()

	kpts := make([]Keypoint, len(cvKpts))
	for i, kp := range cvKpts {
		kpts[i] = Keypoint{
			X:        float32(kp.X),
			Y:        float32(kp.Y),
			Size:     float32(kp.Size),
			Angle:    float32(kp.Angle),
			Response: float32(kp.Response),
			Octave:   int32(kp.Octave),
		}
	}

	// ORB descriptors are unsigned bytes; widen to float32 so downstream
	// distance math is uniform across extractor implementations
	descs := make([][]float32, len(kpts))
	for i := range descs {
		row := make([]float32, ORBDescriptorDim)
		for j := 0; j < ORBDescriptorDim && j < cvDescs.Cols(); j++ {
			row[j] = float32(cvDescs.GetUCharAt(i, j))
		}
		descs[i] = row
	}

	return kpts, descs, nil
}
