package media

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/camden-git/wildidbackend/database"
)

// ChipRenderer crops and warps an oriented annotation region out of its
// source image under the active cropping configuration.
type ChipRenderer interface {
	RenderChip(imagePath string, bbox database.BBox, theta float64) (image.Image, error)
}

// CropRenderer renders chips with the imaging package: crop the bounding
// box, undo the region's rotation, then scale so the chip's area roughly
// matches TargetSize squared while keeping the aspect ratio.
type CropRenderer struct {
	TargetSize int
}

// RenderChip extracts one chip. The bounding box is clamped to image bounds;
// a box that lies fully outside its image is an error.
func (r *CropRenderer) RenderChip(imagePath string, bbox database.BBox, theta float64) (image.Image, error) {
	src, err := imaging.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("chips: failed to open image %s: %w", imagePath, err)
	}

	rect := image.Rect(bbox.X, bbox.Y, bbox.X+bbox.W, bbox.Y+bbox.H).Intersect(src.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("chips: bbox %+v lies outside image %s", bbox, imagePath)
	}
	chip := imaging.Crop(src, rect)

	if theta != 0 {
		// theta is radians counterclockwise in image space; rotate back to
		// upright before scaling
		degrees := -theta * 180.0 / math.Pi
		chip = imaging.Rotate(chip, degrees, color.NRGBA{0, 0, 0, 255})
	}

	bounds := chip.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("chips: degenerate chip %dx%d for bbox %+v", w, h, bbox)
	}

	if r.TargetSize > 0 {
		scale := float64(r.TargetSize) / math.Sqrt(float64(w)*float64(h))
		if scale < 1.0 {
			newW := maxInt(1, int(math.Round(float64(w)*scale)))
			newH := maxInt(1, int(math.Round(float64(h)*scale)))
			chip = imaging.Resize(chip, newW, newH, imaging.Lanczos)
		}
	}

	return chip, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
