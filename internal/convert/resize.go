package convert

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"media-animator/internal/domain"
)

// TargetDimensions pins one axis to size and scales the other to keep aspect ratio.
// The derived side is rounded half away from zero and never drops below one pixel.
func TargetDimensions(width, height int, axis domain.SizeAxis, size int) (int, int) {
	if width <= 0 || height <= 0 || size <= 0 {
		return width, height
	}

	switch axis {
	case domain.SizeAxisWidth:
		h := math.Round(float64(height) * float64(size) / float64(width))
		return size, max(1, int(h))
	case domain.SizeAxisHeight:
		w := math.Round(float64(width) * float64(size) / float64(height))
		return max(1, int(w)), size
	default:
		return width, height
	}
}

// ResizeFrame applies Lanczos resampling; img is returned as is when no resize is needed.
func ResizeFrame(img image.Image, axis domain.SizeAxis, size int) image.Image {
	b := img.Bounds()
	w, h := TargetDimensions(b.Dx(), b.Dy(), axis, size)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
