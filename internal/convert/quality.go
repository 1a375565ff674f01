package convert

import (
	"math"

	"github.com/samber/lo"
)

const (
	MaxQuality = 100
	MinQuality = 10

	// Full compression halves the requested quality.
	maxCompressionDiscount = 0.5
)

// EffectiveQuality folds the compression dial into the encoder quality.
func EffectiveQuality(lossless bool, quality, compression int) int {
	if lossless {
		return MaxQuality
	}
	discount := float64(compression) / 100 * maxCompressionDiscount
	q := math.Round(float64(quality) * (1 - discount))
	return lo.Clamp(int(q), MinQuality, MaxQuality)
}
