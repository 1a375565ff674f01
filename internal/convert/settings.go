package convert

import (
	"math"
	"strings"

	"media-animator/internal/domain"
)

// NormalizeSettings canonicalizes the size axis spelling.
func NormalizeSettings(s domain.ConversionSettings) domain.ConversionSettings {
	axis := strings.ToLower(strings.TrimSpace(string(s.SizeAxis)))
	if axis == "" {
		axis = string(domain.SizeAxisNone)
	}
	s.SizeAxis = domain.SizeAxis(axis)
	return s
}

// ValidateSettings rejects settings that could never produce an artifact.
func ValidateSettings(s domain.ConversionSettings) error {
	if math.IsNaN(s.TargetFPS) || math.IsInf(s.TargetFPS, 0) || s.TargetFPS <= 0 {
		return configError("target fps must be a positive number, got %v", s.TargetFPS)
	}

	switch s.SizeAxis {
	case domain.SizeAxisNone:
	case domain.SizeAxisWidth, domain.SizeAxisHeight:
		if s.TargetPixelSize <= 0 {
			return configError("resize by %s requires a positive pixel size, got %d", s.SizeAxis, s.TargetPixelSize)
		}
	default:
		return configError("unknown size axis %q", s.SizeAxis)
	}

	if s.Lossless {
		return nil
	}
	if s.Quality < 0 || s.Quality > 100 {
		return configError("quality must be within 0-100, got %d", s.Quality)
	}
	if s.Compression < 0 || s.Compression > 100 {
		return configError("compression must be within 0-100, got %d", s.Compression)
	}
	return nil
}

// FrameInterval is the stride between sampled source frames.
func FrameInterval(nativeFPS, targetFPS float64) int {
	if targetFPS <= 0 {
		return 1
	}
	return max(1, int(math.Floor(nativeFPS/targetFPS)))
}

// FrameDurationMillis is the display time of one output frame.
func FrameDurationMillis(targetFPS float64) int {
	if targetFPS <= 0 {
		return 1
	}
	return max(1, int(math.Round(1000/targetFPS)))
}
