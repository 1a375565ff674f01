package config

import (
	"os"
	"path/filepath"

	"media-animator/internal/convert"
	"media-animator/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:   filepath.Join(homeDir, "Pictures", "Animations"),
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Defaults:    DefaultConversion(),
		Memory: domain.MemorySettings{
			HighWaterPercent: convert.DefaultHighWaterPercent,
			CheckEvery:       convert.DefaultCheckEvery,
		},
	}
}

// DefaultConversion returns the conversion settings used when none are given.
func DefaultConversion() domain.ConversionSettings {
	return domain.ConversionSettings{
		TargetFPS:   10,
		SizeAxis:    domain.SizeAxisNone,
		Lossless:    false,
		Quality:     80,
		Compression: 0,
	}
}
