package config

import (
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"

	"media-animator/internal/domain"
)

// EnvPrefix namespaces every environment override, e.g. ANIMATOR_OUTPUT_DIR.
const EnvPrefix = "ANIMATOR"

// ConfigFileEnv overrides the settings file location.
const ConfigFileEnv = "ANIMATOR_CONFIG_FILE"

// environment lists the ANIMATOR_* variables. Keys derive from field names
// only; an explicit envconfig tag would also match the bare, unprefixed name.
// Pointers stay nil for unset variables.
type environment struct {
	OutputDir   *string `split_words:"true"`
	FfmpegPath  *string `split_words:"true"`
	FfprobePath *string `split_words:"true"`
	Default     struct {
		FPS         *float64
		SizeAxis    *string `split_words:"true"`
		PixelSize   *int    `split_words:"true"`
		Lossless    *bool
		Quality     *int
		Compression *int
	}
	Memory struct {
		HighWater  *float64 `split_words:"true"`
		CheckEvery *int     `split_words:"true"`
	}
	Publish struct {
		Bucket *string
		Prefix *string
		Region *string
	}
}

// DefaultPath returns the settings file location.
func DefaultPath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".media-animator", "settings.yaml")
}

// ApplyEnvironment overlays ANIMATOR_* variables on cfg. Unset variables leave
// fields untouched.
func ApplyEnvironment(cfg domain.Settings) (domain.Settings, error) {
	var env environment
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return domain.Settings{}, err
	}

	cfg.OutputDir = lo.FromPtrOr(env.OutputDir, cfg.OutputDir)
	cfg.FFmpegPath = lo.FromPtrOr(env.FfmpegPath, cfg.FFmpegPath)
	cfg.FFprobePath = lo.FromPtrOr(env.FfprobePath, cfg.FFprobePath)

	d := &cfg.Defaults
	d.TargetFPS = lo.FromPtrOr(env.Default.FPS, d.TargetFPS)
	d.SizeAxis = domain.SizeAxis(lo.FromPtrOr(env.Default.SizeAxis, string(d.SizeAxis)))
	d.TargetPixelSize = lo.FromPtrOr(env.Default.PixelSize, d.TargetPixelSize)
	d.Lossless = lo.FromPtrOr(env.Default.Lossless, d.Lossless)
	d.Quality = lo.FromPtrOr(env.Default.Quality, d.Quality)
	d.Compression = lo.FromPtrOr(env.Default.Compression, d.Compression)

	cfg.Memory.HighWaterPercent = lo.FromPtrOr(env.Memory.HighWater, cfg.Memory.HighWaterPercent)
	cfg.Memory.CheckEvery = lo.FromPtrOr(env.Memory.CheckEvery, cfg.Memory.CheckEvery)

	cfg.Publish.Bucket = lo.FromPtrOr(env.Publish.Bucket, cfg.Publish.Bucket)
	cfg.Publish.Prefix = lo.FromPtrOr(env.Publish.Prefix, cfg.Publish.Prefix)
	cfg.Publish.Region = lo.FromPtrOr(env.Publish.Region, cfg.Publish.Region)
	return cfg, nil
}
