package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/lo"

	"media-animator/internal/convert"
	"media-animator/internal/domain"
)

// Checker validates external tools, the output directory and memory headroom.
type Checker struct {
	lookPath     func(string) (string, error)
	mkdirAll     func(string, os.FileMode) error
	createTemp   func(string, string) (*os.File, error)
	remove       func(string) error
	memoryUsage  func() (float64, error)
	listEncoders func(ffmpegPath string) (string, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:     exec.LookPath,
		mkdirAll:     os.MkdirAll,
		createTemp:   os.CreateTemp,
		remove:       os.Remove,
		memoryUsage:  convert.SystemMemoryUsage,
		listEncoders: ffmpegEncoders,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	ffmpeg := c.checkTool("ffmpeg", settings.FFmpegPath)
	items := []domain.DiagnosticItem{
		ffmpeg,
		c.checkTool("ffprobe", settings.FFprobePath),
		c.checkWebPEncoder(ffmpeg, settings.FFmpegPath),
		c.checkOutputDir(settings.OutputDir),
		c.checkMemory(settings.Memory.HighWaterPercent),
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// checkTool verifies a configured executable resolves, either on PATH or as a path.
func (c *Checker) checkTool(name, configured string) domain.DiagnosticItem {
	if strings.TrimSpace(configured) == "" {
		configured = name
	}
	path, err := c.lookPath(configured)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", configured),
			Hint:    "Install ffmpeg (which ships ffprobe) or set ffmpegPath/ffprobePath in the settings file.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkWebPEncoder verifies ffmpeg was built with libwebp.
func (c *Checker) checkWebPEncoder(ffmpeg domain.DiagnosticItem, ffmpegPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "encoder_libwebp",
		Name: "WebP encoder",
	}

	if ffmpeg.Status != domain.DiagnosticStatusPass {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Skipped: ffmpeg is not available."
		return item
	}
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}

	out, err := c.listEncoders(ffmpegPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot list ffmpeg encoders: %v", err)
		return item
	}
	if !strings.Contains(out, "libwebp") {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "ffmpeg was built without libwebp."
		item.Hint = "Install an ffmpeg build that includes --enable-libwebp."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "libwebp encoder available"
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where animations can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for converted animations."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// checkMemory compares current utilization with the reclamation threshold.
func (c *Checker) checkMemory(highWater float64) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "memory",
		Name: "Memory",
	}
	if highWater <= 0 {
		highWater = convert.DefaultHighWaterPercent
	}

	usage, err := c.memoryUsage()
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Memory usage unavailable: %v", err)
		item.Hint = "Memory pressure relief will retry during conversion."
		return item
	}

	item.Message = fmt.Sprintf("%.1f%% used (high-water mark %.0f%%)", usage, highWater)
	if usage > highWater {
		item.Status = domain.DiagnosticStatusWarn
		item.Hint = "Long or high-resolution clips keep every sampled frame in memory; close other programs or resize output."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	return item
}

func ffmpegEncoders(ffmpegPath string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	memoryUsage func() (float64, error),
	listEncoders func(string) (string, error),
) *Checker {
	return &Checker{
		lookPath:     lookPath,
		mkdirAll:     mkdirAll,
		createTemp:   createTemp,
		remove:       remove,
		memoryUsage:  memoryUsage,
		listEncoders: listEncoders,
	}
}
