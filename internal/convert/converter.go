package convert

import (
	"context"
	"image"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"media-animator/internal/domain"
)

// FileResult describes one successfully written artifact.
type FileResult struct {
	Source              string `json:"source"`
	Output              string `json:"output"`
	Frames              int    `json:"frames"`
	SkippedFrames       int    `json:"skippedFrames"`
	Width               int    `json:"width"`
	Height              int    `json:"height"`
	FrameDurationMillis int    `json:"frameDurationMs"`
}

// Converter turns one source video into one animated artifact.
type Converter struct {
	opener  Opener
	encoder Encoder
	memory  MemoryGuardOptions
	logger  logrus.FieldLogger
}

// NewConverter wires a decoder source and an encoder.
func NewConverter(opener Opener, encoder Encoder, memory MemoryGuardOptions, logger logrus.FieldLogger) *Converter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Converter{
		opener:  opener,
		encoder: encoder,
		memory:  memory,
		logger:  logger,
	}
}

// ConvertFile samples, resizes and encodes source into outputDir.
//
// The decoder is released exactly once on every path, before encoding starts.
// Cancellation is observed between frames and before encoding; an encode that
// has started always runs to completion.
func (c *Converter) ConvertFile(
	ctx context.Context,
	source string,
	outputDir string,
	settings domain.ConversionSettings,
) (FileResult, error) {
	settings = NormalizeSettings(settings)
	if err := ValidateSettings(settings); err != nil {
		return FileResult{}, err
	}

	log := c.logger.WithField("file", filepath.Base(source))
	dec, err := c.opener.Open(ctx, source)
	if err != nil {
		return FileResult{}, classify(KindInvalidSource, source, "cannot open video", err)
	}

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			if err := dec.Close(); err != nil {
				log.WithError(err).Warn("decoder release failed")
			}
		})
	}
	defer release()

	info := dec.Info()
	if info.Path == "" {
		info.Path = source
	}
	if err := info.Validate(); err != nil {
		return FileResult{}, err
	}

	interval := FrameInterval(info.NativeFPS, settings.TargetFPS)
	log.WithFields(logrus.Fields{
		"fps":      info.NativeFPS,
		"frames":   info.TotalFrames,
		"interval": interval,
		"duration": info.Duration(),
	}).Debug("sampling video")

	memory := c.memory
	memory.Logger = log
	guard := NewMemoryGuard(memory)
	sampler := NewFrameSampler(dec, interval)

	frames := make([]image.Image, 0, frameCapacity(info.TotalFrames, interval))
	defer func() {
		clear(frames)
		frames = nil
	}()

	for {
		if err := ctx.Err(); err != nil {
			return FileResult{}, &Error{Kind: KindCancelled, Source: source, Message: "cancelled while sampling", Err: err}
		}
		frame, ok := sampler.Next()
		if !ok {
			break
		}
		frames = append(frames, ResizeFrame(frame.Image, settings.SizeAxis, settings.TargetPixelSize))
		guard.Observe(len(frames))
	}
	release()

	if err := sampler.Err(); err != nil {
		return FileResult{}, err
	}
	if sampler.Skipped() > 0 {
		log.WithField("skipped", sampler.Skipped()).Warn("some frames could not be decoded")
	}
	if err := ctx.Err(); err != nil {
		return FileResult{}, &Error{Kind: KindCancelled, Source: source, Message: "cancelled before encoding", Err: err}
	}

	outputPath, err := ResolveOutputPath(outputDir, source)
	if err != nil {
		return FileResult{}, &Error{Kind: KindEncode, Source: source, Message: "cannot resolve output path", Err: err}
	}

	bounds := frames[0].Bounds()
	duration := FrameDurationMillis(settings.TargetFPS)
	req := EncodeRequest{
		Frames:              frames,
		FrameDurationMillis: duration,
		LoopCount:           0,
		Lossless:            settings.Lossless,
		Quality:             EffectiveQuality(settings.Lossless, settings.Quality, settings.Compression),
		OutputPath:          outputPath,
	}
	if err := c.encoder.Encode(context.WithoutCancel(ctx), req); err != nil {
		return FileResult{}, classify(KindEncode, source, "cannot encode animation", err)
	}

	result := FileResult{
		Source:              source,
		Output:              outputPath,
		Frames:              len(frames),
		SkippedFrames:       sampler.Skipped(),
		Width:               bounds.Dx(),
		Height:              bounds.Dy(),
		FrameDurationMillis: duration,
	}
	log.WithFields(logrus.Fields{
		"frames":   result.Frames,
		"output":   result.Output,
		"reclaims": guard.Reclaims(),
	}).Info("file converted")
	return result, nil
}

// maxFrameCapacity bounds the preallocation taken from the probed frame count,
// which comes from container metadata and may be corrupt.
const maxFrameCapacity = 4096

func frameCapacity(totalFrames, interval int) int {
	if totalFrames <= 0 || interval <= 0 {
		return 0
	}
	return min((totalFrames+interval-1)/interval, maxFrameCapacity)
}
