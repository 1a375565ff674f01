package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"media-animator/internal/bootstrap"
	"media-animator/internal/domain"
	"media-animator/internal/jobs"
)

const pollInterval = 250 * time.Millisecond

// overrides holds the conversion flags given on the command line.
type overrides struct {
	FPS         *float64
	Width       *int
	Height      *int
	Lossless    *bool
	Quality     *int
	Compression *int
}

// report is written by `convert --report`.
type report struct {
	GeneratedAt time.Time                 `json:"generatedAt"`
	Settings    domain.ConversionSettings `json:"settings"`
	Status      domain.ConversionStatus   `json:"status"`
}

func runConvert(app *bootstrap.App, ctx *cli.Context, logger logrus.FieldLogger) error {
	paths := ctx.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("convert: at least one FILE is required", 2)
	}

	settings, err := applyOverrides(app.Settings().Defaults, flagOverrides(ctx))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	batchID, err := app.StartConversion(bootstrap.ConversionRequest{
		Paths:     paths,
		OutputDir: ctx.String("out"),
		Settings:  &settings,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := watchBatch(sigCtx, app, logger.WithField("batch", batchID))

	if path := ctx.String("report"); path != "" {
		if err := writeReport(path, settings, status); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}
	if batchFailed(status) {
		return cli.Exit(status.Message, 1)
	}
	fmt.Println(status.Message)
	return nil
}

func flagOverrides(ctx *cli.Context) overrides {
	var o overrides
	if ctx.IsSet("fps") {
		o.FPS = lo.ToPtr(ctx.Float64("fps"))
	}
	if ctx.IsSet("width") {
		o.Width = lo.ToPtr(ctx.Int("width"))
	}
	if ctx.IsSet("height") {
		o.Height = lo.ToPtr(ctx.Int("height"))
	}
	if ctx.IsSet("lossless") {
		o.Lossless = lo.ToPtr(ctx.Bool("lossless"))
	}
	if ctx.IsSet("quality") {
		o.Quality = lo.ToPtr(ctx.Int("quality"))
	}
	if ctx.IsSet("compression") {
		o.Compression = lo.ToPtr(ctx.Int("compression"))
	}
	return o
}

// applyOverrides layers command-line values over the configured defaults.
// Validation of the result is left to the engine.
func applyOverrides(defaults domain.ConversionSettings, o overrides) (domain.ConversionSettings, error) {
	s := defaults
	if o.Width != nil && o.Height != nil {
		return s, errors.New("--width and --height are mutually exclusive")
	}
	if o.FPS != nil {
		s.TargetFPS = *o.FPS
	}
	switch {
	case o.Width != nil:
		s.SizeAxis = domain.SizeAxisWidth
		s.TargetPixelSize = *o.Width
	case o.Height != nil:
		s.SizeAxis = domain.SizeAxisHeight
		s.TargetPixelSize = *o.Height
	}
	if o.Lossless != nil {
		s.Lossless = *o.Lossless
	}
	if o.Quality != nil {
		s.Quality = *o.Quality
	}
	if o.Compression != nil {
		s.Compression = *o.Compression
	}
	return s, nil
}

// watchBatch logs new events until the batch is idle. The first signal on ctx
// requests cancellation; the batch is still awaited.
func watchBatch(ctx context.Context, app *bootstrap.App, logger logrus.FieldLogger) domain.ConversionStatus {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	interrupted := ctx.Done()
	var seq int64
	for {
		for _, event := range app.StatusEvents(seq) {
			seq = event.Seq
			logEvent(logger, event)
		}
		status := app.CurrentStatus()
		if !status.IsConverting {
			for _, event := range app.StatusEvents(seq) {
				seq = event.Seq
				logEvent(logger, event)
			}
			return status
		}

		select {
		case <-interrupted:
			interrupted = nil
			logger.Warn("interrupt received, cancelling at the next frame boundary")
			if err := app.CancelConversion(); err != nil && !errors.Is(err, jobs.ErrNotConverting) {
				logger.WithError(err).Error("cancel conversion")
			}
		case <-ticker.C:
		}
	}
}

func logEvent(logger logrus.FieldLogger, event jobs.Event) {
	entry := logger.WithField("progress", event.Progress)
	if event.Outcome == nil {
		if event.Type == jobs.EventTypeResult {
			return
		}
		entry.Info(event.Message)
		return
	}

	o := event.Outcome
	entry = entry.WithFields(logrus.Fields{
		"file":   o.Source,
		"status": o.Status,
	})
	if o.Output != "" {
		entry = entry.WithField("output", o.Output)
	}
	if o.RemoteURL != "" {
		entry = entry.WithField("remote", o.RemoteURL)
	}
	if o.PublishError != "" {
		entry = entry.WithField("publish_error", o.PublishError)
	}
	switch o.Status {
	case domain.FileOutcomeFailed:
		entry.WithField("kind", o.ErrorKind).Warn(o.Error)
	case domain.FileOutcomeSkipped:
		entry.Info("skipped")
	default:
		entry.WithField("frames", o.Frames).Info("converted")
	}
}

// batchFailed reports whether any file was not converted.
func batchFailed(status domain.ConversionStatus) bool {
	return status.CompletedFiles < status.TotalFiles
}

func writeReport(path string, settings domain.ConversionSettings, status domain.ConversionStatus) error {
	data, err := json.MarshalIndent(report{
		GeneratedAt: time.Now().UTC(),
		Settings:    settings,
		Status:      status,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report to JSON: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
