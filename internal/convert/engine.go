package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"media-animator/internal/domain"
	"media-animator/internal/jobs"
)

// FileConverter converts a single source file.
type FileConverter interface {
	ConvertFile(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error)
}

// ProgressSink receives a status snapshot after every transition.
type ProgressSink interface {
	Publish(status domain.ConversionStatus)
}

// Publisher uploads a finished artifact and returns its remote location.
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithProgressSink sets the observer of status transitions.
func WithProgressSink(sink ProgressSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithPublisher uploads each converted artifact.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the engine logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithIDGenerator overrides batch id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// Engine runs at most one batch at a time on a background goroutine.
type Engine struct {
	converter FileConverter
	state     *jobs.Manager
	sink      ProgressSink
	publisher Publisher
	logger    logrus.FieldLogger
	newID     func() string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine that records progress in state.
func NewEngine(converter FileConverter, state *jobs.Manager, opts ...Option) *Engine {
	e := &Engine{
		converter: converter,
		state:     state,
		logger:    logrus.StandardLogger(),
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates the batch and starts converting it in the background.
func (e *Engine) Submit(paths []string, outputDir string, settings domain.ConversionSettings) (string, error) {
	settings = NormalizeSettings(settings)
	if err := ValidateSettings(settings); err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", configError("no source files given")
	}
	if err := checkOutputDir(outputDir); err != nil {
		return "", &Error{Kind: KindConfiguration, Message: "invalid output directory", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	batchID := e.newID()
	status, err := e.state.Begin(batchID, len(paths), outputDir)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.publish(status)

	e.logger.WithFields(logrus.Fields{
		"batch":  batchID,
		"files":  len(paths),
		"output": outputDir,
	}).Info("conversion batch started")

	go e.run(ctx, cancel, done, batchID, append([]string(nil), paths...), outputDir, settings)
	return batchID, nil
}

// Cancel asks the running batch to stop after the current frame or file.
func (e *Engine) Cancel() error {
	if !e.state.IsConverting() {
		return jobs.ErrNotConverting
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// Status returns the current status snapshot.
func (e *Engine) Status() domain.ConversionStatus {
	return e.state.Current()
}

// Wait blocks until the current batch, if any, has finished.
func (e *Engine) Wait(ctx context.Context) (domain.ConversionStatus, error) {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return e.state.Current(), nil
	}
	select {
	case <-done:
		return e.state.Current(), nil
	case <-ctx.Done():
		return e.state.Current(), ctx.Err()
	}
}

func (e *Engine) run(
	ctx context.Context,
	cancel context.CancelFunc,
	done chan struct{},
	batchID string,
	paths []string,
	outputDir string,
	settings domain.ConversionSettings,
) {
	defer close(done)
	defer cancel()

	log := e.logger.WithField("batch", batchID)
	total := len(paths)
	abort := ""

	for i, path := range paths {
		if ctx.Err() != nil {
			abort = "Conversion cancelled"
			e.skipRemaining(paths[i:], "cancelled")
			break
		}
		if err := checkOutputDir(outputDir); err != nil {
			abort = fmt.Sprintf("Conversion aborted: %v", err)
			log.WithError(err).Error("output directory lost, aborting batch")
			e.skipRemaining(paths[i:], "batch aborted")
			break
		}

		name := filepath.Base(path)
		e.update(func(s *domain.ConversionStatus) {
			s.CurrentFile = name
			s.Message = fmt.Sprintf("Converting %s (%d/%d)", name, i+1, total)
		})

		outcome, fatal := e.convertOne(ctx, path, outputDir, settings)
		e.update(func(s *domain.ConversionStatus) {
			s.Outcomes = append(s.Outcomes, outcome)
			if outcome.Status == domain.FileOutcomeConverted {
				s.CompletedFiles++
			}
			s.Progress = jobs.Percent(len(s.Outcomes), total)
			s.Message = outcomeMessage(outcome, len(s.Outcomes), total)
		})

		if fatal != nil {
			abort = fmt.Sprintf("Conversion aborted: %v", fatal)
			log.WithError(fatal).Error("unexpected failure, aborting batch")
			e.skipRemaining(paths[i+1:], "batch aborted")
			break
		}
	}

	if abort == "" && ctx.Err() != nil {
		abort = "Conversion cancelled"
	}
	final := e.state.Current()
	message := summaryMessage(final, abort)
	status, err := e.state.Finish(message)
	if err != nil {
		log.WithError(err).Error("finish batch")
		return
	}
	e.publish(status)

	log.WithFields(logrus.Fields{
		"completed": status.CompletedFiles,
		"total":     status.TotalFiles,
	}).Info(message)
}

// convertOne never lets a per-file failure escape; a panic is returned as fatal.
func (e *Engine) convertOne(
	ctx context.Context,
	path string,
	outputDir string,
	settings domain.ConversionSettings,
) (outcome domain.FileOutcome, fatal error) {
	outcome = domain.FileOutcome{Source: path}
	log := e.logger.WithField("file", filepath.Base(path))

	defer func() {
		if r := recover(); r != nil {
			fatal = fmt.Errorf("panic while converting %s: %v", filepath.Base(path), r)
			outcome.Status = domain.FileOutcomeFailed
			outcome.Error = fatal.Error()
		}
	}()

	result, err := e.converter.ConvertFile(ctx, path, outputDir, settings)
	if err != nil {
		kind := KindOf(err)
		outcome.ErrorKind = string(kind)
		outcome.Error = err.Error()
		if kind == KindCancelled {
			outcome.Status = domain.FileOutcomeSkipped
			log.Info("conversion cancelled")
			return outcome, nil
		}
		outcome.Status = domain.FileOutcomeFailed
		log.WithError(err).Warn("file conversion failed")
		return outcome, nil
	}

	outcome.Status = domain.FileOutcomeConverted
	outcome.Output = result.Output
	outcome.Frames = result.Frames

	if e.publisher != nil {
		url, err := e.publisher.Publish(context.WithoutCancel(ctx), result.Output)
		if err != nil {
			outcome.PublishError = err.Error()
			log.WithError(err).Warn("publish failed")
		} else {
			outcome.RemoteURL = url
		}
	}
	return outcome, nil
}

func (e *Engine) skipRemaining(paths []string, reason string) {
	if len(paths) == 0 {
		return
	}
	e.update(func(s *domain.ConversionStatus) {
		for _, path := range paths {
			s.Outcomes = append(s.Outcomes, domain.FileOutcome{
				Source: path,
				Status: domain.FileOutcomeSkipped,
				Error:  reason,
			})
		}
	})
}

func (e *Engine) update(fn func(s *domain.ConversionStatus)) {
	status, err := e.state.Update(fn)
	if err != nil {
		e.logger.WithError(err).Warn("status update rejected")
		return
	}
	e.publish(status)
}

func (e *Engine) publish(status domain.ConversionStatus) {
	if e.sink != nil {
		e.sink.Publish(status)
	}
}

func checkOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", dir)
	}
	return nil
}

func outcomeMessage(o domain.FileOutcome, processed, total int) string {
	name := filepath.Base(o.Source)
	switch o.Status {
	case domain.FileOutcomeConverted:
		return fmt.Sprintf("Converted %s (%d/%d)", name, processed, total)
	case domain.FileOutcomeSkipped:
		return fmt.Sprintf("Skipped %s (%d/%d)", name, processed, total)
	default:
		return fmt.Sprintf("Failed %s (%d/%d): %s", name, processed, total, o.Error)
	}
}

// summaryMessage names either the output location or the failed files.
func summaryMessage(status domain.ConversionStatus, abort string) string {
	failed := lo.Filter(status.Outcomes, func(o domain.FileOutcome, _ int) bool {
		return o.Status == domain.FileOutcomeFailed
	})
	failures := lo.Map(failed, func(o domain.FileOutcome, _ int) string {
		if o.ErrorKind == "" {
			return filepath.Base(o.Source)
		}
		return fmt.Sprintf("%s (%s)", filepath.Base(o.Source), o.ErrorKind)
	})

	var parts []string
	switch {
	case abort != "":
		parts = append(parts, fmt.Sprintf("%s after %d of %d files converted.", abort, status.CompletedFiles, status.TotalFiles))
	case len(failed) == 0:
		parts = append(parts, fmt.Sprintf("All %d files converted.", status.TotalFiles))
	case status.CompletedFiles == 0:
		parts = append(parts, "No files converted.")
	default:
		parts = append(parts, fmt.Sprintf("Converted %d of %d files.", status.CompletedFiles, status.TotalFiles))
	}
	if len(failures) > 0 {
		parts = append(parts, "Failed: "+strings.Join(failures, ", ")+".")
	}
	if status.CompletedFiles > 0 {
		parts = append(parts, "Saved to "+status.OutputDir)
	}
	return strings.Join(parts, " ")
}
