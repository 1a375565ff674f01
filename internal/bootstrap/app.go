package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"media-animator/internal/config"
	"media-animator/internal/convert"
	"media-animator/internal/diagnostics"
	"media-animator/internal/domain"
	"media-animator/internal/jobs"
	"media-animator/internal/media/ffmpeg"
	"media-animator/internal/publish"
)

// App wires configuration, the conversion engine, events and diagnostics.
type App struct {
	store        config.Store
	state        *jobs.Manager
	events       *jobs.EventBus
	checker      *diagnostics.Checker
	logger       logrus.FieldLogger
	newConverter func(domain.Settings) convert.FileConverter
	newPublisher func(context.Context, domain.PublishSettings) (convert.Publisher, error)

	// configMu orders submissions against engine rebuilds so a batch always
	// runs on the engine that later cancels and awaits it.
	configMu sync.Mutex

	mu          sync.Mutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
	engine      *convert.Engine
	lastBatch   string
	seen        int
}

// ConversionRequest selects the sources of one batch. Empty fields fall back
// to the configured output directory and default conversion settings.
type ConversionRequest struct {
	Paths     []string
	OutputDir string
	Settings  *domain.ConversionSettings
}

// New builds the application from the persisted settings and environment.
func New(logger logrus.FieldLogger) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store := config.NewYAMLStore(config.DefaultPath())
	return newApp(
		store,
		diagnostics.NewChecker(),
		logger,
		func(s domain.Settings) convert.FileConverter {
			toolchain := ffmpeg.NewToolchain(s.FFmpegPath, s.FFprobePath, logger)
			return convert.NewConverter(toolchain, toolchain, convert.MemoryGuardOptions{
				CheckEvery:       s.Memory.CheckEvery,
				HighWaterPercent: s.Memory.HighWaterPercent,
				Logger:           logger,
			}, logger)
		},
		func(ctx context.Context, p domain.PublishSettings) (convert.Publisher, error) {
			return publish.NewS3Publisher(ctx, p, logger)
		},
	)
}

// NewForTests builds an App around injected collaborators. A nil publisher
// disables publishing; a nil checker disables diagnostics.
func NewForTests(
	store config.Store,
	converter convert.FileConverter,
	publisher convert.Publisher,
	checker *diagnostics.Checker,
	logger logrus.FieldLogger,
) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return newApp(
		store,
		checker,
		logger,
		func(domain.Settings) convert.FileConverter { return converter },
		func(context.Context, domain.PublishSettings) (convert.Publisher, error) {
			if publisher == nil {
				return nil, errors.New("publisher not configured")
			}
			return publisher, nil
		},
	)
}

func newApp(
	store config.Store,
	checker *diagnostics.Checker,
	logger logrus.FieldLogger,
	newConverter func(domain.Settings) convert.FileConverter,
	newPublisher func(context.Context, domain.PublishSettings) (convert.Publisher, error),
) (*App, error) {
	a := &App{
		store:        store,
		state:        jobs.NewManager(),
		events:       jobs.NewEventBus(1000),
		checker:      checker,
		logger:       logger,
		newConverter: newConverter,
		newPublisher: newPublisher,
	}

	settings, err := a.loadSettings()
	if err != nil {
		return nil, err
	}
	if err := a.configure(settings); err != nil {
		return nil, err
	}
	return a, nil
}

// Settings returns the effective settings, environment overrides included.
func (a *App) Settings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// GetSettings reloads and returns the effective settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return domain.Settings{}, err
	}

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()
	return settings, nil
}

// SaveSettings normalizes, validates and persists settings, then rebuilds the
// engine. It is rejected while a batch is converting.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	a.configMu.Lock()
	defer a.configMu.Unlock()

	if a.state.IsConverting() {
		return domain.Settings{}, jobs.ErrAlreadyConverting
	}

	normalized := normalizeSettings(settings)
	if err := convert.ValidateSettings(normalized.Defaults); err != nil {
		return domain.Settings{}, err
	}
	if err := a.store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	effective, err := config.ApplyEnvironment(normalized)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("apply environment: %w", err)
	}
	if err := a.configure(effective); err != nil {
		return domain.Settings{}, err
	}
	if a.checker != nil {
		report := a.checker.Run(effective)
		a.mu.Lock()
		a.diagnostics = report
		a.mu.Unlock()
	}
	return normalized, nil
}

// SetOutputDir makes path absolute, creates it when missing and persists it.
func (a *App) SetOutputDir(path string) (domain.Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Settings{}, fmt.Errorf("%w: output directory is required", convert.ErrConfiguration)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("resolve output directory: %w", err)
	}
	if err := ensureDir(abs); err != nil {
		return domain.Settings{}, err
	}

	// Start from the file so environment overrides are not persisted.
	stored, err := a.store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	stored.OutputDir = abs
	return a.SaveSettings(stored)
}

// GetDiagnostics returns the cached report, running the checks on first use.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	report := a.diagnostics
	settings := a.settings
	a.mu.Unlock()

	if !report.GeneratedAt.IsZero() || a.checker == nil {
		return report
	}
	report = a.checker.Run(settings)

	a.mu.Lock()
	a.diagnostics = report
	a.mu.Unlock()
	return report
}

// RefreshDiagnostics reloads settings and reruns the environment checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	if a.checker == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostics are not available")
	}
	settings, err := a.GetSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	report := a.checker.Run(settings)

	a.mu.Lock()
	a.diagnostics = report
	a.mu.Unlock()
	return report, nil
}

// StartConversion submits a batch and returns its id.
func (a *App) StartConversion(req ConversionRequest) (string, error) {
	a.configMu.Lock()
	defer a.configMu.Unlock()

	settings := a.Settings()

	outputDir := strings.TrimSpace(req.OutputDir)
	if outputDir == "" {
		outputDir = settings.OutputDir
	}
	outputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	if err := ensureDir(outputDir); err != nil {
		return "", err
	}

	conversion := settings.Defaults
	if req.Settings != nil {
		conversion = *req.Settings
	}

	a.mu.Lock()
	engine := a.engine
	a.mu.Unlock()
	return engine.Submit(req.Paths, outputDir, conversion)
}

// CancelConversion requests cooperative cancellation of the running batch.
func (a *App) CancelConversion() error {
	a.mu.Lock()
	engine := a.engine
	a.mu.Unlock()

	if err := engine.Cancel(); err != nil {
		return err
	}
	status := a.state.Current()
	event := jobs.EventFromStatus(jobs.EventTypeStatus, status)
	event.Message = "Cancellation requested"
	a.events.Publish(event)
	return nil
}

// CurrentStatus returns the latest progress snapshot.
func (a *App) CurrentStatus() domain.ConversionStatus {
	return a.state.Current()
}

// StatusEvents returns all events with sequence greater than sinceSeq.
func (a *App) StatusEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// WaitForBatch blocks until the running batch, if any, has finished.
func (a *App) WaitForBatch(ctx context.Context) (domain.ConversionStatus, error) {
	a.mu.Lock()
	engine := a.engine
	a.mu.Unlock()
	return engine.Wait(ctx)
}

// ListOutputs returns the animations in the output directory, newest first.
func (a *App) ListOutputs() ([]domain.OutputFile, error) {
	dir := a.Settings().OutputDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.OutputFile{}, nil
		}
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	files := make([]domain.OutputFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), convert.ContainerExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files = append(files, domain.OutputFile{
			Name:     entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	slices.SortStableFunc(files, func(x, y domain.OutputFile) int {
		return y.Modified.Compare(x.Modified)
	})
	return files, nil
}

// Publish records status as events: one per new file outcome, then a status
// event, or a result event once the batch has finished.
func (a *App) Publish(status domain.ConversionStatus) {
	a.mu.Lock()
	if status.BatchID != a.lastBatch {
		a.lastBatch = status.BatchID
		a.seen = 0
	}
	fresh := []domain.FileOutcome{}
	if len(status.Outcomes) > a.seen {
		fresh = status.Outcomes[a.seen:]
		a.seen = len(status.Outcomes)
	}
	a.mu.Unlock()

	for _, outcome := range fresh {
		eventType := jobs.EventTypeFile
		if outcome.Status == domain.FileOutcomeFailed {
			eventType = jobs.EventTypeError
		}
		event := jobs.EventFromStatus(eventType, status)
		event.Outcome = &outcome
		a.events.Publish(event)
	}

	if status.State == domain.BatchStateIdle {
		a.events.Publish(jobs.EventFromStatus(jobs.EventTypeResult, status))
		return
	}
	a.events.Publish(jobs.EventFromStatus(jobs.EventTypeStatus, status))
}

// loadSettings reads the store and overlays ANIMATOR_* variables.
func (a *App) loadSettings() (domain.Settings, error) {
	settings, err := a.store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings, err = config.ApplyEnvironment(settings)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("apply environment: %w", err)
	}
	return normalizeSettings(settings), nil
}

// configure builds a fresh engine for settings. The job state and event
// history are shared across engines.
func (a *App) configure(settings domain.Settings) error {
	opts := []convert.Option{
		convert.WithProgressSink(a),
		convert.WithLogger(a.logger),
	}
	if settings.Publish.Enabled() {
		publisher, err := a.newPublisher(context.Background(), settings.Publish)
		if err != nil {
			return fmt.Errorf("configure publishing: %w", err)
		}
		opts = append(opts, convert.WithPublisher(publisher))
	}
	engine := convert.NewEngine(a.newConverter(settings), a.state, opts...)

	a.mu.Lock()
	a.settings = settings
	a.engine = engine
	a.mu.Unlock()
	return nil
}

// normalizeSettings trims user inputs and fills empty tool paths.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.FFmpegPath = lo.Ternary(strings.TrimSpace(settings.FFmpegPath) == "", "ffmpeg", strings.TrimSpace(settings.FFmpegPath))
	settings.FFprobePath = lo.Ternary(strings.TrimSpace(settings.FFprobePath) == "", "ffprobe", strings.TrimSpace(settings.FFprobePath))
	settings.Publish.Bucket = strings.TrimSpace(settings.Publish.Bucket)
	settings.Publish.Prefix = strings.TrimSpace(settings.Publish.Prefix)
	settings.Publish.Region = strings.TrimSpace(settings.Publish.Region)
	settings.Defaults = convert.NormalizeSettings(settings.Defaults)
	return settings
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output directory: %v", convert.ErrConfiguration, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: output directory unavailable: %v", convert.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: output path is not a directory: %s", convert.ErrConfiguration, dir)
	}
	return nil
}
