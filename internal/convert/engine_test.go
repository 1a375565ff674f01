package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"media-animator/internal/domain"
	"media-animator/internal/jobs"
)

// funcConverter delegates to injected behavior.
type funcConverter struct {
	convert func(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error)
}

func (f *funcConverter) ConvertFile(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error) {
	return f.convert(ctx, source, outputDir, settings)
}

// recordingSink keeps every published status.
type recordingSink struct {
	mu       sync.Mutex
	statuses []domain.ConversionStatus
}

func (s *recordingSink) Publish(status domain.ConversionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) all() []domain.ConversionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ConversionStatus(nil), s.statuses...)
}

// fakePublisher returns a fixed url or error.
type fakePublisher struct {
	err   error
	calls int
}

func (p *fakePublisher) Publish(ctx context.Context, path string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return "s3://bucket/" + filepath.Base(path), nil
}

func waitIdle(t *testing.T, engine *Engine) domain.ConversionStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := engine.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status.IsConverting {
		t.Fatalf("status still converting: %+v", status)
	}
	return status
}

// corruptAwareConverter opens every path except ones containing "corrupt".
func corruptAwareConverter() *Converter {
	opener := &fakeOpener{open: func(ctx context.Context, path string) (Decoder, error) {
		if strings.Contains(path, "corrupt") {
			return nil, errors.New("moov atom not found")
		}
		return newFakeDecoder(VideoInfo{Path: path, NativeFPS: 30, TotalFrames: 30, Width: 8, Height: 8}), nil
	}}
	return NewConverter(opener, &fakeEncoder{}, noReclaim(), quietLogger())
}

// TestEngineBatchContinuesAfterInvalidSource checks the three-file scenario.
func TestEngineBatchContinuesAfterInvalidSource(t *testing.T) {
	outDir := t.TempDir()
	sink := &recordingSink{}
	engine := NewEngine(corruptAwareConverter(), jobs.NewManager(),
		WithProgressSink(sink),
		WithLogger(quietLogger()),
		WithIDGenerator(func() string { return "batch-1" }),
	)

	paths := []string{"/in/first.mp4", "/in/corrupt.mp4", "/in/third.mp4"}
	id, err := engine.Submit(paths, outDir, validSettings())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id != "batch-1" {
		t.Fatalf("batch id = %q, want batch-1", id)
	}

	status := waitIdle(t, engine)
	if status.CompletedFiles != 2 || status.TotalFiles != 3 {
		t.Fatalf("completed = %d/%d, want 2/3", status.CompletedFiles, status.TotalFiles)
	}
	if status.Progress != 100 {
		t.Fatalf("progress = %d, want 100", status.Progress)
	}
	if !strings.Contains(status.Message, "corrupt.mp4 (invalid_source)") {
		t.Fatalf("message = %q, want failure of corrupt.mp4", status.Message)
	}
	if !strings.Contains(status.Message, outDir) {
		t.Fatalf("message = %q, want output dir", status.Message)
	}

	wantStatuses := []domain.FileOutcomeStatus{domain.FileOutcomeConverted, domain.FileOutcomeFailed, domain.FileOutcomeConverted}
	if len(status.Outcomes) != len(wantStatuses) {
		t.Fatalf("outcomes = %d, want %d", len(status.Outcomes), len(wantStatuses))
	}
	for i, want := range wantStatuses {
		if status.Outcomes[i].Status != want {
			t.Fatalf("outcome %d = %s, want %s", i, status.Outcomes[i].Status, want)
		}
	}
	if status.Outcomes[1].ErrorKind != string(KindInvalidSource) {
		t.Fatalf("error kind = %q, want invalid_source", status.Outcomes[1].ErrorKind)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(entries))
	}

	published := sink.all()
	if len(published) == 0 || published[len(published)-1].IsConverting {
		t.Fatalf("last published status should be idle, got %d statuses", len(published))
	}
	for i := 1; i < len(published); i++ {
		if published[i].Progress < published[i-1].Progress {
			t.Fatalf("progress went backwards: %d -> %d", published[i-1].Progress, published[i].Progress)
		}
	}
}

// TestEngineAllConverted checks the success summary.
func TestEngineAllConverted(t *testing.T) {
	outDir := t.TempDir()
	engine := NewEngine(corruptAwareConverter(), jobs.NewManager(), WithLogger(quietLogger()))

	if _, err := engine.Submit([]string{"/in/a.mp4", "/in/a.mov"}, outDir, validSettings()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	status := waitIdle(t, engine)
	want := "All 2 files converted. Saved to " + outDir
	if status.Message != want {
		t.Fatalf("message = %q, want %q", status.Message, want)
	}
	if status.Outcomes[1].Output != filepath.Join(outDir, "a_1.webp") {
		t.Fatalf("second output = %q, want a_1.webp", status.Outcomes[1].Output)
	}
}

// TestEngineRejectsSecondBatch checks that Submit refuses while a batch runs.
func TestEngineRejectsSecondBatch(t *testing.T) {
	release := make(chan struct{})
	converter := &funcConverter{convert: func(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error) {
		<-release
		return FileResult{Source: source, Output: filepath.Join(outputDir, "x.webp")}, nil
	}}
	engine := NewEngine(converter, jobs.NewManager(), WithLogger(quietLogger()))
	outDir := t.TempDir()

	if _, err := engine.Submit([]string{"a.mp4"}, outDir, validSettings()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := engine.Submit([]string{"b.mp4"}, outDir, validSettings()); !errors.Is(err, jobs.ErrAlreadyConverting) {
		t.Fatalf("second Submit() error = %v, want ErrAlreadyConverting", err)
	}

	close(release)
	waitIdle(t, engine)

	if _, err := engine.Submit([]string{"c.mp4"}, outDir, validSettings()); err != nil {
		t.Fatalf("Submit() after idle error = %v", err)
	}
	waitIdle(t, engine)
}

// TestEngineRejectsInvalidSubmission checks configuration errors refuse the batch.
func TestEngineRejectsInvalidSubmission(t *testing.T) {
	called := false
	converter := &funcConverter{convert: func(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error) {
		called = true
		return FileResult{}, nil
	}}
	state := jobs.NewManager()
	engine := NewEngine(converter, state, WithLogger(quietLogger()))
	outDir := t.TempDir()
	notDir := filepath.Join(outDir, "file.txt")
	mustWriteFile(t, notDir)

	badSettings := validSettings()
	badSettings.SizeAxis = domain.SizeAxisWidth

	tests := []struct {
		name     string
		paths    []string
		out      string
		settings domain.ConversionSettings
	}{
		{name: "resize without size", paths: []string{"a.mp4"}, out: outDir, settings: badSettings},
		{name: "no files", paths: nil, out: outDir, settings: validSettings()},
		{name: "output is a file", paths: []string{"a.mp4"}, out: notDir, settings: validSettings()},
		{name: "output missing", paths: []string{"a.mp4"}, out: filepath.Join(outDir, "missing"), settings: validSettings()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Submit(tt.paths, tt.out, tt.settings); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Submit() error = %v, want ErrConfiguration", err)
			}
		})
	}
	if state.IsConverting() || called {
		t.Fatal("no batch should have started")
	}
}

// TestEngineAbortsWhenOutputDirDisappears checks the batch-level terminal failure.
func TestEngineAbortsWhenOutputDirDisappears(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	calls := 0
	converter := &funcConverter{convert: func(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error) {
		calls++
		if err := os.RemoveAll(outputDir); err != nil {
			t.Errorf("remove output dir: %v", err)
		}
		return FileResult{Source: source, Output: filepath.Join(outputDir, "a.webp"), Frames: 1}, nil
	}}
	engine := NewEngine(converter, jobs.NewManager(), WithLogger(quietLogger()))

	if _, err := engine.Submit([]string{"a.mp4", "b.mp4", "c.mp4"}, outDir, validSettings()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	status := waitIdle(t, engine)

	if calls != 1 {
		t.Fatalf("converter calls = %d, want 1", calls)
	}
	if !strings.Contains(status.Message, "aborted") {
		t.Fatalf("message = %q, want abort summary", status.Message)
	}
	if status.CompletedFiles != 1 {
		t.Fatalf("completed = %d, want 1", status.CompletedFiles)
	}
	if len(status.Outcomes) != 3 || status.Outcomes[1].Status != domain.FileOutcomeSkipped || status.Outcomes[2].Status != domain.FileOutcomeSkipped {
		t.Fatalf("outcomes = %+v, want converted, skipped, skipped", status.Outcomes)
	}
}

// TestEngineAbortsOnPanic checks an orchestration panic stops the batch cleanly.
func TestEngineAbortsOnPanic(t *testing.T) {
	converter := &funcConverter{convert: func(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error) {
		if source == "b.mp4" {
			panic("decoder state corrupted")
		}
		return FileResult{Source: source, Output: filepath.Join(outputDir, source+".webp")}, nil
	}}
	engine := NewEngine(converter, jobs.NewManager(), WithLogger(quietLogger()))

	if _, err := engine.Submit([]string{"a.mp4", "b.mp4", "c.mp4"}, t.TempDir(), validSettings()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	status := waitIdle(t, engine)

	if status.Outcomes[1].Status != domain.FileOutcomeFailed || status.Outcomes[2].Status != domain.FileOutcomeSkipped {
		t.Fatalf("outcomes = %+v", status.Outcomes)
	}
	if !strings.Contains(status.Message, "aborted") || !strings.Contains(status.Message, "b.mp4") {
		t.Fatalf("message = %q", status.Message)
	}
}

// TestEngineCancel checks cooperative cancellation skips the remaining files.
func TestEngineCancel(t *testing.T) {
	started := make(chan struct{})
	converter := &funcConverter{convert: func(ctx context.Context, source, outputDir string, settings domain.ConversionSettings) (FileResult, error) {
		close(started)
		<-ctx.Done()
		return FileResult{}, &Error{Kind: KindCancelled, Source: source, Err: ctx.Err()}
	}}
	engine := NewEngine(converter, jobs.NewManager(), WithLogger(quietLogger()))

	if err := engine.Cancel(); !errors.Is(err, jobs.ErrNotConverting) {
		t.Fatalf("Cancel() on idle = %v, want ErrNotConverting", err)
	}

	if _, err := engine.Submit([]string{"a.mp4", "b.mp4"}, t.TempDir(), validSettings()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started
	if err := engine.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	status := waitIdle(t, engine)

	if status.CompletedFiles != 0 {
		t.Fatalf("completed = %d, want 0", status.CompletedFiles)
	}
	for i, o := range status.Outcomes {
		if o.Status != domain.FileOutcomeSkipped {
			t.Fatalf("outcome %d = %s, want skipped", i, o.Status)
		}
	}
	if !strings.HasPrefix(status.Message, "Conversion cancelled") {
		t.Fatalf("message = %q", status.Message)
	}
}

// TestEnginePublishesArtifacts checks publish results land on the outcome.
func TestEnginePublishesArtifacts(t *testing.T) {
	publisher := &fakePublisher{}
	engine := NewEngine(corruptAwareConverter(), jobs.NewManager(), WithPublisher(publisher), WithLogger(quietLogger()))

	if _, err := engine.Submit([]string{"/in/a.mp4"}, t.TempDir(), validSettings()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	status := waitIdle(t, engine)
	if status.Outcomes[0].RemoteURL != "s3://bucket/a.webp" {
		t.Fatalf("remote url = %q", status.Outcomes[0].RemoteURL)
	}

	publisher.err = errors.New("access denied")
	if _, err := engine.Submit([]string{"/in/b.mp4"}, t.TempDir(), validSettings()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	status = waitIdle(t, engine)
	if status.Outcomes[0].Status != domain.FileOutcomeConverted {
		t.Fatalf("status = %s, want converted despite publish failure", status.Outcomes[0].Status)
	}
	if status.Outcomes[0].PublishError != "access denied" {
		t.Fatalf("publish error = %q", status.Outcomes[0].PublishError)
	}
	if publisher.calls != 2 {
		t.Fatalf("publish calls = %d, want 2", publisher.calls)
	}
}
