package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"media-animator/internal/convert"
)

var errDecoderClosed = errors.New("decoder closed")

// Open probes path and starts one ffmpeg process streaming raw RGBA frames.
func (t *Toolchain) Open(ctx context.Context, path string) (convert.Decoder, error) {
	if _, err := t.stat(path); err != nil {
		return nil, &ToolError{
			Stage:   "open",
			Message: fmt.Sprintf("cannot access source video: %s", path),
			Err:     err,
		}
	}

	info, err := t.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, &ToolError{
			Stage:   "probe",
			Message: fmt.Sprintf("invalid frame size %dx%d", info.Width, info.Height),
		}
	}

	args := buildDecodeArgs(path)
	proc, err := t.runner.Start(ctx, t.ffmpegPath, args...)
	if err != nil {
		return nil, &ToolError{
			Stage:      "decode",
			Message:    "cannot start ffmpeg decoder",
			CommandLog: CommandLog{Command: t.ffmpegPath, Args: args, ExitCode: -1},
			Err:        err,
		}
	}

	t.logger.WithFields(logrus.Fields{
		"file":   path,
		"fps":    info.NativeFPS,
		"frames": info.TotalFrames,
		"width":  info.Width,
		"height": info.Height,
	}).Debug("decoder started")

	return &decoder{
		info:      info,
		proc:      proc,
		frameSize: info.Width * info.Height * 4,
		logger:    t.logger,
	}, nil
}

// decoder reads frames sequentially from the rawvideo stream.
// Seeking is forward-only: skipped frames are read and discarded.
type decoder struct {
	info      convert.VideoInfo
	proc      process
	frameSize int
	logger    logrus.FieldLogger

	mu       sync.Mutex
	next     int
	broken   error
	closed   bool
	closeErr error
	once     sync.Once
}

func (d *decoder) Info() convert.VideoInfo {
	return d.info
}

// ReadFrame returns a freshly allocated frame for index.
func (d *decoder) ReadFrame(index int) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errDecoderClosed
	}
	if d.broken != nil {
		return nil, d.broken
	}
	if index < d.next {
		return nil, fmt.Errorf("frame %d already passed, decoder is at %d", index, d.next)
	}
	if index >= d.info.TotalFrames {
		return nil, fmt.Errorf("frame %d out of range (%d frames)", index, d.info.TotalFrames)
	}

	stdout := d.proc.Stdout()
	for d.next < index {
		if _, err := io.CopyN(io.Discard, stdout, int64(d.frameSize)); err != nil {
			d.broken = fmt.Errorf("skip to frame %d: %w", index, err)
			return nil, d.broken
		}
		d.next++
	}

	img := image.NewNRGBA(image.Rect(0, 0, d.info.Width, d.info.Height))
	if _, err := io.ReadFull(stdout, img.Pix); err != nil {
		d.broken = fmt.Errorf("read frame %d: %w", index, err)
		return nil, d.broken
	}
	d.next++
	return img, nil
}

// Close stops ffmpeg and reaps the process. Later calls return the first result.
func (d *decoder) Close() error {
	d.once.Do(func() {
		// Kill first so a blocked read returns and releases mu.
		if err := d.proc.Kill(); err != nil {
			d.closeErr = err
		}
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		// The exit status reflects the kill and is not a decode failure.
		if err := d.proc.Wait(); err != nil {
			d.logger.WithError(err).WithField("stderr", d.proc.Stderr()).Debug("decoder exited")
		}
	})
	return d.closeErr
}

func buildDecodeArgs(path string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-v", "error",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vsync", "passthrough",
		"pipe:1",
	}
}
