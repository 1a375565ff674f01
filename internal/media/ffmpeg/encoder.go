package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"media-animator/internal/convert"
	"media-animator/internal/media/webp"
)

const stillPattern = "frame_%06d.webp"

// Encode writes req.Frames as one animated WebP at req.OutputPath.
//
// Every frame is encoded by libwebp in a single ffmpeg run, then the stills are
// muxed into ANMF frames so the artifact holds exactly len(req.Frames) frames.
func (t *Toolchain) Encode(ctx context.Context, req convert.EncodeRequest) error {
	if len(req.Frames) == 0 {
		return fmt.Errorf("%w: empty frame batch", convert.ErrEncode)
	}
	bounds := req.Frames[0].Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: empty frame size %dx%d", convert.ErrEncode, width, height)
	}
	for i, f := range req.Frames {
		if f.Bounds().Dx() != width || f.Bounds().Dy() != height {
			return fmt.Errorf("%w: frame %d is %dx%d, want %dx%d",
				convert.ErrEncode, i, f.Bounds().Dx(), f.Bounds().Dy(), width, height)
		}
	}
	if _, err := t.stat(req.OutputPath); err == nil {
		return fmt.Errorf("%w: %s already exists", convert.ErrEncode, req.OutputPath)
	}

	tempDir, err := t.mkdirTemp("", "media-animator-*")
	if err != nil {
		return &ToolError{Stage: "encode", Message: "failed to create temporary workspace", Err: err}
	}
	defer func() {
		if err := t.removeAll(tempDir); err != nil {
			t.logger.WithError(err).WithField("dir", tempDir).Warn("temporary workspace not removed")
		}
	}()

	pattern := filepath.Join(tempDir, stillPattern)
	if err := t.encodeStills(ctx, req, width, height, pattern); err != nil {
		return err
	}

	frames := make([]webp.Frame, 0, len(req.Frames))
	for i := 1; i <= len(req.Frames); i++ {
		data, err := t.readFile(fmt.Sprintf(pattern, i))
		if err != nil {
			return &ToolError{
				Stage:   "encode",
				Message: fmt.Sprintf("ffmpeg produced %d of %d frames", i-1, len(req.Frames)),
				Err:     err,
			}
		}
		frame, err := webp.ParseStill(data)
		if err != nil {
			return &ToolError{Stage: "encode", Message: fmt.Sprintf("frame %d is not a valid still", i), Err: err}
		}
		frame.DurationMillis = req.FrameDurationMillis
		frames = append(frames, frame)
	}
	if _, err := t.stat(fmt.Sprintf(pattern, len(req.Frames)+1)); err == nil {
		return &ToolError{Stage: "encode", Message: fmt.Sprintf("ffmpeg produced more than %d frames", len(req.Frames))}
	}

	var buf bytes.Buffer
	if err := webp.EncodeAnimation(&buf, frames, webp.AnimationOptions{LoopCount: req.LoopCount}); err != nil {
		return &ToolError{Stage: "mux", Message: "cannot assemble animation", Err: err}
	}
	info, err := webp.Inspect(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return &ToolError{Stage: "mux", Message: "assembled animation is unreadable", Err: err}
	}
	if len(info.Frames) != len(req.Frames) {
		return &ToolError{
			Stage:   "mux",
			Message: fmt.Sprintf("animation holds %d frames, want %d", len(info.Frames), len(req.Frames)),
		}
	}

	if err := t.writeNew(req.OutputPath, buf.Bytes()); err != nil {
		return &ToolError{Stage: "write", Message: fmt.Sprintf("cannot write %s", req.OutputPath), Err: err}
	}

	t.logger.WithFields(logrus.Fields{
		"output": req.OutputPath,
		"frames": len(frames),
		"bytes":  buf.Len(),
	}).Debug("animation written")
	return nil
}

// encodeStills pipes every frame as raw RGBA into one ffmpeg libwebp run.
func (t *Toolchain) encodeStills(ctx context.Context, req convert.EncodeRequest, width, height int, pattern string) error {
	pr, pw := io.Pipe()
	writeDone := make(chan error, 1)
	go func() {
		err := writeFrames(pw, req.Frames)
		pw.CloseWithError(err)
		writeDone <- err
	}()

	args := buildEncodeArgs(width, height, req.Lossless, req.Quality, pattern)
	res, runErr := t.runner.Run(ctx, command{Name: t.ffmpegPath, Args: args, Stdin: pr})
	// Unblocks the writer if ffmpeg exited before reading all input.
	pr.CloseWithError(io.ErrClosedPipe)
	writeErr := <-writeDone

	log := CommandLog{
		Command:  t.ffmpegPath,
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
	}
	if runErr != nil {
		return &ToolError{Stage: "encode", Message: "ffmpeg webp encoding failed", CommandLog: log, Err: runErr}
	}
	if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
		return &ToolError{Stage: "encode", Message: "cannot stream frames to ffmpeg", CommandLog: log, Err: writeErr}
	}
	return nil
}

// writeFrames streams frames as tightly packed non-premultiplied RGBA rows.
func writeFrames(w io.Writer, frames []image.Image) error {
	for _, f := range frames {
		img, ok := f.(*image.NRGBA)
		if !ok || img.Rect.Min != (image.Point{}) {
			img = imaging.Clone(f)
		}
		rowLen := img.Rect.Dx() * 4
		for y := 0; y < img.Rect.Dy(); y++ {
			off := y * img.Stride
			if _, err := w.Write(img.Pix[off : off+rowLen]); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeNew creates path exclusively so an existing artifact is never replaced.
func (t *Toolchain) writeNew(path string, data []byte) error {
	f, err := t.openFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func buildEncodeArgs(width, height int, lossless bool, quality int, pattern string) []string {
	losslessFlag := "0"
	if lossless {
		losslessFlag = "1"
	}
	return []string{
		"-hide_banner",
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-framerate", "1",
		"-i", "pipe:0",
		"-c:v", "libwebp",
		"-lossless", losslessFlag,
		"-quality", strconv.Itoa(quality),
		"-compression_level", "0",
		"-vsync", "passthrough",
		"-f", "image2",
		pattern,
	}
}
