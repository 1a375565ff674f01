package convert

import (
	"context"
	"fmt"
	"image"
	"time"
)

// VideoInfo holds the stream properties the sampler depends on.
type VideoInfo struct {
	Path        string
	NativeFPS   float64
	TotalFrames int
	Width       int
	Height      int
}

// Duration is TotalFrames / NativeFPS.
func (v VideoInfo) Duration() time.Duration {
	if v.NativeFPS <= 0 {
		return 0
	}
	return time.Duration(float64(v.TotalFrames) / v.NativeFPS * float64(time.Second))
}

// Validate rejects streams without a usable frame rate or frame count.
func (v VideoInfo) Validate() error {
	if v.NativeFPS <= 0 || v.TotalFrames <= 0 {
		return &Error{
			Kind:    KindInvalidSource,
			Source:  v.Path,
			Message: fmt.Sprintf("unusable stream (fps=%v frames=%d)", v.NativeFPS, v.TotalFrames),
		}
	}
	return nil
}

// Decoder reads frames from one opened video.
//
// ReadFrame returns an image the caller owns; it must not share memory with
// buffers the decoder reuses. Close releases the underlying resources and is
// safe to call more than once.
type Decoder interface {
	Info() VideoInfo
	ReadFrame(index int) (image.Image, error)
	Close() error
}

// Opener opens decoders for source paths.
type Opener interface {
	Open(ctx context.Context, path string) (Decoder, error)
}

// SampledFrame is a decoded frame and its index in the source stream.
type SampledFrame struct {
	Index int
	Image image.Image
}

// FrameSampler walks a decoder at a fixed stride. It does not close the decoder.
type FrameSampler struct {
	dec      Decoder
	interval int
	total    int
	next     int
	yielded  int
	skipped  int
	lastErr  error
}

// NewFrameSampler samples indices 0, interval, 2*interval, ... below the frame count.
func NewFrameSampler(dec Decoder, interval int) *FrameSampler {
	return &FrameSampler{
		dec:      dec,
		interval: max(1, interval),
		total:    dec.Info().TotalFrames,
	}
}

// Next returns the next readable frame. Frames that fail to decode are skipped.
func (s *FrameSampler) Next() (SampledFrame, bool) {
	for s.next < s.total {
		index := s.next
		s.next += s.interval

		img, err := s.dec.ReadFrame(index)
		if err != nil || img == nil {
			s.skipped++
			s.lastErr = err
			continue
		}
		s.yielded++
		return SampledFrame{Index: index, Image: img}, true
	}
	return SampledFrame{}, false
}

// Skipped is the number of indices dropped because the read failed.
func (s *FrameSampler) Skipped() int {
	return s.skipped
}

// Err reports NoFramesExtracted once the sequence is exhausted without a frame.
func (s *FrameSampler) Err() error {
	if s.next < s.total || s.yielded > 0 {
		return nil
	}
	msg := "no readable frames"
	if s.skipped > 0 {
		msg = fmt.Sprintf("all %d sampled frames failed to decode", s.skipped)
	}
	return &Error{
		Kind:    KindNoFrames,
		Source:  s.dec.Info().Path,
		Message: msg,
		Err:     s.lastErr,
	}
}
