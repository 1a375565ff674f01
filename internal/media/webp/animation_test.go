package webp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// buildFile wraps chunks in a RIFF/WEBP header.
func buildFile(chunks ...Chunk) []byte {
	var body bytes.Buffer
	body.Write(fccWEBP[:])
	for _, c := range chunks {
		appendChunk(&body, c)
	}
	var out bytes.Buffer
	out.Write(fccRIFF[:])
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(body.Len()))
	out.Write(size[:])
	out.Write(body.Bytes())
	return out.Bytes()
}

// vp8lChunk fakes a lossless bitstream; only the header is meaningful.
func vp8lChunk(w, h int, filler int) Chunk {
	data := make([]byte, 5+filler)
	data[0] = 0x2f
	binary.LittleEndian.PutUint32(data[1:5], uint32(w-1)|uint32(h-1)<<14)
	for i := 5; i < len(data); i++ {
		data[i] = byte(i)
	}
	return Chunk{ID: fccVP8L, Data: data}
}

// vp8Chunk fakes a lossy key frame header.
func vp8Chunk(w, h int) Chunk {
	data := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0, 0, 0, 0, 0xde, 0xad}
	binary.LittleEndian.PutUint16(data[6:8], uint16(w))
	binary.LittleEndian.PutUint16(data[8:10], uint16(h))
	return Chunk{ID: fccVP8, Data: data}
}

// TestParseStillLossless reads dimensions from the VP8L header.
func TestParseStillLossless(t *testing.T) {
	frame, err := ParseStill(buildFile(vp8lChunk(320, 240, 3)))
	if err != nil {
		t.Fatalf("ParseStill() error = %v", err)
	}
	if frame.Width != 320 || frame.Height != 240 {
		t.Fatalf("size = %dx%d, want 320x240", frame.Width, frame.Height)
	}
	if frame.HasAlpha {
		t.Fatal("expected opaque frame")
	}
	if len(frame.Bitstream) != 1 || frame.Bitstream[0].ID != fccVP8L {
		t.Fatalf("bitstream = %+v", frame.Bitstream)
	}
}

// TestParseStillExtendedWithAlpha keeps ALPH and uses the VP8X canvas.
func TestParseStillExtendedWithAlpha(t *testing.T) {
	vp8x := make([]byte, 10)
	vp8x[0] = flagAlpha
	putUint24(vp8x[4:7], 63)
	putUint24(vp8x[7:10], 47)

	frame, err := ParseStill(buildFile(
		Chunk{ID: fccVP8X, Data: vp8x},
		Chunk{ID: fccALPH, Data: []byte{0x00, 0x01, 0x02}},
		vp8Chunk(64, 48),
	))
	if err != nil {
		t.Fatalf("ParseStill() error = %v", err)
	}
	if frame.Width != 64 || frame.Height != 48 {
		t.Fatalf("size = %dx%d, want 64x48", frame.Width, frame.Height)
	}
	if !frame.HasAlpha {
		t.Fatal("expected alpha")
	}
	if len(frame.Bitstream) != 2 || frame.Bitstream[0].ID != fccALPH || frame.Bitstream[1].ID != fccVP8 {
		t.Fatalf("bitstream order = %+v", frame.Bitstream)
	}
}

// TestParseStillRejectsNonWebP checks container validation.
func TestParseStillRejectsNonWebP(t *testing.T) {
	if _, err := ParseStill([]byte("GIF89a not a webp")); !errors.Is(err, ErrNotWebP) {
		t.Fatalf("error = %v, want ErrNotWebP", err)
	}
}

// TestEncodeAnimationRoundTrip checks no frames are lost between mux and inspect.
func TestEncodeAnimationRoundTrip(t *testing.T) {
	still, err := ParseStill(buildFile(vp8lChunk(4, 3, 3)))
	if err != nil {
		t.Fatalf("ParseStill() error = %v", err)
	}

	const n = 7
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = still
		frames[i].DurationMillis = 100
	}

	var buf bytes.Buffer
	if err := EncodeAnimation(&buf, frames, AnimationOptions{}); err != nil {
		t.Fatalf("EncodeAnimation() error = %v", err)
	}

	info, err := Inspect(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if !info.Animated {
		t.Fatal("expected animated flag")
	}
	if info.LoopCount != 0 {
		t.Fatalf("loop count = %d, want 0", info.LoopCount)
	}
	if info.CanvasWidth != 4 || info.CanvasHeight != 3 {
		t.Fatalf("canvas = %dx%d, want 4x3", info.CanvasWidth, info.CanvasHeight)
	}
	if len(info.Frames) != n {
		t.Fatalf("frames = %d, want %d", len(info.Frames), n)
	}
	for i, f := range info.Frames {
		if f.Width != 4 || f.Height != 3 || f.DurationMillis != 100 {
			t.Fatalf("frame %d = %+v", i, f)
		}
	}
}

// TestEncodeAnimationLoopCount checks the ANIM loop field.
func TestEncodeAnimationLoopCount(t *testing.T) {
	still, err := ParseStill(buildFile(vp8Chunk(16, 16)))
	if err != nil {
		t.Fatalf("ParseStill() error = %v", err)
	}
	still.DurationMillis = 40

	var buf bytes.Buffer
	if err := EncodeAnimation(&buf, []Frame{still, still}, AnimationOptions{LoopCount: 3}); err != nil {
		t.Fatalf("EncodeAnimation() error = %v", err)
	}
	info, err := Inspect(&buf)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.LoopCount != 3 {
		t.Fatalf("loop count = %d, want 3", info.LoopCount)
	}
}

// TestEncodeAnimationRejectsInvalidInput checks argument validation.
func TestEncodeAnimationRejectsInvalidInput(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeAnimation(&buf, nil, AnimationOptions{}); err == nil {
		t.Fatal("expected error for empty frame list")
	}

	still, err := ParseStill(buildFile(vp8lChunk(2, 2, 0)))
	if err != nil {
		t.Fatalf("ParseStill() error = %v", err)
	}
	still.DurationMillis = maxUint24 + 1
	if err := EncodeAnimation(&buf, []Frame{still}, AnimationOptions{}); err == nil {
		t.Fatal("expected error for oversized duration")
	}
}

// TestInspectStill reports a single frame for simple files.
func TestInspectStill(t *testing.T) {
	info, err := Inspect(bytes.NewReader(buildFile(vp8lChunk(10, 20, 1))))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Animated || len(info.Frames) != 1 {
		t.Fatalf("info = %+v", info)
	}
	if info.CanvasWidth != 10 || info.CanvasHeight != 20 {
		t.Fatalf("canvas = %dx%d, want 10x20", info.CanvasWidth, info.CanvasHeight)
	}
}
