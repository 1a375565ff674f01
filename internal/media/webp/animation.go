package webp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame is one encoded image ready to be placed on an animation canvas.
type Frame struct {
	Width          int
	Height         int
	HasAlpha       bool
	DurationMillis int
	// Bitstream holds the optional ALPH chunk followed by one VP8 or VP8L chunk.
	Bitstream []Chunk
}

// AnimationOptions controls the ANIM chunk.
type AnimationOptions struct {
	// LoopCount is the number of times to play; 0 loops forever.
	LoopCount int
	// Background is the canvas color in ARGB order.
	Background uint32
}

// ParseStill extracts the image bitstream of a single-image WebP file.
func ParseStill(data []byte) (Frame, error) {
	chunks, err := readChunks(bytes.NewReader(data))
	if err != nil {
		return Frame{}, err
	}

	var (
		frame         Frame
		canvasW       int
		canvasH       int
		haveImage     bool
		extendedAlpha bool
	)
	for _, c := range chunks {
		switch c.ID {
		case fccVP8X:
			if len(c.Data) < 10 {
				return Frame{}, fmt.Errorf("webp: short VP8X chunk")
			}
			if c.Data[0]&flagAnimation != 0 {
				return Frame{}, fmt.Errorf("webp: expected a still image, got an animation")
			}
			extendedAlpha = c.Data[0]&flagAlpha != 0
			canvasW = uint24(c.Data[4:7]) + 1
			canvasH = uint24(c.Data[7:10]) + 1
		case fccANIM, fccANMF:
			return Frame{}, fmt.Errorf("webp: expected a still image, got an animation")
		case fccALPH:
			frame.HasAlpha = true
			frame.Bitstream = append(frame.Bitstream, c)
		case fccVP8, fccVP8L:
			if haveImage {
				return Frame{}, fmt.Errorf("webp: multiple image bitstreams in still")
			}
			w, h, alpha, err := bitstreamSize(c)
			if err != nil {
				return Frame{}, err
			}
			haveImage = true
			frame.Width, frame.Height = w, h
			frame.HasAlpha = frame.HasAlpha || alpha
			frame.Bitstream = append(frame.Bitstream, c)
		}
	}
	if !haveImage {
		return Frame{}, fmt.Errorf("webp: no image bitstream found")
	}
	if canvasW > 0 {
		frame.Width, frame.Height = canvasW, canvasH
	}
	frame.HasAlpha = frame.HasAlpha || extendedAlpha
	return frame, nil
}

// EncodeAnimation writes frames as one animated WebP file.
func EncodeAnimation(w io.Writer, frames []Frame, opts AnimationOptions) error {
	if len(frames) == 0 {
		return errors.New("webp: no frames to encode")
	}
	if opts.LoopCount < 0 || opts.LoopCount > 0xffff {
		return fmt.Errorf("webp: loop count %d out of range", opts.LoopCount)
	}

	canvasW, canvasH := 0, 0
	hasAlpha := false
	for i, f := range frames {
		if f.Width <= 0 || f.Height <= 0 || f.Width > maxUint24+1 || f.Height > maxUint24+1 {
			return fmt.Errorf("webp: frame %d has invalid size %dx%d", i, f.Width, f.Height)
		}
		if f.DurationMillis < 0 || f.DurationMillis > maxUint24 {
			return fmt.Errorf("webp: frame %d duration %dms out of range", i, f.DurationMillis)
		}
		if len(f.Bitstream) == 0 {
			return fmt.Errorf("webp: frame %d has no bitstream", i)
		}
		canvasW = max(canvasW, f.Width)
		canvasH = max(canvasH, f.Height)
		hasAlpha = hasAlpha || f.HasAlpha
	}

	var body bytes.Buffer
	body.Write(fccWEBP[:])

	vp8x := make([]byte, 10)
	vp8x[0] = flagAnimation
	if hasAlpha {
		vp8x[0] |= flagAlpha
	}
	putUint24(vp8x[4:7], canvasW-1)
	putUint24(vp8x[7:10], canvasH-1)
	appendChunk(&body, Chunk{ID: fccVP8X, Data: vp8x})

	anim := make([]byte, 6)
	// ARGB stored little-endian yields the [B, G, R, A] byte order ANIM expects.
	binary.LittleEndian.PutUint32(anim[0:4], opts.Background)
	binary.LittleEndian.PutUint16(anim[4:6], uint16(opts.LoopCount))
	appendChunk(&body, Chunk{ID: fccANIM, Data: anim})

	for _, f := range frames {
		var payload bytes.Buffer
		header := make([]byte, 16)
		// X and Y offsets stay zero; every frame covers the canvas origin.
		putUint24(header[6:9], f.Width-1)
		putUint24(header[9:12], f.Height-1)
		putUint24(header[12:15], f.DurationMillis)
		header[15] = anmfNoBlend
		payload.Write(header)
		for _, c := range f.Bitstream {
			appendChunk(&payload, c)
		}
		appendChunk(&body, Chunk{ID: fccANMF, Data: payload.Bytes()})
	}

	var riffHeader [8]byte
	copy(riffHeader[:4], fccRIFF[:])
	binary.LittleEndian.PutUint32(riffHeader[4:], uint32(body.Len()))
	if _, err := w.Write(riffHeader[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}
