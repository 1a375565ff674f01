package webp

import (
	"fmt"
	"io"
)

// FrameInfo describes one frame of an inspected file.
type FrameInfo struct {
	Width          int
	Height         int
	DurationMillis int
}

// Info summarizes the structure of a WebP file.
type Info struct {
	CanvasWidth  int
	CanvasHeight int
	Animated     bool
	LoopCount    int
	Frames       []FrameInfo
}

// Inspect reads the container structure of a WebP file without decoding pixels.
func Inspect(r io.Reader) (Info, error) {
	chunks, err := readChunks(r)
	if err != nil {
		return Info{}, err
	}

	var info Info
	for _, c := range chunks {
		switch c.ID {
		case fccVP8X:
			if len(c.Data) < 10 {
				return Info{}, fmt.Errorf("webp: short VP8X chunk")
			}
			info.Animated = c.Data[0]&flagAnimation != 0
			info.CanvasWidth = uint24(c.Data[4:7]) + 1
			info.CanvasHeight = uint24(c.Data[7:10]) + 1
		case fccANIM:
			if len(c.Data) < 6 {
				return Info{}, fmt.Errorf("webp: short ANIM chunk")
			}
			info.LoopCount = int(c.Data[4]) | int(c.Data[5])<<8
		case fccANMF:
			frame, err := inspectANMF(c.Data)
			if err != nil {
				return Info{}, err
			}
			info.Frames = append(info.Frames, frame)
		case fccVP8, fccVP8L:
			w, h, _, err := bitstreamSize(c)
			if err != nil {
				return Info{}, err
			}
			if info.CanvasWidth == 0 {
				info.CanvasWidth, info.CanvasHeight = w, h
			}
			info.Frames = append(info.Frames, FrameInfo{Width: w, Height: h})
		}
	}
	if len(info.Frames) == 0 {
		return Info{}, fmt.Errorf("webp: no frames found")
	}
	return info, nil
}

func inspectANMF(data []byte) (FrameInfo, error) {
	if len(data) < 16 {
		return FrameInfo{}, fmt.Errorf("webp: short ANMF chunk")
	}
	frame := FrameInfo{
		Width:          uint24(data[6:9]) + 1,
		Height:         uint24(data[9:12]) + 1,
		DurationMillis: uint24(data[12:15]),
	}
	sub, err := readSubChunks(data[16:])
	if err != nil {
		return FrameInfo{}, err
	}
	for _, c := range sub {
		if c.ID == fccVP8 || c.ID == fccVP8L {
			return frame, nil
		}
	}
	return FrameInfo{}, fmt.Errorf("webp: ANMF chunk without image bitstream")
}
