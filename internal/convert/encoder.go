package convert

import (
	"context"
	"image"
)

// EncodeRequest is one whole frame batch handed to the encoder at once.
type EncodeRequest struct {
	Frames              []image.Image
	FrameDurationMillis int
	// LoopCount 0 loops forever.
	LoopCount  int
	Lossless   bool
	Quality    int
	OutputPath string
}

// Encoder writes a frame batch as one animated artifact.
//
// Implementations must fail on an empty batch or frames of differing size and
// must never overwrite an existing file at OutputPath.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest) error
}
