package ports

import (
	"context"
	"image"
)

// EncodeSettings configures an encode session.
type EncodeSettings struct {
	Width   int
	Height  int
	FPS     float64
	Bitrate int
	Codec   string
	Output  string
}

// EncodeResult describes a finished encode session.
type EncodeResult struct {
	FramesEncoded int64
	DurationMs    int64
	FileSize      int64
	OutputPath    string
}

// FrameEncoder abstracts the export encode path. The helper-backed
// implementation ships frames over the helper connection; tests substitute
// an in-memory recorder.
type FrameEncoder interface {
	// StartEncode opens an encode session.
	StartEncode(ctx context.Context, settings EncodeSettings) error

	// EncodeFrame submits the next frame in strict presentation order.
	EncodeFrame(ctx context.Context, frameNum int64, img image.Image) error

	// FinishEncode finalizes the session and returns the result.
	FinishEncode(ctx context.Context) (EncodeResult, error)

	// CancelEncode aborts the session, discarding partial output.
	CancelEncode(ctx context.Context) error
}
