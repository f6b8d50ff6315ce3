package ports

import (
	"context"
	"image"
)

// FileMetadata describes an opened media source.
type FileMetadata struct {
	FileID     string
	Width      int
	Height     int
	FPS        float64
	DurationMs int64
	FrameCount int64
	Codec      string
}

// Backend identifies which decode backend serves a clip.
type Backend string

const (
	// BackendNative is the in-process decoder using the platform's
	// hardware video pipeline (VideoToolbox on macOS, ffmpeg on Linux).
	BackendNative Backend = "native"
	// BackendRemote routes decode work to the helper process.
	BackendRemote Backend = "remote"
)

// ClipDecoder is the capability set shared by all decode backends.
// One instance serves one clip; it is not safe for concurrent use.
type ClipDecoder interface {
	// Open prepares the source for decoding and returns its metadata.
	Open(ctx context.Context) (FileMetadata, error)

	// DecodeFrame decodes the frame at the given source-local frame number.
	// A scaleHint below 1.0 permits a reduced-resolution decode for
	// scrubbing; backends may ignore the hint and return full resolution.
	DecodeFrame(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error)

	// Close releases all decoder resources. Safe to call more than once.
	Close() error
}

// PrefetchHinter is optionally implemented by backends that can warm
// frames ahead of explicit DecodeFrame calls (the remote helper keeps its
// own read-ahead cache). The hint is fire-and-forget.
type PrefetchHinter interface {
	PrefetchHint(ctx context.Context, aroundFrame int64, radius int)
}
