// Package remotedecoder implements ports.ClipDecoder on top of the
// helper process connection. It is the fallback for codecs the
// in-process decoder cannot handle, and the only backend for fragmented
// containers.
package remotedecoder

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/user/frameline/pkg/helperproto"
	"github.com/user/frameline/pkg/ports"
)

// ErrNotOpen is returned when decode is called before Open succeeds or
// after Close.
var ErrNotOpen = errors.New("remotedecoder: file not open")

const closeTimeout = 5 * time.Second

// HelperAPI is the slice of the helper client the decoder needs.
// Narrowed for test injection.
type HelperAPI interface {
	Open(ctx context.Context, path string) (helperproto.FileInfo, error)
	Decode(ctx context.Context, fileID string, frameNum int64, scale float64, compress bool) (*image.RGBA, error)
	Prefetch(fileID string, aroundFrame int64, radius int) error
	CloseFile(ctx context.Context, fileID string) error
}

// Options tunes the remote backend.
type Options struct {
	// Compress asks the helper to deflate frame payloads. Worth it on
	// TCP links, wasted work on local sockets.
	Compress bool
}

// Decoder proxies decode requests for one clip to the helper process.
type Decoder struct {
	helper HelperAPI
	path   string
	opts   Options

	mu     sync.Mutex
	fileID string
	meta   ports.FileMetadata
}

// New creates a decoder for path backed by the given helper connection.
func New(helper HelperAPI, path string, opts Options) *Decoder {
	return &Decoder{helper: helper, path: path, opts: opts}
}

// Open asks the helper to open the file and caches its metadata.
func (d *Decoder) Open(ctx context.Context) (ports.FileMetadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fileID != "" {
		return d.meta, nil
	}

	info, err := d.helper.Open(ctx, d.path)
	if err != nil {
		return ports.FileMetadata{}, err
	}

	d.fileID = info.FileID
	d.meta = ports.FileMetadata{
		FileID:     info.FileID,
		Width:      info.Width,
		Height:     info.Height,
		FPS:        info.FPS,
		DurationMs: info.DurationMs,
		FrameCount: info.FrameCount,
		Codec:      info.Codec,
	}
	return d.meta, nil
}

// DecodeFrame fetches one frame from the helper. scaleHint in (0,1) is
// forwarded so the helper can decode at reduced resolution.
func (d *Decoder) DecodeFrame(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
	d.mu.Lock()
	fileID := d.fileID
	d.mu.Unlock()
	if fileID == "" {
		return nil, ErrNotOpen
	}

	return d.helper.Decode(ctx, fileID, frameNum, scaleHint, d.opts.Compress)
}

// PrefetchHint forwards the cache window to the helper so it can decode
// ahead on its side. Best effort.
func (d *Decoder) PrefetchHint(ctx context.Context, aroundFrame int64, radius int) {
	d.mu.Lock()
	fileID := d.fileID
	d.mu.Unlock()
	if fileID == "" {
		return
	}
	_ = d.helper.Prefetch(fileID, aroundFrame, radius)
}

// Close releases the helper-side file. Safe to call when Open never
// succeeded.
func (d *Decoder) Close() error {
	d.mu.Lock()
	fileID := d.fileID
	d.fileID = ""
	d.mu.Unlock()
	if fileID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return d.helper.CloseFile(ctx, fileID)
}

var (
	_ ports.ClipDecoder    = (*Decoder)(nil)
	_ ports.PrefetchHinter = (*Decoder)(nil)
)
