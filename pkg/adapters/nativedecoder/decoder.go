package nativedecoder

import (
	"context"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/user/frameline/pkg/ports"
)

// Decoder implements ports.ClipDecoder on top of the platform backend.
// Sequential requests continue the running decode; a jump seeks back to
// the nearest keyframe and rolls forward through the GOP.
type Decoder struct {
	path string

	mu       sync.Mutex
	src      *mp4Source
	platform platformDecoder
	next     int64 // frame the backend would emit next; -1 when unknown
}

// New creates a decoder for the file at path. Nothing is opened until
// Open is called.
func New(path string) *Decoder {
	return &Decoder{path: path, next: -1}
}

// Open parses the container, builds the sample index and initializes the
// platform backend.
func (d *Decoder) Open(ctx context.Context) (ports.FileMetadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ports.FileMetadata{}, err
	}
	if d.src != nil {
		return d.src.metadata(), nil
	}

	src, err := openSource(d.path)
	if err != nil {
		return ports.FileMetadata{}, err
	}

	platform := newPlatformDecoder()
	if err := platform.init(); err != nil {
		src.close()
		return ports.FileMetadata{}, err
	}

	d.src = src
	d.platform = platform
	d.next = -1

	meta := src.metadata()
	meta.FileID = d.path
	d.src.meta = meta
	return meta, nil
}

// DecodeFrame decodes one frame. scaleHint in (0,1) downscales the
// result for scrub-speed previews; 0 or 1 returns full resolution.
func (d *Decoder) DecodeFrame(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return nil, ErrNotInitialized
	}
	if frameNum < 0 || frameNum >= d.src.count() {
		return nil, fmt.Errorf("%w: frame %d of %d", ErrFrameOutOfRange, frameNum, d.src.count())
	}

	start := d.src.gopStart(frameNum)
	if d.next > 0 && d.next <= frameNum && d.next > start {
		// Continue the running decode instead of re-entering the GOP.
		start = d.next
	}

	var img image.Image
	for i := start; i <= frameNum; i++ {
		if err := ctx.Err(); err != nil {
			d.next = -1
			return nil, err
		}

		data, err := d.src.accessUnit(i)
		if err != nil {
			d.next = -1
			return nil, err
		}

		out, err := d.platform.decodeFrame(data)
		if err != nil {
			d.next = -1
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
		if out != nil {
			img = out
		}
	}
	d.next = frameNum + 1

	if img == nil {
		return nil, fmt.Errorf("%w: frame %d produced no picture", ErrDecodeFailed, frameNum)
	}
	if scaleHint > 0 && scaleHint < 1 {
		img = downscale(img, scaleHint)
	}
	return img, nil
}

// Close releases the sample index and the platform backend.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.platform != nil {
		d.platform.close()
		d.platform = nil
	}
	d.next = -1
	if d.src == nil {
		return nil
	}
	err := d.src.close()
	d.src = nil
	return err
}

// downscale resizes img by factor using approximate bi-linear sampling,
// which is fast enough for scrub previews.
func downscale(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	w, h := scaledDimensions(bounds.Dx(), bounds.Dy(), factor)
	if w == bounds.Dx() && h == bounds.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// scaledDimensions applies factor to a frame size, keeping both
// dimensions at least one pixel.
func scaledDimensions(w, h int, factor float64) (int, int) {
	sw := int(float64(w) * factor)
	sh := int(float64(h) * factor)
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}

var _ ports.ClipDecoder = (*Decoder)(nil)
