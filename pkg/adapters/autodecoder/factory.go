// Package autodecoder selects a decode backend per clip: the in-process
// decoder for codecs and containers it handles, the helper process for
// everything else. A clip that starts on the in-process backend falls
// back to the helper once if opening or decoding fails.
package autodecoder

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/user/frameline/pkg/adapters/codecdetect"
	"github.com/user/frameline/pkg/adapters/nativedecoder"
	"github.com/user/frameline/pkg/adapters/remotedecoder"
	"github.com/user/frameline/pkg/ports"
)

// ErrNoBackend is returned when neither backend can serve a clip.
var ErrNoBackend = errors.New("autodecoder: no decode backend available")

// Factory builds ClipDecoders. The constructors are injectable so tests
// can substitute fakes for both backends.
type Factory struct {
	helper     remotedecoder.HelperAPI
	remoteOpts remotedecoder.Options
	log        ports.Logger

	detectCodec func(path string) (codecdetect.Codec, error)
	newNative   func(path string) ports.ClipDecoder
	newRemote   func(path string) ports.ClipDecoder
	nativeOK    func() bool

	forceRemote bool
}

// ForceRemote routes every clip to the helper regardless of codec.
// Requires a helper; NewDecoder returns ErrNoBackend otherwise.
func (f *Factory) ForceRemote(on bool) {
	f.forceRemote = on
}

// New creates a factory. helper may be nil when no helper process is
// configured; clips the in-process decoder cannot handle then fail to
// open.
func New(helper remotedecoder.HelperAPI, remoteOpts remotedecoder.Options, log ports.Logger) *Factory {
	f := &Factory{
		helper:      helper,
		remoteOpts:  remoteOpts,
		log:         log.WithComponent("autodecoder"),
		detectCodec: codecdetect.DetectFromFile,
		nativeOK:    nativedecoder.IsAvailable,
	}
	f.newNative = func(path string) ports.ClipDecoder {
		return nativedecoder.New(path)
	}
	f.newRemote = func(path string) ports.ClipDecoder {
		return remotedecoder.New(f.helper, path, f.remoteOpts)
	}
	return f
}

// NewDecoder picks the backend for path and returns an unopened decoder
// along with the backend chosen.
func (f *Factory) NewDecoder(path string) (ports.ClipDecoder, ports.Backend, error) {
	if f.forceRemote {
		if f.helper == nil {
			return nil, "", ErrNoBackend
		}
		return f.newRemote(path), ports.BackendRemote, nil
	}

	codec, err := f.detectCodec(path)
	if err != nil {
		// An unreadable container may still be something the helper's
		// demuxer understands.
		if f.helper != nil {
			f.log.Debug("Codec probe failed for %s, deferring to helper: %s", path, err)
			return f.newRemote(path), ports.BackendRemote, nil
		}
		return nil, "", err
	}

	if codecdetect.NativeEligible(codec) && f.nativeOK() {
		native := f.newNative(path)
		if f.helper == nil {
			return native, ports.BackendNative, nil
		}
		return &fallbackDecoder{
			primary:  native,
			fallback: func() ports.ClipDecoder { return f.newRemote(path) },
			log:      f.log,
		}, ports.BackendNative, nil
	}

	if f.helper == nil {
		return nil, "", ErrNoBackend
	}
	return f.newRemote(path), ports.BackendRemote, nil
}

// fallbackDecoder runs the in-process backend and switches to the helper
// on the first failure. The switch is one-way and happens at most once.
type fallbackDecoder struct {
	mu       sync.Mutex
	primary  ports.ClipDecoder
	fallback func() ports.ClipDecoder
	log      ports.Logger
	switched bool
}

func (d *fallbackDecoder) Open(ctx context.Context) (ports.FileMetadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	meta, err := d.primary.Open(ctx)
	if err == nil || d.switched {
		return meta, err
	}
	if ctx.Err() != nil {
		return meta, err
	}

	d.log.Warn("In-process open failed, retrying via helper: %s", err)
	if ferr := d.switchLocked(ctx); ferr != nil {
		return ports.FileMetadata{}, errors.Join(err, ferr)
	}
	return d.primary.Open(ctx)
}

func (d *fallbackDecoder) DecodeFrame(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := d.primary.DecodeFrame(ctx, frameNum, scaleHint)
	if err == nil || d.switched {
		return img, err
	}
	if ctx.Err() != nil {
		return img, err
	}

	d.log.Warn("In-process decode of frame %d failed, retrying via helper: %s", frameNum, err)
	if ferr := d.switchLocked(ctx); ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return d.primary.DecodeFrame(ctx, frameNum, scaleHint)
}

// switchLocked replaces the primary with a freshly opened helper-backed
// decoder. Callers hold mu.
func (d *fallbackDecoder) switchLocked(ctx context.Context) error {
	d.primary.Close()
	remote := d.fallback()
	if _, err := remote.Open(ctx); err != nil {
		d.switched = true
		return err
	}
	d.primary = remote
	d.switched = true
	return nil
}

// PrefetchHint forwards the hint when the active backend supports it.
func (d *fallbackDecoder) PrefetchHint(ctx context.Context, aroundFrame int64, radius int) {
	d.mu.Lock()
	hinter, ok := d.primary.(ports.PrefetchHinter)
	d.mu.Unlock()
	if ok {
		hinter.PrefetchHint(ctx, aroundFrame, radius)
	}
}

func (d *fallbackDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.primary.Close()
}

var (
	_ ports.ClipDecoder    = (*fallbackDecoder)(nil)
	_ ports.PrefetchHinter = (*fallbackDecoder)(nil)
)
