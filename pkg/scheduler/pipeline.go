package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/user/frameline/pkg/framecache"
	"github.com/user/frameline/pkg/helperproto"
	"github.com/user/frameline/pkg/ports"
	"github.com/user/frameline/pkg/timeline"
)

// ClipState is the decode lifecycle state of one clip.
type ClipState int32

const (
	StateUninitialized ClipState = iota
	StateOpening
	StateReady
	StateDecoding
	StateOpenFailed
	StateDecodeFailed
	StateClosed
)

// String returns the state name for logs and health snapshots.
func (s ClipState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateDecoding:
		return "decoding"
	case StateOpenFailed:
		return "open_failed"
	case StateDecodeFailed:
		return "decode_failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Failed reports whether the state is terminal short of Closed.
func (s ClipState) Failed() bool {
	return s == StateOpenFailed || s == StateDecodeFailed
}

// clipPipeline owns the decode loop for one clip: a single worker
// goroutine that fills the cache window nearest-first around the
// playhead. The decoder is not safe for concurrent use, so the worker
// and the synchronous export path serialize on decMu.
type clipPipeline struct {
	clip    timeline.ClipDecodeInfo
	decoder ports.ClipDecoder
	backend ports.Backend
	cache   *framecache.Cache
	log     ports.Logger
	opts    Options

	state         atomic.Int32
	framesDecoded atomic.Int64
	framesMissing atomic.Int64

	mu        sync.Mutex
	meta      ports.FileMetadata
	playhead  float64
	scrubbing bool
	paused    bool
	lastErr   error
	rangeLo   int64
	rangeHi   int64
	center    int64
	windowLo  int64
	windowHi  int64

	decMu sync.Mutex

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newClipPipeline(clip timeline.ClipDecodeInfo, decoder ports.ClipDecoder, backend ports.Backend, log ports.Logger, opts Options) *clipPipeline {
	p := &clipPipeline{
		clip:    clip,
		decoder: decoder,
		backend: backend,
		cache:   framecache.New(clip.ClipID),
		log:     log,
		opts:    opts,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.state.Store(int32(StateUninitialized))
	return p
}

func (p *clipPipeline) currentState() ClipState {
	return ClipState(p.state.Load())
}

func (p *clipPipeline) setState(s ClipState) {
	p.state.Store(int32(s))
}

// run is the pipeline worker. It opens the decoder, then fills the
// prefetch window until stopped or a terminal failure.
func (p *clipPipeline) run() {
	defer close(p.done)

	p.setState(StateOpening)
	p.log.Debug("Opening clip %s", p.clip.ClipID)

	openCtx, cancel := context.WithTimeout(context.Background(), p.opts.DecodeTimeout)
	meta, err := p.decoder.Open(openCtx)
	cancel()
	if err != nil {
		p.fail(StateOpenFailed, err)
		p.log.Error("Clip %s failed to open: %s", p.clip.ClipID, err)
		return
	}

	p.mu.Lock()
	p.meta = meta
	p.rangeLo, p.rangeHi = p.clip.FrameRange(meta.FPS)
	if p.rangeHi >= meta.FrameCount {
		p.rangeHi = meta.FrameCount - 1
	}
	p.recomputeWindowLocked()
	p.mu.Unlock()

	p.setState(StateReady)
	p.log.Info("Clip %s ready: %d frames at %.2f fps", p.clip.ClipID, meta.FrameCount, meta.FPS)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		frame, scale, ok := p.nextPending()
		if !ok {
			p.setState(StateReady)
			select {
			case <-p.stop:
				return
			case <-p.wake:
			}
			continue
		}

		p.setState(StateDecoding)
		if err := p.decodeInto(frame, scale); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.fail(StateDecodeFailed, err)
			p.log.Error("Clip %s decode failed: %s", p.clip.ClipID, err)
			return
		}
	}
}

// nextPending picks the undecoded frame closest to the playhead inside
// the window, preferring the forward direction on ties.
func (p *clipPipeline) nextPending() (int64, float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return 0, 0, false
	}

	scale := 1.0
	if p.scrubbing && p.opts.ScrubScale > 0 && p.opts.ScrubScale < 1 {
		scale = p.opts.ScrubScale
	}

	for d := int64(0); d <= int64(p.opts.Radius); d++ {
		for _, f := range [2]int64{p.center + d, p.center - d} {
			if f < p.windowLo || f > p.windowHi {
				continue
			}
			if !p.cache.Contains(f) {
				return f, scale, true
			}
			if d == 0 {
				break
			}
		}
	}
	return 0, 0, false
}

// decodeInto decodes one frame and stores it. A helper-side OOM evicts
// the farthest cached frames and retries once.
func (p *clipPipeline) decodeInto(frame int64, scale float64) error {
	img, err := p.decodeWithTimeout(frame, scale)
	if err != nil {
		var cmdErr *helperproto.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == helperproto.CodeOutOfMemory {
			p.mu.Lock()
			center := p.center
			p.mu.Unlock()
			evicted := p.cache.EvictFarthest(center, p.opts.Radius)
			p.log.Warn("Evicted %d frames outside window", evicted)
			img, err = p.decodeWithTimeout(frame, scale)
		}
		if err != nil {
			return err
		}
	}

	p.cache.Put(&framecache.CachedFrame{
		ClipID:      p.clip.ClipID,
		FrameNumber: frame,
		Image:       img,
		ByteSize:    imageBytes(img),
	})
	p.framesDecoded.Add(1)

	p.mu.Lock()
	lo, hi := p.windowLo, p.windowHi
	p.mu.Unlock()
	p.cache.EvictOutside(lo, hi)
	return nil
}

func (p *clipPipeline) decodeWithTimeout(frame int64, scale float64) (image.Image, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.DecodeTimeout)
	defer cancel()

	p.decMu.Lock()
	defer p.decMu.Unlock()
	return p.decoder.DecodeFrame(ctx, frame, scale)
}

// setPlayhead recenters the prefetch window and wakes the worker.
// Frames that fall outside the new window are evicted before any new
// decode starts.
func (p *clipPipeline) setPlayhead(t float64, scrubbing bool) {
	p.mu.Lock()
	p.playhead = t
	p.scrubbing = scrubbing
	ready := p.meta.FPS > 0
	if ready {
		p.recomputeWindowLocked()
	}
	lo, hi := p.windowLo, p.windowHi
	center := p.center
	p.mu.Unlock()

	if !ready {
		return
	}

	p.cache.EvictOutside(lo, hi)

	if hinter, ok := p.decoder.(ports.PrefetchHinter); ok {
		hinter.PrefetchHint(context.Background(), center, p.opts.Radius)
	}
	p.wakeWorker()
}

// recomputeWindowLocked derives the window from the stored playhead.
// Callers hold mu and must have meta populated.
func (p *clipPipeline) recomputeWindowLocked() {
	p.center = p.clip.LocalFrame(p.playhead, p.meta.FPS)
	if p.center < p.rangeLo {
		p.center = p.rangeLo
	}
	if p.center > p.rangeHi {
		p.center = p.rangeHi
	}
	p.windowLo = p.center - int64(p.opts.Radius)
	p.windowHi = p.center + int64(p.opts.Radius)
	if p.windowLo < p.rangeLo {
		p.windowLo = p.rangeLo
	}
	if p.windowHi > p.rangeHi {
		p.windowHi = p.rangeHi
	}
}

func (p *clipPipeline) wakeWorker() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// setPaused suspends or resumes prefetching. Export mode pauses every
// pipeline so synchronous decodes do not contend with the workers.
func (p *clipPipeline) setPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	if !paused {
		p.wakeWorker()
	}
}

// frameAt returns the cached frame covering global time t, or false when
// it is not resident. Failed clips report absent forever, even for
// frames decoded before the failure.
func (p *clipPipeline) frameAt(t float64) (*framecache.CachedFrame, bool) {
	if p.currentState().Failed() {
		return nil, false
	}
	frame, ok := p.frameForTime(t)
	if !ok {
		return nil, false
	}
	return p.cache.Get(frame)
}

// frameForTime maps global time to a source frame clamped to the clip's
// decodable range. Rounding at the out point can land one frame past the
// last sample, so the clamp is load-bearing.
func (p *clipPipeline) frameForTime(t float64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meta.FPS <= 0 {
		return 0, false
	}
	frame := p.clip.LocalFrame(t, p.meta.FPS)
	if frame < p.rangeLo {
		frame = p.rangeLo
	}
	if frame > p.rangeHi {
		frame = p.rangeHi
	}
	return frame, true
}

// decodeSync decodes the frame for global time t at full resolution,
// bypassing the window. Used by the export path; the result is cached.
func (p *clipPipeline) decodeSync(ctx context.Context, t float64) (image.Image, error) {
	state := p.currentState()
	if state.Failed() || state == StateClosed {
		p.framesMissing.Add(1)
		return nil, fmt.Errorf("clip %s unavailable: %s", p.clip.ClipID, state)
	}

	frame, ok := p.frameForTime(t)
	if !ok {
		p.framesMissing.Add(1)
		return nil, fmt.Errorf("clip %s not ready", p.clip.ClipID)
	}

	if cached, ok := p.cache.Get(frame); ok && !cached.Released() {
		return cached.Image, nil
	}

	p.decMu.Lock()
	img, err := p.decoder.DecodeFrame(ctx, frame, 1.0)
	p.decMu.Unlock()
	if err != nil {
		p.framesMissing.Add(1)
		return nil, err
	}

	p.cache.Put(&framecache.CachedFrame{
		ClipID:      p.clip.ClipID,
		FrameNumber: frame,
		Image:       img,
		ByteSize:    imageBytes(img),
	})
	p.framesDecoded.Add(1)
	return img, nil
}

func (p *clipPipeline) fail(state ClipState, err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	p.setState(state)
	// Terminal clips never serve frames again; release the handles now
	// rather than holding them until close.
	p.cache.Clear()
}

// close stops the worker, closes the decoder and releases every cached
// frame.
func (p *clipPipeline) close() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done

	p.decoder.Close()
	p.cache.Clear()
	p.setState(StateClosed)
}

func imageBytes(img image.Image) int64 {
	if img == nil {
		return 0
	}
	bounds := img.Bounds()
	return int64(bounds.Dx()) * int64(bounds.Dy()) * 4
}
