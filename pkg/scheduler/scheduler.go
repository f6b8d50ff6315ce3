// Package scheduler coordinates frame decoding for every clip on the
// timeline: one pipeline per clip, a bounded prefetch window around the
// playhead, and a strict synchronous path for export. A failed clip
// never stalls the others; the render path substitutes placeholders.
package scheduler

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/frameline/pkg/framecache"
	"github.com/user/frameline/pkg/ports"
	"github.com/user/frameline/pkg/timeline"
)

// DecoderFactory builds the decode backend for a clip source.
// *autodecoder.Factory satisfies it.
type DecoderFactory interface {
	NewDecoder(path string) (ports.ClipDecoder, ports.Backend, error)
}

// Options configures the scheduler.
type Options struct {
	// Radius is the prefetch radius in frames on each side of the
	// playhead.
	Radius int

	// ScrubScale is the decode scale hint applied while scrubbing.
	ScrubScale float64

	// DecodeTimeout bounds a single open or decode operation.
	DecodeTimeout time.Duration

	Factory DecoderFactory
	Logger  ports.Logger
	Sink    ports.DiagnosticsSink
}

func (o *Options) applyDefaults() {
	if o.Radius <= 0 {
		o.Radius = 30
	}
	if o.ScrubScale <= 0 || o.ScrubScale > 1 {
		o.ScrubScale = 0.5
	}
	if o.DecodeTimeout <= 0 {
		o.DecodeTimeout = 10 * time.Second
	}
}

// Scheduler owns one pipeline per clip.
type Scheduler struct {
	opts Options
	log  ports.Logger

	mu         sync.Mutex
	clips      map[string]*clipPipeline
	playhead   float64
	scrubbing  bool
	exportMode bool
	closed     bool
}

// New creates a scheduler. The factory and logger are required.
func New(opts Options) *Scheduler {
	opts.applyDefaults()
	return &Scheduler{
		opts:  opts,
		log:   opts.Logger.WithComponent("scheduler"),
		clips: make(map[string]*clipPipeline),
	}
}

// AddClip registers a clip and starts its pipeline. The pipeline opens
// the source asynchronously; an open failure surfaces in the clip state,
// not here.
func (s *Scheduler) AddClip(clip timeline.ClipDecodeInfo) error {
	if err := clip.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scheduler closed")
	}
	if _, exists := s.clips[clip.ClipID]; exists {
		return fmt.Errorf("clip %s already registered", clip.ClipID)
	}

	decoder, backend, err := s.opts.Factory.NewDecoder(clip.SourcePath)
	if err != nil {
		return fmt.Errorf("clip %s: %w", clip.ClipID, err)
	}

	p := newClipPipeline(clip, decoder, backend, s.log, s.opts)
	p.playhead = s.playhead
	p.paused = s.exportMode
	s.clips[clip.ClipID] = p
	go p.run()
	return nil
}

// Initialize registers every clip and waits for their pipelines to open.
// Open failures are recorded per clip and do not abort the others; the
// call errors only when not a single clip could be opened.
func (s *Scheduler) Initialize(ctx context.Context, clips []timeline.ClipDecodeInfo) error {
	if len(clips) == 0 {
		return fmt.Errorf("scheduler: no clips to initialize")
	}

	var pending []string
	for _, clip := range clips {
		if err := s.AddClip(clip); err != nil {
			s.log.Warn("Skipping clip %s: %s", clip.ClipID, err)
			continue
		}
		pending = append(pending, clip.ClipID)
	}

	var opened atomic.Int64
	g := new(errgroup.Group)
	for _, clipID := range pending {
		clipID := clipID
		g.Go(func() error {
			if err := s.WaitReady(ctx, clipID); err != nil {
				s.log.Warn("Clip %s did not open: %s", clipID, err)
				return nil
			}
			opened.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if opened.Load() == 0 {
		return fmt.Errorf("scheduler: no clip could be opened")
	}
	s.log.Info("Initialized %d of %d clips", opened.Load(), len(clips))
	return nil
}

// RemoveClip stops a clip's pipeline and releases its cache. Unknown ids
// are ignored.
func (s *Scheduler) RemoveClip(clipID string) {
	s.mu.Lock()
	p, ok := s.clips[clipID]
	delete(s.clips, clipID)
	s.mu.Unlock()
	if ok {
		p.close()
	}
}

// SetPlayhead recenters every clip's prefetch window on the new global
// time. scrubbing selects reduced-resolution decodes for the window.
func (s *Scheduler) SetPlayhead(t float64, scrubbing bool) {
	s.mu.Lock()
	s.playhead = t
	s.scrubbing = scrubbing
	pipelines := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Debug("Playhead moved to %.3fs", t)
	for _, p := range pipelines {
		p.setPlayhead(t, scrubbing)
	}
}

// Frame returns the cached frame for a clip at global time t. It never
// blocks; a miss means the render path should substitute a placeholder.
func (s *Scheduler) Frame(clipID string, t float64) (*framecache.CachedFrame, bool) {
	s.mu.Lock()
	p, ok := s.clips[clipID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return p.frameAt(t)
}

// ClipState reports the decode state of a clip.
func (s *Scheduler) ClipState(clipID string) (ClipState, bool) {
	s.mu.Lock()
	p, ok := s.clips[clipID]
	s.mu.Unlock()
	if !ok {
		return StateClosed, false
	}
	return p.currentState(), true
}

// DecodeFrameSync decodes the frame for clipID at global time t at full
// resolution, waiting for the result. Export uses this for every tick.
func (s *Scheduler) DecodeFrameSync(ctx context.Context, clipID string, t float64) (image.Image, error) {
	s.mu.Lock()
	p, ok := s.clips[clipID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown clip %s", clipID)
	}
	return p.decodeSync(ctx, t)
}

// WaitReady blocks until the clip leaves its opening states or the
// context expires. It returns the terminal error for failed clips.
func (s *Scheduler) WaitReady(ctx context.Context, clipID string) error {
	s.mu.Lock()
	p, ok := s.clips[clipID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown clip %s", clipID)
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		state := p.currentState()
		switch {
		case state == StateReady || state == StateDecoding:
			return nil
		case state.Failed():
			p.mu.Lock()
			err := p.lastErr
			p.mu.Unlock()
			return fmt.Errorf("clip %s %s: %w", clipID, state, err)
		case state == StateClosed:
			return fmt.Errorf("clip %s closed", clipID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SetExportMode pauses (true) or resumes (false) the prefetch workers.
// Export decodes strictly sequentially via DecodeFrameSync.
func (s *Scheduler) SetExportMode(on bool) {
	s.mu.Lock()
	s.exportMode = on
	pipelines := s.snapshotLocked()
	s.mu.Unlock()

	for _, p := range pipelines {
		p.setPaused(on)
	}
}

// Close stops every pipeline and releases all caches.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pipelines := s.snapshotLocked()
	s.clips = make(map[string]*clipPipeline)
	s.mu.Unlock()

	for _, p := range pipelines {
		p.close()
	}
	s.log.Debug("Decode scheduler stopped")
}

func (s *Scheduler) snapshotLocked() []*clipPipeline {
	out := make([]*clipPipeline, 0, len(s.clips))
	for _, p := range s.clips {
		out = append(out, p)
	}
	return out
}
