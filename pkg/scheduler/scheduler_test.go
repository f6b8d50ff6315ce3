package scheduler

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameline/pkg/helperproto"
	"github.com/user/frameline/pkg/mocks"
	"github.com/user/frameline/pkg/ports"
	"github.com/user/frameline/pkg/timeline"
)

type fakeFactory struct {
	build func(path string) (ports.ClipDecoder, ports.Backend, error)
}

func (f *fakeFactory) NewDecoder(path string) (ports.ClipDecoder, ports.Backend, error) {
	return f.build(path)
}

func singleDecoderFactory(dec ports.ClipDecoder) *fakeFactory {
	return &fakeFactory{build: func(path string) (ports.ClipDecoder, ports.Backend, error) {
		return dec, ports.BackendNative, nil
	}}
}

func testClip(id string) timeline.ClipDecodeInfo {
	return timeline.ClipDecodeInfo{
		ClipID:     id,
		ClipName:   id,
		SourcePath: "/media/" + id + ".mp4",
		StartTime:  0,
		Duration:   10,
		InPoint:    0,
		OutPoint:   10,
	}
}

func newTestScheduler(t *testing.T, factory DecoderFactory) *Scheduler {
	s := New(Options{
		Radius:        3,
		ScrubScale:    0.5,
		DecodeTimeout: time.Second,
		Factory:       factory,
		Logger:        &mocks.Logger{},
		Sink:          &mocks.DiagnosticsSink{},
	})
	t.Cleanup(s.Close)
	return s
}

func TestPrefetchPopulatesWindow(t *testing.T) {
	dec := &mocks.ClipDecoder{}
	s := newTestScheduler(t, singleDecoderFactory(dec))

	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))

	s.SetPlayhead(5.0, false)

	// Frame 150 is the window center at 30 fps.
	assert.Eventually(t, func() bool {
		frame, ok := s.Frame("a", 5.0)
		return ok && !frame.Released()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFrameIsNonBlocking(t *testing.T) {
	block := make(chan struct{})
	dec := &mocks.ClipDecoder{
		DecodeFrameFunc: func(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
		},
	}

	s := newTestScheduler(t, singleDecoderFactory(dec))
	// Registered after the scheduler so the decode unblocks before Close
	// waits on the worker.
	t.Cleanup(func() { close(block) })
	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))
	s.SetPlayhead(5.0, false)

	// Every decode is stuck; the read path must return a miss instantly.
	start := time.Now()
	_, ok := s.Frame("a", 5.0)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestCacheStaysWithinWindow(t *testing.T) {
	dec := &mocks.ClipDecoder{}
	s := newTestScheduler(t, singleDecoderFactory(dec))
	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))

	// Walk the playhead forward; the cache must never exceed the window.
	maxFrames := 2*3 + 1
	for _, tsec := range []float64{1, 2, 3, 4, 5} {
		s.SetPlayhead(tsec, false)
		time.Sleep(20 * time.Millisecond)

		s.mu.Lock()
		p := s.clips["a"]
		s.mu.Unlock()
		assert.LessOrEqual(t, p.cache.Len(), maxFrames)
	}
}

func TestInitializeToleratesPartialFailure(t *testing.T) {
	factory := &fakeFactory{build: func(path string) (ports.ClipDecoder, ports.Backend, error) {
		if path == "/media/bad.mp4" {
			return &mocks.ClipDecoder{
				OpenFunc: func(ctx context.Context) (ports.FileMetadata, error) {
					return ports.FileMetadata{}, errors.New("unreadable")
				},
			}, ports.BackendNative, nil
		}
		return &mocks.ClipDecoder{}, ports.BackendNative, nil
	}}

	s := newTestScheduler(t, factory)
	err := s.Initialize(context.Background(), []timeline.ClipDecodeInfo{
		testClip("bad"), testClip("good"),
	})
	require.NoError(t, err)

	state, _ := s.ClipState("bad")
	assert.Equal(t, StateOpenFailed, state)
	state, _ = s.ClipState("good")
	assert.NotEqual(t, StateOpenFailed, state)
}

func TestInitializeFailsWhenNoClipOpens(t *testing.T) {
	factory := &fakeFactory{build: func(path string) (ports.ClipDecoder, ports.Backend, error) {
		return &mocks.ClipDecoder{
			OpenFunc: func(ctx context.Context) (ports.FileMetadata, error) {
				return ports.FileMetadata{}, errors.New("unreadable")
			},
		}, ports.BackendNative, nil
	}}

	s := newTestScheduler(t, factory)
	err := s.Initialize(context.Background(), []timeline.ClipDecodeInfo{testClip("a")})
	assert.Error(t, err)
}

func TestOpenFailureDoesNotAffectOtherClips(t *testing.T) {
	factory := &fakeFactory{build: func(path string) (ports.ClipDecoder, ports.Backend, error) {
		if path == "/media/bad.mp4" {
			return &mocks.ClipDecoder{
				OpenFunc: func(ctx context.Context) (ports.FileMetadata, error) {
					return ports.FileMetadata{}, errors.New("moov missing")
				},
			}, ports.BackendNative, nil
		}
		return &mocks.ClipDecoder{}, ports.BackendNative, nil
	}}

	s := newTestScheduler(t, factory)
	require.NoError(t, s.AddClip(testClip("bad")))
	require.NoError(t, s.AddClip(testClip("good")))

	require.Error(t, s.WaitReady(context.Background(), "bad"))
	state, ok := s.ClipState("bad")
	require.True(t, ok)
	assert.Equal(t, StateOpenFailed, state)

	require.NoError(t, s.WaitReady(context.Background(), "good"))
	s.SetPlayhead(2.0, false)
	assert.Eventually(t, func() bool {
		_, ok := s.Frame("good", 2.0)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDecodeFailureMarksClip(t *testing.T) {
	// The first decode succeeds and is cached; the second fails the clip.
	var calls atomic.Int64
	dec := &mocks.ClipDecoder{
		DecodeFrameFunc: func(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
			if calls.Add(1) == 1 {
				return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
			}
			return nil, errors.New("corrupt sample")
		},
	}
	s := newTestScheduler(t, singleDecoderFactory(dec))
	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))
	s.SetPlayhead(0, false)

	assert.Eventually(t, func() bool {
		state, _ := s.ClipState("a")
		return state == StateDecodeFailed
	}, 2*time.Second, 5*time.Millisecond)

	// Frame 0 was decoded and cached before the failure; a terminal clip
	// must still report it absent, with its handle released.
	require.GreaterOrEqual(t, calls.Load(), int64(2))
	_, ok := s.Frame("a", 0)
	assert.False(t, ok)

	snap := s.Health()
	require.Len(t, snap.Clips, 1)
	assert.Equal(t, 0, snap.Clips[0].CachedFrames)
	assert.Equal(t, int64(0), snap.Clips[0].CacheBytes)
}

func TestHealthCountsMissingFramesPerClip(t *testing.T) {
	dec := &mocks.ClipDecoder{
		DecodeFrameFunc: func(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
			return nil, errors.New("decode stalled")
		},
	}
	s := newTestScheduler(t, singleDecoderFactory(dec))
	s.SetExportMode(true)
	defer s.SetExportMode(false)

	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))

	_, err := s.DecodeFrameSync(context.Background(), "a", 1.0)
	require.Error(t, err)
	_, err = s.DecodeFrameSync(context.Background(), "a", 2.0)
	require.Error(t, err)

	snap := s.Health()
	require.Len(t, snap.Clips, 1)
	assert.Equal(t, int64(2), snap.Clips[0].FramesMissing)
	assert.Equal(t, int64(0), snap.Clips[0].FramesDecoded)
}

func TestHelperOOMEvictsAndRetries(t *testing.T) {
	var calls atomic.Int64
	dec := &mocks.ClipDecoder{
		DecodeFrameFunc: func(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
			if calls.Add(1) == 1 {
				return nil, &helperproto.CommandError{Code: helperproto.CodeOutOfMemory, Message: "helper oom"}
			}
			return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
		},
	}
	s := newTestScheduler(t, singleDecoderFactory(dec))
	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))
	s.SetPlayhead(5.0, false)

	assert.Eventually(t, func() bool {
		_, ok := s.Frame("a", 5.0)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	state, _ := s.ClipState("a")
	assert.NotEqual(t, StateDecodeFailed, state)
}

func TestRemoveClipReleasesResources(t *testing.T) {
	dec := &mocks.ClipDecoder{}
	s := newTestScheduler(t, singleDecoderFactory(dec))
	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))
	s.SetPlayhead(5.0, false)

	assert.Eventually(t, func() bool {
		_, ok := s.Frame("a", 5.0)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	s.RemoveClip("a")
	assert.Equal(t, 1, dec.CloseCalls())
	_, ok := s.Frame("a", 5.0)
	assert.False(t, ok)
}

func TestDecodeFrameSyncServesExport(t *testing.T) {
	dec := &mocks.ClipDecoder{}
	s := newTestScheduler(t, singleDecoderFactory(dec))
	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))

	s.SetExportMode(true)
	defer s.SetExportMode(false)

	img, err := s.DecodeFrameSync(context.Background(), "a", 5.0)
	require.NoError(t, err)
	assert.NotNil(t, img)

	// The synchronous result lands in the cache; a second request for the
	// same tick is a hit, not another decode.
	decodes := len(dec.DecodedFrames())
	_, err = s.DecodeFrameSync(context.Background(), "a", 5.0)
	require.NoError(t, err)
	assert.Equal(t, decodes, len(dec.DecodedFrames()))
}

func TestReversedClipDecodesTailFirst(t *testing.T) {
	dec := &mocks.ClipDecoder{}
	s := newTestScheduler(t, singleDecoderFactory(dec))

	clip := testClip("r")
	clip.Reversed = true
	require.NoError(t, s.AddClip(clip))
	require.NoError(t, s.WaitReady(context.Background(), "r"))

	// At the clip start a reversed clip shows its out point (frame 299
	// after clamping to the source frame count).
	s.SetPlayhead(0, false)
	assert.Eventually(t, func() bool {
		frame, ok := s.Frame("r", 0)
		return ok && frame.FrameNumber >= 296
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHealthSnapshot(t *testing.T) {
	dec := &mocks.ClipDecoder{}
	sink := &mocks.DiagnosticsSink{EnabledValue: true}
	s := New(Options{
		Radius:        3,
		DecodeTimeout: time.Second,
		Factory:       singleDecoderFactory(dec),
		Logger:        &mocks.Logger{},
		Sink:          sink,
	})
	t.Cleanup(s.Close)

	require.NoError(t, s.AddClip(testClip("a")))
	require.NoError(t, s.WaitReady(context.Background(), "a"))
	s.SetPlayhead(5.0, false)

	snap := s.Health()
	require.Len(t, snap.Clips, 1)
	assert.Equal(t, "a", snap.Clips[0].ClipID)
	assert.Equal(t, "native", snap.Clips[0].Backend)

	require.NoError(t, s.SaveHealth())
	assert.Len(t, sink.HealthJSON, 1)
}
