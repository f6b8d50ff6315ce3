package export

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameline/pkg/mocks"
	"github.com/user/frameline/pkg/ports"
	"github.com/user/frameline/pkg/timeline"
)

type fakeSource struct {
	decode func(ctx context.Context, clipID string, t float64) (image.Image, error)

	mu         sync.Mutex
	exportMode []bool
	requests   []string
}

func (f *fakeSource) DecodeFrameSync(ctx context.Context, clipID string, t float64) (image.Image, error) {
	f.mu.Lock()
	f.requests = append(f.requests, clipID)
	f.mu.Unlock()
	if f.decode != nil {
		return f.decode(ctx, clipID, t)
	}
	return image.NewRGBA(image.Rect(0, 0, 64, 36)), nil
}

func (f *fakeSource) SetExportMode(on bool) {
	f.mu.Lock()
	f.exportMode = append(f.exportMode, on)
	f.mu.Unlock()
}

func (f *fakeSource) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

func testSettings() ports.EncodeSettings {
	return ports.EncodeSettings{
		Width:   128,
		Height:  72,
		FPS:     10,
		Bitrate: 1_000_000,
		Codec:   "h264",
		Output:  "/tmp/out.mp4",
	}
}

func newDriver(src *fakeSource, enc ports.FrameEncoder, clips ...timeline.ClipDecodeInfo) *Driver {
	return New(Options{
		Settings:    testSettings(),
		Clips:       clips,
		Source:      src,
		Encoder:     enc,
		Placeholder: &mocks.PlaceholderRenderer{},
		Logger:      &mocks.Logger{},
	})
}

func TestRunEncodesEveryTickInOrder(t *testing.T) {
	src := &fakeSource{}
	enc := &mocks.FrameEncoder{}
	clip := timeline.ClipDecodeInfo{
		ClipID: "a", SourcePath: "/a.mp4",
		StartTime: 0, Duration: 1, InPoint: 0, OutPoint: 1,
	}

	res, err := newDriver(src, enc, clip).Run(context.Background())
	require.NoError(t, err)

	// One second at 10 fps.
	assert.Equal(t, int64(10), res.TotalFrames)
	assert.Equal(t, int64(0), res.FramesMissing)
	assert.True(t, enc.Finished)

	frames := enc.Frames()
	require.Len(t, frames, 10)
	for i, f := range frames {
		assert.Equal(t, int64(i), f)
	}
}

func TestRunPicksTopMostClip(t *testing.T) {
	src := &fakeSource{}
	enc := &mocks.FrameEncoder{}
	top := timeline.ClipDecodeInfo{
		ClipID: "top", SourcePath: "/t.mp4",
		StartTime: 0.5, Duration: 0.5, InPoint: 0, OutPoint: 0.5,
	}
	bottom := timeline.ClipDecodeInfo{
		ClipID: "bottom", SourcePath: "/b.mp4",
		StartTime: 0, Duration: 1, InPoint: 0, OutPoint: 1,
	}

	res, err := newDriver(src, enc, top, bottom).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.FramesMissing)

	// Ticks 0..4 fall before the top clip starts, 5..9 inside it.
	want := []string{
		"bottom", "bottom", "bottom", "bottom", "bottom",
		"top", "top", "top", "top", "top",
	}
	assert.Equal(t, want, src.requested())
}

func TestRunExportsStaggeredClipsAcrossFullRange(t *testing.T) {
	src := &fakeSource{}
	enc := &mocks.FrameEncoder{}
	top := timeline.ClipDecodeInfo{
		ClipID: "b", SourcePath: "/b.mp4",
		StartTime: 2, Duration: 10, InPoint: 0, OutPoint: 10,
	}
	bottom := timeline.ClipDecodeInfo{
		ClipID: "a", SourcePath: "/a.mp4",
		StartTime: 0, Duration: 10, InPoint: 0, OutPoint: 10,
	}

	settings := testSettings()
	settings.FPS = 30

	d := New(Options{
		Settings:    settings,
		Clips:       []timeline.ClipDecodeInfo{top, bottom},
		Source:      src,
		Encoder:     enc,
		Placeholder: &mocks.PlaceholderRenderer{},
		Logger:      &mocks.Logger{},
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	// Two staggered 10s clips cover 0..12s; every one of the 360 output
	// ticks ships a decoded frame, in strict presentation order.
	assert.Equal(t, int64(360), res.TotalFrames)
	assert.Equal(t, int64(0), res.FramesMissing)
	frames := enc.Frames()
	require.Len(t, frames, 360)
	for i, f := range frames {
		assert.Equal(t, int64(i), f)
	}

	// The bottom clip serves the first 2s, the top clip from there on.
	reqs := src.requested()
	require.Len(t, reqs, 360)
	assert.Equal(t, "a", reqs[0])
	assert.Equal(t, "a", reqs[59])
	assert.Equal(t, "b", reqs[60])
	assert.Equal(t, "b", reqs[359])
}

func TestRunSubstitutesPlaceholderOnDecodeFailure(t *testing.T) {
	src := &fakeSource{
		decode: func(ctx context.Context, clipID string, t float64) (image.Image, error) {
			if t >= 0.45 && t < 0.65 {
				return nil, errors.New("decode stalled")
			}
			return image.NewRGBA(image.Rect(0, 0, 64, 36)), nil
		},
	}
	enc := &mocks.FrameEncoder{}
	ph := &mocks.PlaceholderRenderer{}
	clip := timeline.ClipDecodeInfo{
		ClipID: "a", ClipName: "broken",
		SourcePath: "/a.mp4",
		StartTime:  0, Duration: 1, InPoint: 0, OutPoint: 1,
	}

	sink := &mocks.DiagnosticsSink{EnabledValue: true}
	d := New(Options{
		Settings:    testSettings(),
		Clips:       []timeline.ClipDecodeInfo{clip},
		Source:      src,
		Encoder:     enc,
		Placeholder: ph,
		Logger:      &mocks.Logger{},
		Sink:        sink,
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	// Ticks at 0.5s and 0.6s fail; every tick still ships a frame.
	assert.Equal(t, int64(2), res.FramesMissing)
	assert.Equal(t, 2, ph.CallCount())
	assert.Len(t, enc.Frames(), 10)
	assert.Equal(t, "broken", ph.Calls[0].ClipName)
	assert.Len(t, sink.SavedFrames, 2)
}

func TestRunFillsGapsWithBlack(t *testing.T) {
	src := &fakeSource{}
	enc := &mocks.FrameEncoder{}
	clip := timeline.ClipDecodeInfo{
		ClipID: "a", SourcePath: "/a.mp4",
		StartTime: 0.5, Duration: 0.5, InPoint: 0, OutPoint: 0.5,
	}

	d := New(Options{
		Settings:    testSettings(),
		Clips:       []timeline.ClipDecodeInfo{clip},
		Source:      src,
		Encoder:     enc,
		Placeholder: &mocks.PlaceholderRenderer{},
		Logger:      &mocks.Logger{},
		End:         1,
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	// The leading gap is not a missing frame; it is empty timeline.
	assert.Equal(t, int64(0), res.FramesMissing)
	assert.Len(t, enc.Frames(), 10)
	assert.Len(t, src.requested(), 5)
}

func TestRunPausesPrefetchForTheWholeRun(t *testing.T) {
	src := &fakeSource{}
	enc := &mocks.FrameEncoder{}
	clip := timeline.ClipDecodeInfo{
		ClipID: "a", SourcePath: "/a.mp4",
		StartTime: 0, Duration: 0.5, InPoint: 0, OutPoint: 0.5,
	}

	_, err := newDriver(src, enc, clip).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, src.exportMode)
}

func TestRunCancelsSessionOnEncodeError(t *testing.T) {
	src := &fakeSource{}
	enc := &mocks.FrameEncoder{
		EncodeFrameFunc: func(ctx context.Context, frameNum int64, img image.Image) error {
			if frameNum == 3 {
				return errors.New("helper gone")
			}
			return nil
		},
	}
	clip := timeline.ClipDecodeInfo{
		ClipID: "a", SourcePath: "/a.mp4",
		StartTime: 0, Duration: 1, InPoint: 0, OutPoint: 1,
	}

	_, err := newDriver(src, enc, clip).Run(context.Background())
	require.Error(t, err)
	assert.True(t, enc.Canceled)
	assert.False(t, enc.Finished)
}

func TestRunCancelsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		decode: func(_ context.Context, clipID string, t float64) (image.Image, error) {
			if t >= 0.3 {
				cancel()
			}
			return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
		},
	}
	enc := &mocks.FrameEncoder{}
	clip := timeline.ClipDecodeInfo{
		ClipID: "a", SourcePath: "/a.mp4",
		StartTime: 0, Duration: 1, InPoint: 0, OutPoint: 1,
	}

	_, err := newDriver(src, enc, clip).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, enc.Canceled)
}

func TestRunRejectsBadSettings(t *testing.T) {
	src := &fakeSource{}
	for _, tc := range []struct {
		name   string
		mutate func(*ports.EncodeSettings)
	}{
		{"zero width", func(s *ports.EncodeSettings) { s.Width = 0 }},
		{"zero fps", func(s *ports.EncodeSettings) { s.FPS = 0 }},
		{"no output", func(s *ports.EncodeSettings) { s.Output = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			settings := testSettings()
			tc.mutate(&settings)
			d := New(Options{
				Settings:    settings,
				Source:      src,
				Encoder:     &mocks.FrameEncoder{},
				Placeholder: &mocks.PlaceholderRenderer{},
				Logger:      &mocks.Logger{},
			})
			_, err := d.Run(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestFitLetterboxes(t *testing.T) {
	d := newDriver(&fakeSource{}, &mocks.FrameEncoder{})

	// A square source inside a 16:9 canvas keeps its aspect and centers.
	out := d.fit(image.NewRGBA(image.Rect(0, 0, 50, 50)))
	bounds := out.Bounds()
	assert.Equal(t, 128, bounds.Dx())
	assert.Equal(t, 72, bounds.Dy())
}
