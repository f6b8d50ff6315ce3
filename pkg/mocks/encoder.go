package mocks

import (
	"context"
	"image"
	"sync"

	"github.com/user/frameline/pkg/ports"
)

// FrameEncoder is a mock implementation of ports.FrameEncoder that
// records the frames submitted to it.
type FrameEncoder struct {
	StartFunc       func(ctx context.Context, settings ports.EncodeSettings) error
	EncodeFrameFunc func(ctx context.Context, frameNum int64, img image.Image) error
	FinishFunc      func(ctx context.Context) (ports.EncodeResult, error)

	mu            sync.Mutex
	Started       bool
	Settings      ports.EncodeSettings
	EncodedFrames []int64
	Finished      bool
	Canceled      bool
}

func (m *FrameEncoder) StartEncode(ctx context.Context, settings ports.EncodeSettings) error {
	m.mu.Lock()
	m.Started = true
	m.Settings = settings
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, settings)
	}
	return nil
}

func (m *FrameEncoder) EncodeFrame(ctx context.Context, frameNum int64, img image.Image) error {
	m.mu.Lock()
	m.EncodedFrames = append(m.EncodedFrames, frameNum)
	m.mu.Unlock()
	if m.EncodeFrameFunc != nil {
		return m.EncodeFrameFunc(ctx, frameNum, img)
	}
	return nil
}

func (m *FrameEncoder) FinishEncode(ctx context.Context) (ports.EncodeResult, error) {
	m.mu.Lock()
	m.Finished = true
	frames := int64(len(m.EncodedFrames))
	m.mu.Unlock()
	if m.FinishFunc != nil {
		return m.FinishFunc(ctx)
	}
	return ports.EncodeResult{FramesEncoded: frames}, nil
}

func (m *FrameEncoder) CancelEncode(ctx context.Context) error {
	m.mu.Lock()
	m.Canceled = true
	m.mu.Unlock()
	return nil
}

// Frames returns a copy of the encoded frame numbers in submission order.
func (m *FrameEncoder) Frames() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.EncodedFrames))
	copy(out, m.EncodedFrames)
	return out
}

var _ ports.FrameEncoder = (*FrameEncoder)(nil)
