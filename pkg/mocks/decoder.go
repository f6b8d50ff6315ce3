// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"image"
	"sync"

	"github.com/user/frameline/pkg/ports"
)

// ClipDecoder is a mock implementation of ports.ClipDecoder.
type ClipDecoder struct {
	OpenFunc        func(ctx context.Context) (ports.FileMetadata, error)
	DecodeFrameFunc func(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error)
	CloseFunc       func() error

	mu           sync.Mutex
	openCalls    int
	decodedCalls []int64
	closeCalls   int
}

func (m *ClipDecoder) Open(ctx context.Context) (ports.FileMetadata, error) {
	m.mu.Lock()
	m.openCalls++
	m.mu.Unlock()
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx)
	}
	return ports.FileMetadata{
		FileID:     "mock",
		Width:      64,
		Height:     36,
		FPS:        30,
		DurationMs: 10000,
		FrameCount: 300,
		Codec:      "h264",
	}, nil
}

func (m *ClipDecoder) DecodeFrame(ctx context.Context, frameNum int64, scaleHint float64) (image.Image, error) {
	m.mu.Lock()
	m.decodedCalls = append(m.decodedCalls, frameNum)
	m.mu.Unlock()
	if m.DecodeFrameFunc != nil {
		return m.DecodeFrameFunc(ctx, frameNum, scaleHint)
	}
	return image.NewRGBA(image.Rect(0, 0, 64, 36)), nil
}

func (m *ClipDecoder) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// OpenCalls reports how many times Open ran.
func (m *ClipDecoder) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// DecodedFrames returns a copy of the frame numbers decoded so far.
func (m *ClipDecoder) DecodedFrames() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.decodedCalls))
	copy(out, m.decodedCalls)
	return out
}

// CloseCalls reports how many times Close ran.
func (m *ClipDecoder) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

var _ ports.ClipDecoder = (*ClipDecoder)(nil)
