package mocks

import (
	"image"
	"sync"

	"github.com/user/frameline/pkg/ports"
)

// PlaceholderRenderer is a mock implementation of ports.PlaceholderRenderer.
type PlaceholderRenderer struct {
	RenderFunc func(width, height int, clipName string, frameNum int64) image.Image

	mu    sync.Mutex
	Calls []PlaceholderCall
}

// PlaceholderCall records a RenderPlaceholder call.
type PlaceholderCall struct {
	ClipName string
	FrameNum int64
}

func (m *PlaceholderRenderer) RenderPlaceholder(width, height int, clipName string, frameNum int64) image.Image {
	m.mu.Lock()
	m.Calls = append(m.Calls, PlaceholderCall{ClipName: clipName, FrameNum: frameNum})
	m.mu.Unlock()
	if m.RenderFunc != nil {
		return m.RenderFunc(width, height, clipName, frameNum)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// CallCount reports how many placeholders were rendered.
func (m *PlaceholderRenderer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ ports.PlaceholderRenderer = (*PlaceholderRenderer)(nil)
