package mocks

import (
	"image"
	"sync"

	"github.com/user/frameline/pkg/ports"
)

// DiagnosticsSink is a mock implementation of ports.DiagnosticsSink.
type DiagnosticsSink struct {
	EnabledValue bool

	mu          sync.Mutex
	HealthJSON  [][]byte
	SavedFrames []SavedFrame
}

// SavedFrame records a SaveFrame call.
type SavedFrame struct {
	ClipID   string
	FrameNum int64
}

func (m *DiagnosticsSink) Enabled() bool {
	return m.EnabledValue
}

func (m *DiagnosticsSink) SaveHealthJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HealthJSON = append(m.HealthJSON, data)
	return nil
}

func (m *DiagnosticsSink) SaveFrame(clipID string, frameNum int64, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SavedFrames = append(m.SavedFrames, SavedFrame{ClipID: clipID, FrameNum: frameNum})
	return nil
}

var _ ports.DiagnosticsSink = (*DiagnosticsSink)(nil)
