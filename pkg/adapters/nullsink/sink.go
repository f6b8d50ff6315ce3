// Package nullsink provides a no-op diagnostics sink implementation.
package nullsink

import (
	"image"

	"github.com/user/frameline/pkg/ports"
)

// Sink discards all diagnostic output.
type Sink struct{}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveHealthJSON does nothing.
func (s *Sink) SaveHealthJSON(data []byte) error {
	return nil
}

// SaveFrame does nothing.
func (s *Sink) SaveFrame(clipID string, frameNum int64, img image.Image) error {
	return nil
}

var _ ports.DiagnosticsSink = (*Sink)(nil)
