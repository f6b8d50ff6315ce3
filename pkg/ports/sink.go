package ports

import "image"

// DiagnosticsSink abstracts diagnostic output for decode health and frame
// inspection. It allows dumping intermediate results without wiring the
// scheduler to any particular storage.
type DiagnosticsSink interface {
	// Enabled returns true if diagnostic output is enabled.
	Enabled() bool

	// SaveHealthJSON saves a decode-health snapshot as JSON.
	SaveHealthJSON(data []byte) error

	// SaveFrame saves a decoded or placeholder frame for inspection.
	SaveFrame(clipID string, frameNum int64, img image.Image) error
}
