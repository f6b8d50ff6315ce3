// Package filesink provides a file-based diagnostics sink implementation.
package filesink

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"path/filepath"

	"github.com/user/frameline/pkg/ports"
)

// Sink saves diagnostic output under a base directory.
type Sink struct {
	baseDir string
	fs      ports.FileSystem
}

// New creates a file sink rooted at baseDir.
func New(baseDir string, fs ports.FileSystem) *Sink {
	return &Sink{baseDir: baseDir, fs: fs}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// Reset removes frame dumps left over from a previous run so the
// directory only holds output from the current one.
func (s *Sink) Reset() error {
	return s.fs.RemoveAll(filepath.Join(s.baseDir, "frames"))
}

// SaveHealthJSON saves a decode-health snapshot as health.json.
func (s *Sink) SaveHealthJSON(data []byte) error {
	return s.fs.WriteFile(filepath.Join(s.baseDir, "health.json"), data)
}

// SaveFrame saves a frame under frames/<clipID>/frame-NNNNNN.png.
func (s *Sink) SaveFrame(clipID string, frameNum int64, img image.Image) error {
	dir := filepath.Join(s.baseDir, "frames", clipID)
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", frameNum))
	return s.fs.WriteFile(path, buf.Bytes())
}

var _ ports.DiagnosticsSink = (*Sink)(nil)
