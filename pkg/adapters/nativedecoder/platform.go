// Package nativedecoder decodes H.264 clips in-process using
// platform-native APIs:
//   - macOS: VideoToolbox
//   - Linux: ffmpeg (external process)
//
// It supports random access: a request for an arbitrary frame seeks back
// to the nearest preceding keyframe and decodes forward through the GOP.
package nativedecoder

import (
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
)

var (
	// ErrNotInitialized is returned when decode is called before Open.
	ErrNotInitialized = errors.New("nativedecoder: decoder not initialized")

	// ErrDecodeFailed is returned when the platform decoder produces no
	// image for a frame.
	ErrDecodeFailed = errors.New("nativedecoder: decode failed")

	// ErrFFmpegNotFound is returned when ffmpeg is not found (Linux only).
	ErrFFmpegNotFound = errors.New("nativedecoder: ffmpeg not found in PATH")

	// ErrPlatformNotSupported is returned on platforms without an
	// in-process H.264 decoder.
	ErrPlatformNotSupported = errors.New("nativedecoder: platform not supported")

	// ErrFrameOutOfRange is returned for frame numbers outside the clip.
	ErrFrameOutOfRange = errors.New("nativedecoder: frame out of range")
)

// platformDecoder is implemented per platform. decodeFrame consumes one
// access unit in Annex B format and returns the decoded picture, or nil
// when the decoder needs more input before emitting.
type platformDecoder interface {
	init() error
	decodeFrame(data []byte) (image.Image, error)
	close()
}

var customFFmpegPath string

// SetFFmpegPath overrides ffmpeg discovery with an explicit binary path.
func SetFFmpegPath(path string) {
	customFFmpegPath = path
}

// IsAvailable reports whether in-process H.264 decoding works on this
// platform.
func IsAvailable() bool {
	return checkPlatformAvailability()
}

// findFFmpeg locates the ffmpeg binary, honoring SetFFmpegPath first.
func findFFmpeg() (string, error) {
	if customFFmpegPath != "" {
		if _, err := os.Stat(customFFmpegPath); err == nil {
			return customFFmpegPath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, customFFmpegPath)
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	for _, p := range []string{
		"/usr/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/opt/homebrew/bin/ffmpeg",
		"/snap/bin/ffmpeg",
	} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}
