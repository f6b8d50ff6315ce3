//go:build !darwin && !linux

package nativedecoder

import "image"

// stubDecoder covers platforms without an in-process backend; the
// decoder factory routes these clips to the helper process instead.
type stubDecoder struct{}

func newPlatformDecoder() platformDecoder {
	return &stubDecoder{}
}

func (d *stubDecoder) init() error {
	return ErrPlatformNotSupported
}

func (d *stubDecoder) decodeFrame(data []byte) (image.Image, error) {
	return nil, ErrPlatformNotSupported
}

func (d *stubDecoder) close() {}

func checkPlatformAvailability() bool {
	return false
}
