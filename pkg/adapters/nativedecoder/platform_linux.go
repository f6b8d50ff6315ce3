//go:build linux

package nativedecoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"sync"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ffmpegDecoder shells out to ffmpeg. The process is stateless between
// invocations, so the decoder accumulates the access units of the
// current GOP and re-feeds the whole prefix on every call; the newest
// picture in the output is the decode result. A new SPS resets the
// accumulator.
type ffmpegDecoder struct {
	mu          sync.Mutex
	ffmpegPath  string
	initialized bool
	gop         []byte
}

func newPlatformDecoder() platformDecoder {
	return &ffmpegDecoder{}
}

func checkPlatformAvailability() bool {
	_, err := findFFmpeg()
	return err == nil
}

func (d *ffmpegDecoder) init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := findFFmpeg()
	if err != nil {
		return err
	}
	d.ffmpegPath = path
	d.initialized = true
	d.gop = nil
	return nil
}

func (d *ffmpegDecoder) decodeFrame(data []byte) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, ErrNotInitialized
	}
	if len(data) == 0 {
		return nil, ErrDecodeFailed
	}

	if containsSPS(data) {
		d.gop = d.gop[:0]
	}
	d.gop = append(d.gop, data...)

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(d.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(d.gop)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecodeFailed, err, stderr.String())
	}

	// The output is a concatenation of PNGs, one per decoded picture;
	// the last one corresponds to the access unit just fed.
	last := bytes.LastIndex(stdout.Bytes(), pngMagic)
	if last < 0 {
		return nil, nil
	}

	img, err := png.Decode(bytes.NewReader(stdout.Bytes()[last:]))
	if err != nil {
		return nil, fmt.Errorf("%w: decode png: %v", ErrDecodeFailed, err)
	}
	return img, nil
}

func (d *ffmpegDecoder) close() {
	d.mu.Lock()
	d.initialized = false
	d.gop = nil
	d.mu.Unlock()
}

// containsSPS reports whether an Annex B access unit carries an SPS NALU,
// which marks the start of a new decodable GOP prefix.
func containsSPS(data []byte) bool {
	for i := 0; i+4 < len(data); i++ {
		var start int
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			start = i + 3
		} else if i+5 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 1 {
			start = i + 4
		} else {
			continue
		}
		if start < len(data) && data[start]&0x1F == 7 {
			return true
		}
	}
	return false
}
