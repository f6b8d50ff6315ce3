// Package codecdetect probes MP4 containers for their video codec so the
// decoder factory can choose between the in-process backend and the
// helper process.
package codecdetect

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"
)

// Codec identifies a video codec found in a container.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecVP9     Codec = "vp9"
	CodecUnknown Codec = "unknown"
)

// NativeEligible reports whether the in-process decoder can handle the
// codec. Everything else goes to the helper process.
func NativeEligible(c Codec) bool {
	return c == CodecH264
}

// DetectFromFile probes the codec of the first video track in path.
func DetectFromFile(path string) (Codec, error) {
	f, err := os.Open(path)
	if err != nil {
		return CodecUnknown, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return DetectFromReader(f)
}

// DetectFromReader probes the codec from an io.ReadSeeker. The reader is
// rewound afterwards so it can be handed to a decoder.
func DetectFromReader(reader io.ReadSeeker) (Codec, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return CodecUnknown, fmt.Errorf("decode mp4: %w", err)
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return CodecUnknown, fmt.Errorf("seek: %w", err)
	}

	return detect(mp4File)
}

// DetectFromBytes probes the codec from in-memory MP4 data.
func DetectFromBytes(data []byte) (Codec, error) {
	return DetectFromReader(bytes.NewReader(data))
}

func detect(mp4File *mp4.File) (Codec, error) {
	if mp4File.IsFragmented() {
		if mp4File.Init != nil && mp4File.Init.Moov != nil {
			if c := detectInMoov(mp4File.Init.Moov); c != CodecUnknown {
				return c, nil
			}
		}
	}

	if mp4File.Moov != nil {
		if c := detectInMoov(mp4File.Moov); c != CodecUnknown {
			return c, nil
		}
	}

	return CodecUnknown, fmt.Errorf("no video track found")
}

func detectInMoov(moov *mp4.MoovBox) Codec {
	for _, trak := range moov.Traks {
		if c := detectInTrack(trak); c != CodecUnknown {
			return c
		}
	}
	return CodecUnknown
}

func detectInTrack(trak *mp4.TrakBox) Codec {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
		return CodecUnknown
	}
	if trak.Mdia.Hdlr.HandlerType != "vide" {
		return CodecUnknown
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return CodecUnknown
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		switch child.Type() {
		case "avc1", "avc3":
			return CodecH264
		case "hvc1", "hev1":
			return CodecHEVC
		case "av01":
			return CodecAV1
		case "vp09":
			return CodecVP9
		}
	}

	return CodecUnknown
}
