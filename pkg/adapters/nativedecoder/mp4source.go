package nativedecoder

import (
	"errors"
	"fmt"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/frameline/pkg/ports"
)

// ErrFragmentedNotSupported routes fragmented MP4s to the helper
// process, which decodes them with a full demuxer.
var ErrFragmentedNotSupported = errors.New("nativedecoder: fragmented mp4 not supported")

type sampleInfo struct {
	offset uint64
	size   uint32
	timeMs int64
	durMs  int64
	key    bool
}

// mp4Source indexes the video track of a progressive MP4 so individual
// samples can be read by frame number without walking the whole file.
type mp4Source struct {
	f       *os.File
	samples []sampleInfo
	spsPPS  []byte
	meta    ports.FileMetadata
}

// openSource parses the container at path and builds the sample index.
func openSource(path string) (*mp4Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	src, err := indexFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func indexFile(f *os.File) (*mp4Source, error) {
	mp4File, err := mp4.DecodeFile(f)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}
	if mp4File.IsFragmented() {
		return nil, ErrFragmentedNotSupported
	}
	if mp4File.Moov == nil {
		return nil, fmt.Errorf("no moov box found")
	}

	var trak *mp4.TrakBox
	var avcC *mp4.AvcCBox
	var width, height int
	for _, t := range mp4File.Moov.Traks {
		if t.Mdia == nil || t.Mdia.Hdlr == nil || t.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if t.Mdia.Minf == nil || t.Mdia.Minf.Stbl == nil || t.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		for _, child := range t.Mdia.Minf.Stbl.Stsd.Children {
			if avc1, ok := child.(*mp4.VisualSampleEntryBox); ok && avc1.AvcC != nil {
				trak = t
				avcC = avc1.AvcC
				width = int(avc1.Width)
				height = int(avc1.Height)
				break
			}
		}
		if trak != nil {
			break
		}
	}
	if trak == nil {
		return nil, fmt.Errorf("no H.264 video track found")
	}

	var timescale uint32 = 1000
	var durationUnits uint64
	if trak.Mdia.Mdhd != nil {
		timescale = trak.Mdia.Mdhd.Timescale
		durationUnits = trak.Mdia.Mdhd.Duration
	}

	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil {
		return nil, fmt.Errorf("incomplete sample table")
	}
	sampleCount := stbl.Stsz.SampleNumber

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}

	samples := make([]sampleInfo, 0, sampleCount)
	for nr := uint32(1); nr <= sampleCount; nr++ {
		offset, err := sampleOffset(stbl, nr)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", nr, err)
		}

		var decodeTime uint64
		var dur uint32
		if stbl.Stts != nil {
			decodeTime, dur = stbl.Stts.GetDecodeTime(nr)
		}

		samples = append(samples, sampleInfo{
			offset: offset,
			size:   stbl.Stsz.GetSampleSize(int(nr)),
			timeMs: int64(decodeTime * 1000 / uint64(timescale)),
			durMs:  int64(uint64(dur) * 1000 / uint64(timescale)),
			key:    syncSamples[nr] || len(syncSamples) == 0,
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("video track has no samples")
	}

	durationMs := int64(durationUnits * 1000 / uint64(timescale))
	fps := 0.0
	if durationMs > 0 {
		fps = float64(len(samples)) * 1000 / float64(durationMs)
	}

	return &mp4Source{
		f:       f,
		samples: samples,
		spsPPS:  annexBParameterSets(avcC),
		meta: ports.FileMetadata{
			Width:      width,
			Height:     height,
			FPS:        fps,
			DurationMs: durationMs,
			FrameCount: int64(len(samples)),
			Codec:      "h264",
		},
	}, nil
}

// sampleOffset resolves the absolute file offset of sample nr via the
// chunk tables.
func sampleOffset(stbl *mp4.StblBox, nr uint32) (uint64, error) {
	chunkNr, firstSampleInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
	if err != nil {
		return 0, fmt.Errorf("get chunk nr: %w", err)
	}

	var chunkOffset uint64
	switch {
	case stbl.Stco != nil:
		chunkOffset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, fmt.Errorf("chunk nr %d out of range", chunkNr)
		}
		chunkOffset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return 0, fmt.Errorf("no stco or co64 box")
	}

	offset := chunkOffset
	for s := uint32(firstSampleInChunk); s < nr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}
	return offset, nil
}

// annexBParameterSets renders the avcC SPS and PPS NALUs with start
// codes, ready to prepend to keyframe access units.
func annexBParameterSets(avcC *mp4.AvcCBox) []byte {
	var out []byte
	for _, sps := range avcC.SPSnalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, sps...)
	}
	for _, pps := range avcC.PPSnalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, pps...)
	}
	return out
}

func (s *mp4Source) metadata() ports.FileMetadata {
	return s.meta
}

func (s *mp4Source) count() int64 {
	return int64(len(s.samples))
}

// gopStart returns the nearest keyframe at or before frame, which is
// where a random-access decode must begin.
func (s *mp4Source) gopStart(frame int64) int64 {
	for i := frame; i > 0; i-- {
		if s.samples[i].key {
			return i
		}
	}
	return 0
}

// accessUnit reads sample i and returns it in Annex B format, with the
// parameter sets prepended on keyframes.
func (s *mp4Source) accessUnit(i int64) ([]byte, error) {
	if i < 0 || i >= int64(len(s.samples)) {
		return nil, ErrFrameOutOfRange
	}
	info := s.samples[i]

	raw := make([]byte, info.size)
	if _, err := s.f.ReadAt(raw, int64(info.offset)); err != nil {
		return nil, fmt.Errorf("read sample %d: %w", i, err)
	}

	annexB := avccToAnnexB(raw)
	if !info.key {
		return annexB, nil
	}

	out := make([]byte, 0, len(s.spsPPS)+len(annexB))
	out = append(out, s.spsPPS...)
	out = append(out, annexB...)
	return out, nil
}

func (s *mp4Source) close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// avccToAnnexB rewrites length-prefixed NALUs with start codes.
func avccToAnnexB(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	offset := 0
	for offset+4 <= len(data) {
		naluLen := int(data[offset])<<24 | int(data[offset+1])<<16 |
			int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4
		if naluLen < 0 || offset+naluLen > len(data) {
			break
		}
		out = append(out, 0, 0, 0, 1)
		out = append(out, data[offset:offset+naluLen]...)
		offset += naluLen
	}
	return out
}
