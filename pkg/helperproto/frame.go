// Package helperproto implements the wire protocol spoken with the
// external decode/encode helper process. Every message starts with a
// 2-byte magic marker and a fixed 16-byte header; binary frame messages
// carry pixel payloads, while COMMAND, RESPONSE, ERROR and PROGRESS
// messages carry JSON envelopes correlated by a caller-generated id.
package helperproto

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the 2-byte marker preceding every frame header.
var Magic = [2]byte{0xFD, 0xEC}

// HeaderSize is the fixed frame header length, excluding the magic marker
// and the 4-byte payload length that follows the header.
const HeaderSize = 16

// MaxPayloadSize bounds a single message payload. 8K RGBA frames fit with
// room to spare; anything larger is a protocol error, not an allocation.
const MaxPayloadSize = 256 << 20

// Message types.
const (
	TypeFrame    uint8 = 0x01
	TypeCommand  uint8 = 0x10
	TypeResponse uint8 = 0x11
	TypeError    uint8 = 0x12
	TypeProgress uint8 = 0x13
)

// Frame flags (bitmask).
const (
	FlagCompressed uint8 = 1 << 0 // payload is deflate-compressed
	FlagScaled     uint8 = 1 << 1 // frame was decoded at reduced resolution
	FlagDelta      uint8 = 1 << 2 // payload is a delta against the previous frame
)

// FrameHeader is the fixed 16-byte preamble of every message. Multi-byte
// fields are little-endian; the last two header bytes are reserved.
type FrameHeader struct {
	Type      uint8
	Flags     uint8
	Width     uint16
	Height    uint16
	FrameNum  uint32
	RequestID uint32
}

// ParseError reports a malformed header or payload. Protocol errors are
// logged and dropped; they never tear down the connection.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("helperproto: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AppendHeader appends the magic marker and the encoded header to buf.
func AppendHeader(buf []byte, h FrameHeader) []byte {
	buf = append(buf, Magic[0], Magic[1])
	buf = append(buf, h.Type, h.Flags)
	buf = binary.LittleEndian.AppendUint16(buf, h.Width)
	buf = binary.LittleEndian.AppendUint16(buf, h.Height)
	buf = binary.LittleEndian.AppendUint32(buf, h.FrameNum)
	buf = binary.LittleEndian.AppendUint32(buf, h.RequestID)
	buf = append(buf, 0, 0) // reserved
	return buf
}

// ParseHeader decodes a 16-byte header (magic already consumed).
func ParseHeader(data []byte) (FrameHeader, error) {
	var h FrameHeader
	if len(data) < HeaderSize {
		return h, &ParseError{Field: "header", Err: io.ErrUnexpectedEOF}
	}
	h.Type = data[0]
	h.Flags = data[1]
	h.Width = binary.LittleEndian.Uint16(data[2:4])
	h.Height = binary.LittleEndian.Uint16(data[4:6])
	h.FrameNum = binary.LittleEndian.Uint32(data[6:10])
	h.RequestID = binary.LittleEndian.Uint32(data[10:14])
	return h, nil
}

// WriteMessage writes one complete message: magic, header, payload length,
// payload. The message is assembled into a single Write call so concurrent
// writers interleave at message granularity, not byte granularity.
func WriteMessage(w io.Writer, h FrameHeader, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &ParseError{Field: "payload", Err: fmt.Errorf("length %d exceeds limit", len(payload))}
	}

	buf := make([]byte, 0, 2+HeaderSize+4+len(payload))
	buf = AppendHeader(buf, h)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one complete message from r. It returns a ParseError
// for a bad magic marker or an oversized payload, and the underlying read
// error (typically io.EOF or a net error) when the stream breaks.
func ReadMessage(r io.Reader) (FrameHeader, []byte, error) {
	var pre [2 + HeaderSize + 4]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return FrameHeader{}, nil, err
	}

	if pre[0] != Magic[0] || pre[1] != Magic[1] {
		return FrameHeader{}, nil, &ParseError{
			Field: "magic",
			Err:   fmt.Errorf("got 0x%02x 0x%02x", pre[0], pre[1]),
		}
	}

	h, err := ParseHeader(pre[2 : 2+HeaderSize])
	if err != nil {
		return FrameHeader{}, nil, err
	}

	length := binary.LittleEndian.Uint32(pre[2+HeaderSize:])
	if length > MaxPayloadSize {
		return FrameHeader{}, nil, &ParseError{
			Field: "payload",
			Err:   fmt.Errorf("length %d exceeds limit", length),
		}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return FrameHeader{}, nil, err
		}
	}

	return h, payload, nil
}

// CompressPayload deflate-compresses a pixel payload for the COMPRESSED
// flag.
func CompressPayload(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressPayload inflates a COMPRESSED payload. The expected size is
// the uncompressed pixel buffer size derived from the header dimensions;
// a mismatch is a protocol error.
func DecompressPayload(data []byte, expected int) ([]byte, error) {
	zr := flate.NewReader(bytes.NewReader(data))
	defer zr.Close()

	out := make([]byte, 0, expected)
	buf := bytes.NewBuffer(out)
	n, err := io.Copy(buf, io.LimitReader(zr, int64(expected)+1))
	if err != nil {
		return nil, &ParseError{Field: "compressed payload", Err: err}
	}
	if int(n) != expected {
		return nil, &ParseError{
			Field: "compressed payload",
			Err:   fmt.Errorf("inflated to %d bytes, expected %d", n, expected),
		}
	}
	return buf.Bytes(), nil
}
