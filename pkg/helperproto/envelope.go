package helperproto

import (
	"encoding/json"
	"fmt"
)

// Command names accepted by the helper process.
const (
	CmdAuth            = "auth"
	CmdOpen            = "open"
	CmdDecode          = "decode"
	CmdDecodeRange     = "decode_range"
	CmdPrefetch        = "prefetch"
	CmdStartEncode     = "start_encode"
	CmdEncodeFrame     = "encode_frame"
	CmdFinishEncode    = "finish_encode"
	CmdCancelEncode    = "cancel_encode"
	CmdClose           = "close"
	CmdInfo            = "info"
	CmdPing            = "ping"
	CmdDownloadYouTube = "download_youtube"
	CmdGetFile         = "get_file"
)

// Helper error codes. Surfaced verbatim to callers.
const (
	CodeAuthRequired     = "AUTH_REQUIRED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeUnsupportedCodec = "UNSUPPORTED_CODEC"
	CodeDecodeError      = "DECODE_ERROR"
	CodeEncodeError      = "ENCODE_ERROR"
	CodeOutOfMemory      = "OUT_OF_MEMORY"
	CodeInvalidFrame     = "INVALID_FRAME"
	CodeInvalidPath      = "INVALID_PATH"
	CodeFileNotOpen      = "FILE_NOT_OPEN"
	CodeEncodeNotStarted = "ENCODE_NOT_STARTED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Command is the client-to-helper JSON envelope. Every command carries a
// fresh correlation id.
type Command struct {
	ID   string         `json:"id"`
	Cmd  string         `json:"cmd"`
	Args map[string]any `json:"args,omitempty"`
}

// Response is the helper's terminal envelope for a command: either
// {ok:true, data} or {ok:false, error}.
type Response struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *CommandError   `json:"error,omitempty"`
}

// Progress is a non-terminal envelope for long-running commands; zero or
// more may precede the terminal Response.
type Progress struct {
	ID          string  `json:"id"`
	Progress    float64 `json:"progress"`
	FramesDone  int64   `json:"frames_done"`
	FramesTotal int64   `json:"frames_total"`
	EtaMs       *int64  `json:"eta_ms,omitempty"`
}

// CommandError carries a documented helper error code and message.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("helper: %s: %s", e.Code, e.Message)
}

// FileInfo is the data payload of a successful open response.
type FileInfo struct {
	FileID     string  `json:"file_id"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	DurationMs int64   `json:"duration_ms"`
	FrameCount int64   `json:"frame_count"`
	Codec      string  `json:"codec"`
}

// EncodeDone is the data payload of a successful finish_encode response.
type EncodeDone struct {
	FramesEncoded int64  `json:"frames_encoded"`
	DurationMs    int64  `json:"duration_ms"`
	FileSize      int64  `json:"file_size"`
	OutputPath    string `json:"output_path"`
}

// HelperInfo is the data payload of an info response.
type HelperInfo struct {
	Version   string   `json:"version"`
	Codecs    []string `json:"codecs"`
	OpenFiles int      `json:"open_files"`
}

// UnmarshalData decodes a response data payload into v.
func UnmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("helperproto: response carried no data")
	}
	return json.Unmarshal(data, v)
}

// MarshalCommand encodes a Command envelope payload, ready to be framed
// by WriteMessage with TypeCommand.
func MarshalCommand(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command %q: %w", cmd.Cmd, err)
	}
	return payload, nil
}

// DecodeResponse parses a RESPONSE or ERROR payload. ERROR messages are
// responses whose ok field is false; some helpers send them with the
// dedicated ERROR message type instead.
func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return resp, &ParseError{Field: "response envelope", Err: err}
	}
	if resp.ID == "" {
		return resp, &ParseError{Field: "response id", Err: fmt.Errorf("missing")}
	}
	if !resp.OK && resp.Error == nil {
		resp.Error = &CommandError{Code: CodeInternalError, Message: "helper reported failure without detail"}
	}
	return resp, nil
}

// DecodeProgress parses a PROGRESS payload.
func DecodeProgress(payload []byte) (Progress, error) {
	var p Progress
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, &ParseError{Field: "progress envelope", Err: err}
	}
	if p.ID == "" {
		return p, &ParseError{Field: "progress id", Err: fmt.Errorf("missing")}
	}
	return p, nil
}
