package helperclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/user/frameline/pkg/helperproto"
)

// Open asks the helper to open a media file for decoding. The returned
// file id scopes all later decode and close commands.
func (c *Client) Open(ctx context.Context, path string) (helperproto.FileInfo, error) {
	var info helperproto.FileInfo
	data, err := c.do(ctx, helperproto.CmdOpen, map[string]any{"path": path})
	if err != nil {
		return info, err
	}
	if err := helperproto.UnmarshalData(data, &info); err != nil {
		return info, err
	}
	return info, nil
}

// CloseFile releases a helper-side open file.
func (c *Client) CloseFile(ctx context.Context, fileID string) error {
	_, err := c.do(ctx, helperproto.CmdClose, map[string]any{"file_id": fileID})
	return err
}

// Decode requests a single frame. The result arrives as a binary frame
// message correlated by request id; a failure arrives as an error
// envelope correlated by command id. Whichever lands first resolves the
// call.
func (c *Client) Decode(ctx context.Context, fileID string, frameNum int64, scale float64, compress bool) (*image.RGBA, error) {
	reqID := c.reqSeq.Add(1)
	frameCh := make(chan frameResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	c.frames[reqID] = frameCh
	c.cmdSeq++
	id := fmt.Sprintf("c-%d", c.cmdSeq)
	respCh := make(chan cmdResult, 1)
	c.pending[id] = respCh
	c.mu.Unlock()

	args := map[string]any{
		"file_id":    fileID,
		"frame":      frameNum,
		"request_id": reqID,
	}
	if scale > 0 && scale < 1 {
		args["scale"] = scale
	}
	if compress {
		args["compress"] = true
	}

	payload, err := helperproto.MarshalCommand(helperproto.Command{ID: id, Cmd: helperproto.CmdDecode, Args: args})
	if err != nil {
		c.unregister(id)
		c.unregisterFrame(reqID)
		return nil, err
	}
	if err := c.writeMessage(conn, helperproto.FrameHeader{Type: helperproto.TypeCommand}, payload); err != nil {
		c.unregister(id)
		c.unregisterFrame(reqID)
		return nil, fmt.Errorf("send decode: %w", err)
	}

	timer := time.NewTimer(c.opts.DecodeTimeout)
	defer timer.Stop()

	select {
	case res := <-frameCh:
		c.unregister(id)
		if res.err != nil {
			return nil, res.err
		}
		return rgbaFromPayload(res.header, res.payload)
	case res := <-respCh:
		c.unregisterFrame(reqID)
		if res.err != nil {
			return nil, res.err
		}
		if !res.resp.OK {
			return nil, res.resp.Error
		}
		// An ok envelope without pixels; keep waiting on the frame.
		select {
		case fres := <-frameCh:
			if fres.err != nil {
				return nil, fres.err
			}
			return rgbaFromPayload(fres.header, fres.payload)
		case <-ctx.Done():
			c.unregisterFrame(reqID)
			return nil, ctx.Err()
		case <-timer.C:
			c.unregisterFrame(reqID)
			return nil, fmt.Errorf("helperclient: decode of frame %d timed out", frameNum)
		}
	case <-ctx.Done():
		c.unregister(id)
		c.unregisterFrame(reqID)
		return nil, ctx.Err()
	case <-timer.C:
		c.unregister(id)
		c.unregisterFrame(reqID)
		return nil, fmt.Errorf("helperclient: decode of frame %d timed out after %s", frameNum, c.opts.DecodeTimeout)
	}
}

// DecodeRange asks the helper to decode a contiguous frame range in the
// background; individual frames still arrive via Decode requests.
func (c *Client) DecodeRange(ctx context.Context, fileID string, start, end int64, priority int) error {
	_, err := c.do(ctx, helperproto.CmdDecodeRange, map[string]any{
		"file_id":  fileID,
		"start":    start,
		"end":      end,
		"priority": priority,
	})
	return err
}

// Prefetch hints the helper to warm its own cache around a frame. Fire
// and forget; no response is expected.
func (c *Client) Prefetch(fileID string, aroundFrame int64, radius int) error {
	return c.notify(helperproto.CmdPrefetch, map[string]any{
		"file_id": fileID,
		"frame":   aroundFrame,
		"radius":  radius,
	})
}

// StartEncode opens a helper-side encode session. Exactly one session
// may be active per connection.
func (c *Client) StartEncode(ctx context.Context, width, height int, fps float64, bitrate int64, codec, output string) error {
	reqID := c.reqSeq.Add(1)
	c.encodeMu.Lock()
	c.encodeReqID = reqID
	c.encodeMu.Unlock()

	_, err := c.do(ctx, helperproto.CmdStartEncode, map[string]any{
		"width":      width,
		"height":     height,
		"fps":        fps,
		"bitrate":    bitrate,
		"codec":      codec,
		"output":     output,
		"request_id": reqID,
	})
	return err
}

// EncodeFrame submits one frame to the active encode session: an
// envelope announcing the frame, then the pixel payload as a binary
// frame message. Both writes happen under one lock so no other message
// can interleave between them.
func (c *Client) EncodeFrame(ctx context.Context, frameNum int64, img *image.RGBA) error {
	c.encodeMu.Lock()
	reqID := c.encodeReqID
	c.encodeMu.Unlock()
	if reqID == 0 {
		return &helperproto.CommandError{Code: helperproto.CodeEncodeNotStarted, Message: "no encode session"}
	}

	bounds := img.Bounds()
	pixels, err := helperproto.CompressPayload(img.Pix)
	if err != nil {
		return err
	}

	id := c.nextID()
	ch := make(chan cmdResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.pending[id] = ch
	c.mu.Unlock()

	envelope, err := helperproto.MarshalCommand(helperproto.Command{
		ID:  id,
		Cmd: helperproto.CmdEncodeFrame,
		Args: map[string]any{
			"frame":      frameNum,
			"request_id": reqID,
		},
	})
	if err != nil {
		c.unregister(id)
		return err
	}

	frameHeader := helperproto.FrameHeader{
		Type:      helperproto.TypeFrame,
		Flags:     helperproto.FlagCompressed,
		Width:     uint16(bounds.Dx()),
		Height:    uint16(bounds.Dy()),
		FrameNum:  uint32(frameNum),
		RequestID: reqID,
	}

	c.writeMu.Lock()
	err = helperproto.WriteMessage(conn, helperproto.FrameHeader{Type: helperproto.TypeCommand}, envelope)
	if err == nil {
		err = helperproto.WriteMessage(conn, frameHeader, pixels)
	}
	c.writeMu.Unlock()
	if err != nil {
		c.unregister(id)
		return fmt.Errorf("send encode_frame: %w", err)
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if !res.resp.OK {
			return res.resp.Error
		}
		return nil
	case <-ctx.Done():
		c.unregister(id)
		return ctx.Err()
	case <-timer.C:
		c.unregister(id)
		return fmt.Errorf("helperclient: encode_frame %d timed out", frameNum)
	}
}

// FinishEncode flushes and closes the encode session. Progress envelopes
// stream to onProgress until the terminal response arrives; the timeout
// is generous because muxing the output can take a while.
func (c *Client) FinishEncode(ctx context.Context, onProgress func(helperproto.Progress)) (helperproto.EncodeDone, error) {
	var done helperproto.EncodeDone

	c.encodeMu.Lock()
	reqID := c.encodeReqID
	c.encodeReqID = 0
	c.encodeMu.Unlock()
	if reqID == 0 {
		return done, &helperproto.CommandError{Code: helperproto.CodeEncodeNotStarted, Message: "no encode session"}
	}

	data, err := c.doWithProgress(ctx, helperproto.CmdFinishEncode,
		map[string]any{"request_id": reqID}, onProgress, 5*time.Minute)
	if err != nil {
		return done, err
	}
	if err := helperproto.UnmarshalData(data, &done); err != nil {
		return done, err
	}
	return done, nil
}

// CancelEncode aborts the active encode session and discards its output.
func (c *Client) CancelEncode(ctx context.Context) error {
	c.encodeMu.Lock()
	reqID := c.encodeReqID
	c.encodeReqID = 0
	c.encodeMu.Unlock()
	if reqID == 0 {
		return nil
	}
	_, err := c.do(ctx, helperproto.CmdCancelEncode, map[string]any{"request_id": reqID})
	return err
}

// Info reports the helper's version, supported codecs and open files.
func (c *Client) Info(ctx context.Context) (helperproto.HelperInfo, error) {
	var info helperproto.HelperInfo
	data, err := c.do(ctx, helperproto.CmdInfo, nil)
	if err != nil {
		return info, err
	}
	if err := helperproto.UnmarshalData(data, &info); err != nil {
		return info, err
	}
	return info, nil
}

// Ping checks connection liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, helperproto.CmdPing, nil)
	return err
}

// DownloadYouTube asks the helper to download a video and returns the
// local path of the downloaded media.
func (c *Client) DownloadYouTube(ctx context.Context, url string, onProgress func(helperproto.Progress)) (string, error) {
	data, err := c.doWithProgress(ctx, helperproto.CmdDownloadYouTube,
		map[string]any{"url": url}, onProgress, 10*time.Minute)
	if err != nil {
		return "", err
	}
	var out struct {
		Path string `json:"path"`
	}
	if err := helperproto.UnmarshalData(data, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

// GetFile fetches a small helper-side file, such as a downloaded
// thumbnail. The content travels base64-encoded in the response data.
func (c *Client) GetFile(ctx context.Context, path string) ([]byte, error) {
	data, err := c.do(ctx, helperproto.CmdGetFile, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	var out struct {
		Content string `json:"content"`
	}
	if err := helperproto.UnmarshalData(data, &out); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(out.Content)
	if err != nil {
		return nil, fmt.Errorf("decode file content: %w", err)
	}
	return raw, nil
}
