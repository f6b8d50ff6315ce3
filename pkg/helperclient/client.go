// Package helperclient owns the persistent socket connection to the
// external decode/encode helper process: authentication, reconnect
// policy, and correlation of responses, progress updates and binary frame
// messages to their originating commands.
package helperclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/frameline/pkg/helperproto"
	"github.com/user/frameline/pkg/ports"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned after Close; the client is not reusable.
	ErrClosed = errors.New("helperclient: client closed")

	// ErrNotReady is returned when a command is issued before Connect
	// completes or while the connection is down.
	ErrNotReady = errors.New("helperclient: connection not ready")

	// ErrDisconnected resolves requests that were pending when the
	// socket broke; they are never retried implicitly.
	ErrDisconnected = errors.New("helperclient: connection lost")
)

// Dialer opens the helper socket. Injectable for tests.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// Options configures the client.
type Options struct {
	Addr           string
	Token          string
	Dialer         Dialer        // defaults to a plain TCP dial
	RequestTimeout time.Duration // per-command; defaults to 10s
	DecodeTimeout  time.Duration // per decode; defaults to 30s
	Logger         ports.Logger
}

type cmdResult struct {
	resp helperproto.Response
	err  error
}

type frameResult struct {
	header  helperproto.FrameHeader
	payload []byte
	err     error
}

// Client multiplexes many in-flight requests over one helper connection.
// Exactly one instance serves a session; the lifecycle is explicit via
// Connect and Close.
type Client struct {
	opts Options
	log  ports.Logger

	state atomic.Int32

	mu          sync.Mutex
	conn        net.Conn
	closed      bool
	reconnected bool // one automatic reconnect attempt per session
	cmdSeq      uint64
	pending     map[string]chan cmdResult
	frames      map[uint32]chan frameResult
	progressFns map[string]func(helperproto.Progress)

	writeMu sync.Mutex

	reqSeq atomic.Uint32

	encodeMu    sync.Mutex
	encodeReqID uint32
}

// New creates a client. Connect must be called before any command.
func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.DecodeTimeout <= 0 {
		opts.DecodeTimeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}
	return &Client{
		opts:        opts,
		log:         log.WithComponent("helper"),
		pending:     make(map[string]chan cmdResult),
		frames:      make(map[uint32]chan frameResult),
		progressFns: make(map[string]func(helperproto.Progress)),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect dials the helper and authenticates. No other command is
// accepted by the helper before auth succeeds.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))
	c.log.Debug("Connecting to helper at %s", c.opts.Addr)

	conn, err := c.opts.Dialer(ctx, c.opts.Addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("dial helper: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.state.Store(int32(StateAuthenticating))
	go c.readLoop(conn)

	if _, err := c.do(ctx, helperproto.CmdAuth, map[string]any{"token": c.opts.Token}); err != nil {
		c.teardownConn(conn, err)
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("authenticate: %w", err)
	}

	c.state.Store(int32(StateReady))
	c.log.Info("Helper connection ready")
	return nil
}

// Close disconnects and fails all pending requests. Safe to call more
// than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failAllLocked(ErrClosed)
	c.mu.Unlock()

	c.state.Store(int32(StateDisconnected))
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readLoop owns all reads on one connection generation. Malformed
// messages are logged and dropped; only a transport error ends the loop.
func (c *Client) readLoop(conn net.Conn) {
	for {
		header, payload, err := helperproto.ReadMessage(conn)
		if err != nil {
			var pe *helperproto.ParseError
			if errors.As(err, &pe) {
				c.log.Warn("Dropping malformed helper message: %s", pe)
				continue
			}
			c.handleDisconnect(conn, err)
			return
		}

		switch header.Type {
		case helperproto.TypeFrame:
			c.deliverFrame(header, payload)
		case helperproto.TypeResponse, helperproto.TypeError:
			c.deliverResponse(payload)
		case helperproto.TypeProgress:
			c.deliverProgress(payload)
		default:
			c.log.Warn("Dropping helper message with unknown type 0x%02x", header.Type)
		}
	}
}

func (c *Client) deliverFrame(header helperproto.FrameHeader, payload []byte) {
	c.mu.Lock()
	ch, ok := c.frames[header.RequestID]
	if ok {
		delete(c.frames, header.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		// The requester is gone (clip closed mid-decode); drop silently.
		c.log.Debug("Discarding frame for request %d with no waiter", header.RequestID)
		return
	}
	ch <- frameResult{header: header, payload: payload}
}

func (c *Client) deliverResponse(payload []byte) {
	resp, err := helperproto.DecodeResponse(payload)
	if err != nil {
		c.log.Warn("Dropping malformed helper response: %s", err)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	delete(c.progressFns, resp.ID)
	c.mu.Unlock()

	if !ok {
		c.log.Debug("Dropping response for unknown command id %s", resp.ID)
		return
	}
	ch <- cmdResult{resp: resp}
}

func (c *Client) deliverProgress(payload []byte) {
	p, err := helperproto.DecodeProgress(payload)
	if err != nil {
		c.log.Warn("Dropping malformed progress envelope: %s", err)
		return
	}

	c.mu.Lock()
	fn := c.progressFns[p.ID]
	c.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}

// handleDisconnect fails everything in flight and makes exactly one
// reconnect+re-auth attempt for the session.
func (c *Client) handleDisconnect(conn net.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closed := c.closed
	retry := !closed && !c.reconnected
	if retry {
		c.reconnected = true
	}
	c.failAllLocked(fmt.Errorf("%w: %v", ErrDisconnected, cause))
	c.mu.Unlock()

	conn.Close()
	c.state.Store(int32(StateDisconnected))
	if closed {
		return
	}

	c.log.Warn("Helper connection lost: %s", cause)
	if !retry {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.log.Error("Helper reconnect failed: %s", err)
		return
	}
	c.log.Info("Helper connection re-established")
}

// failAllLocked resolves every pending request with err. Callers hold mu.
func (c *Client) failAllLocked(err error) {
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- cmdResult{err: err}
	}
	for id, ch := range c.frames {
		delete(c.frames, id)
		ch <- frameResult{err: err}
	}
	c.progressFns = make(map[string]func(helperproto.Progress))
}

func (c *Client) teardownConn(conn net.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.failAllLocked(fmt.Errorf("%w: %v", ErrDisconnected, cause))
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) nextID() string {
	c.mu.Lock()
	c.cmdSeq++
	id := fmt.Sprintf("c-%d", c.cmdSeq)
	c.mu.Unlock()
	return id
}

// do sends one command and waits for its terminal response.
func (c *Client) do(ctx context.Context, cmd string, args map[string]any) (json.RawMessage, error) {
	return c.doWithProgress(ctx, cmd, args, nil, c.opts.RequestTimeout)
}

func (c *Client) doWithProgress(ctx context.Context, cmd string, args map[string]any, onProgress func(helperproto.Progress), timeout time.Duration) (json.RawMessage, error) {
	id := c.nextID()
	ch := make(chan cmdResult, 1)

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
	c.pending[id] = ch
	if onProgress != nil {
		c.progressFns[id] = onProgress
	}
	c.mu.Unlock()

	payload, err := helperproto.MarshalCommand(helperproto.Command{ID: id, Cmd: cmd, Args: args})
	if err != nil {
		c.unregister(id)
		return nil, err
	}
	if err := c.writeMessage(conn, helperproto.FrameHeader{Type: helperproto.TypeCommand}, payload); err != nil {
		c.unregister(id)
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if !res.resp.OK {
			return nil, res.resp.Error
		}
		return res.resp.Data, nil
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.unregister(id)
		return nil, fmt.Errorf("helperclient: %s timed out after %s", cmd, timeout)
	}
}

// notify sends a fire-and-forget command; no response is expected.
func (c *Client) notify(cmd string, args map[string]any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotReady
	}

	payload, err := helperproto.MarshalCommand(helperproto.Command{ID: c.nextID(), Cmd: cmd, Args: args})
	if err != nil {
		return err
	}
	return c.writeMessage(conn, helperproto.FrameHeader{Type: helperproto.TypeCommand}, payload)
}

func (c *Client) writeMessage(conn net.Conn, header helperproto.FrameHeader, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return helperproto.WriteMessage(conn, header, payload)
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	delete(c.progressFns, id)
	c.mu.Unlock()
}

func (c *Client) unregisterFrame(reqID uint32) {
	c.mu.Lock()
	delete(c.frames, reqID)
	c.mu.Unlock()
}

// rgbaFromPayload builds the decoded image for a binary frame message,
// inflating the payload first when the COMPRESSED flag is set.
func rgbaFromPayload(header helperproto.FrameHeader, payload []byte) (*image.RGBA, error) {
	w, h := int(header.Width), int(header.Height)
	if w <= 0 || h <= 0 {
		return nil, &helperproto.ParseError{Field: "frame dimensions", Err: fmt.Errorf("%dx%d", w, h)}
	}
	expected := w * h * 4

	pixels := payload
	if header.Flags&helperproto.FlagCompressed != 0 {
		inflated, err := helperproto.DecompressPayload(payload, expected)
		if err != nil {
			return nil, err
		}
		pixels = inflated
	}
	if len(pixels) != expected {
		return nil, &helperproto.ParseError{
			Field: "frame payload",
			Err:   fmt.Errorf("got %d bytes, expected %d", len(pixels), expected),
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, pixels)
	return img, nil
}

// noopLogger keeps the client usable without an injected logger.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})          {}
func (noopLogger) Info(string, ...interface{})           {}
func (noopLogger) Warn(string, ...interface{})           {}
func (noopLogger) Error(string, ...interface{})          {}
func (noopLogger) WithComponent(string) ports.Logger     { return noopLogger{} }
