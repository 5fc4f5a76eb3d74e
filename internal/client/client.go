package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/agentdb/memory/internal/daemon"
	"github.com/agentdb/memory/internal/memerr"
)

// ReconnectOptions configures the backoff schedule used when the socket
// connection drops unexpectedly (spec.md §4.8 "reconnect with exponential
// backoff, bounded by max_reconnect_attempts").
type ReconnectOptions struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultReconnectOptions mirrors the daemon's own shutdown/retry cadence.
var DefaultReconnectOptions = ReconnectOptions{
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    10 * time.Second,
	MaxAttempts: 8,
}

// RequestTimeout bounds how long a single Call waits for its response
// before returning a TIMEOUT error.
const RequestTimeout = 10 * time.Second

type pendingCall struct {
	resp chan daemon.Response
}

// Client is a reconnecting JSON-RPC client over the daemon's Unix socket
// (spec.md §4.8).
type Client struct {
	socketPath string
	reconnect  ReconnectOptions
	logger     *slog.Logger

	mu               sync.Mutex
	conn             net.Conn
	writer           *bufio.Writer
	pending          map[string]pendingCall
	nextID           uint64
	intentionalClose bool
	connected        bool
}

// New builds a client targeting socketPath. Connect must be called before
// use.
func New(socketPath string, reconnect ReconnectOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if reconnect.BaseDelay <= 0 {
		reconnect = DefaultReconnectOptions
	}
	return &Client{
		socketPath: socketPath,
		reconnect:  reconnect,
		logger:     logger,
		pending:    make(map[string]pendingCall),
	}
}

// Connect dials the socket and starts the response reader.
func (c *Client) Connect(ctx context.Context) error {
	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return memerr.Wrap(memerr.ServerNotRunning, "failed to connect to daemon socket", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.connected = true
	c.intentionalClose = false
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// readLoop drains NDJSON responses and routes each to its pending call by
// id, then reconnects unless Close was called intentionally (spec.md §4.8
// "intentional disconnect suppresses reconnection").
func (c *Client) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var resp daemon.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		c.deliver(resp)
	}
	c.handleDisconnect()
}

func (c *Client) deliver(resp daemon.Response) {
	key := string(resp.ID)
	c.mu.Lock()
	pc, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if ok {
		pc.resp <- resp
	}
}

func (c *Client) handleDisconnect() {
	c.mu.Lock()
	c.connected = false
	intentional := c.intentionalClose
	pendingCopy := make(map[string]pendingCall, len(c.pending))
	for k, v := range c.pending {
		pendingCopy[k] = v
	}
	c.pending = make(map[string]pendingCall)
	c.mu.Unlock()

	for _, pc := range pendingCopy {
		pc.resp <- daemon.Response{
			JSONRPC: "2.0",
			Error: &daemon.RPCError{
				Code:    daemon.CodeInternal,
				Message: "connection lost",
				Data:    map[string]any{"code": string(memerr.ServerDisconnect)},
			},
		}
	}

	if intentional {
		return
	}
	c.logger.Warn("daemon connection lost, attempting reconnect")
	c.reconnectWithBackoff()
}

func (c *Client) reconnectWithBackoff() {
	delay := c.reconnect.BaseDelay
	for attempt := 1; c.reconnect.MaxAttempts == 0 || attempt <= c.reconnect.MaxAttempts; attempt++ {
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info("daemon connection restored", "attempt", attempt)
			return
		}
		delay *= 2
		if delay > c.reconnect.MaxDelay {
			delay = c.reconnect.MaxDelay
		}
	}
	c.logger.Error("daemon reconnect attempts exhausted")
}

// Call sends method with params and blocks for a response, bounded by
// RequestTimeout (spec.md §4.8 "per-request timeout").
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return memerr.Wrap(memerr.InvalidParams, "failed to marshal params", err)
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return memerr.New(memerr.ServerDisconnect, "not connected to daemon")
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	idRaw, _ := json.Marshal(id)
	req := daemon.Request{JSONRPC: "2.0", Method: method, Params: paramsRaw, ID: idRaw}
	respCh := make(chan daemon.Response, 1)
	c.pending[string(idRaw)] = pendingCall{resp: respCh}
	writer := c.writer
	c.mu.Unlock()

	line, err := json.Marshal(req)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "failed to marshal request", err)
	}
	line = append(line, '\n')

	c.mu.Lock()
	_, werr := writer.Write(line)
	if werr == nil {
		werr = writer.Flush()
	}
	c.mu.Unlock()
	if werr != nil {
		return memerr.Wrap(memerr.ServerDisconnect, "failed to write request", werr)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return fmt.Errorf("%s (code %d)", resp.Error.Message, resp.Error.Code)
		}
		if result != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	case <-timeoutCtx.Done():
		return memerr.New(memerr.Timeout, "request "+method+" timed out")
	}
}

// Close disconnects intentionally, suppressing automatic reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.intentionalClose = true
	conn := c.conn
	c.connected = false
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
