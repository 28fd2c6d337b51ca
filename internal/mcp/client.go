package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a JSON-RPC 2.0 client multiplexed over a single stdio
// subprocess connection. Concurrent Call invocations are correlated by
// a monotonically increasing request id, grounded on the teacher's
// internal/mcp/transport_stdio.go pending-map pattern.
type Client struct {
	cfg    ServerConfig
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	nextID  atomic.Int64
	pending sync.Map // int64 -> chan *Response

	connected atomic.Bool
	writeMu   sync.Mutex
	inflight  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// Inflight returns the number of calls awaiting a response, used by
// Manager to decide when a removed client has drained.
func (c *Client) Inflight() int64 { return c.inflight.Load() }

// NewClient constructs a client for the given server config.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger.With("mcp_server", cfg.ID), done: make(chan struct{})}
}

// Connect spawns the subprocess (for TransportStdio) and starts the
// read loop. The subprocess inherits the parent environment plus any
// configured Env entries, matching the teacher's transport — MCP
// servers are trusted local tooling, unlike the delegation subsystem's
// Flow subprocess which deliberately does not inherit (spec.md §4.9).
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Transport != TransportStdio {
		return fmt.Errorf("mcp: unsupported transport %q for client %s", c.cfg.Transport, c.cfg.ID)
	}
	cmd := exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
	cmd.Env = append(os.Environ(), c.cfg.Env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("mcp: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mcp: start %s: %w", c.cfg.Command, err)
	}
	c.cmd = cmd
	c.stdin = stdin
	c.stdout = bufio.NewScanner(stdout)
	c.stdout.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	c.connected.Store(true)

	go c.readLoop()
	go c.logStderr(stderr)
	return nil
}

func (c *Client) readLoop() {
	for c.stdout.Scan() {
		line := c.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("mcp: malformed response line", "error", err)
			continue
		}
		if ch, ok := c.pending.LoadAndDelete(resp.ID); ok {
			ch.(chan *Response) <- &resp
		}
	}
	c.connected.Store(false)
	close(c.done)
}

func (c *Client) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.logger.Debug("mcp: server stderr", "line", scanner.Text())
	}
}

// ErrOrphanedRequest is returned when the transport closes before a
// call's response arrives. A cancelled ctx returns ctx.Err() instead.
var ErrOrphanedRequest = fmt.Errorf("mcp: request orphaned (no response)")

// Call sends a JSON-RPC request and waits for its correlated response,
// the server process's exit, or ctx cancellation, whichever comes
// first.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	if !c.connected.Load() {
		return nil, fmt.Errorf("mcp: client %s not connected", c.cfg.ID)
	}
	id := c.nextID.Add(1)
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal request: %w", err)
	}

	ch := make(chan *Response, 1)
	c.pending.Store(id, ch)
	c.inflight.Add(1)
	defer func() {
		c.pending.Delete(id)
		c.inflight.Add(-1)
	}()

	c.writeMu.Lock()
	_, werr := c.stdin.Write(append(payload, '\n'))
	c.writeMu.Unlock()
	if werr != nil {
		return nil, fmt.Errorf("mcp: write request: %w", werr)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrOrphanedRequest
	}
}

// Close terminates the subprocess and releases resources.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		if c.stdin != nil {
			_ = c.stdin.Close()
		}
		if c.cmd != nil && c.cmd.Process != nil {
			err = c.cmd.Process.Kill()
		}
	})
	return err
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	resp, err := c.Call(ctx, "initialize", map[string]any{"protocolVersion": ProtocolVersion})
	if err != nil {
		return nil, err
	}
	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("mcp: decode initialize result: %w", err)
	}
	return &result, nil
}

// ListTools calls tools/list.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := c.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("mcp: decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool calls tools/call with the given arguments, already
// JSON-encoded by the caller (matching the teacher's tool-call
// boundary: arguments travel as an opaque encoded blob, not a typed
// struct, since each MCP server defines its own schema).
func (c *Client) CallTool(ctx context.Context, name, argumentsJSON string) (*ToolCallResult, error) {
	resp, err := c.Call(ctx, "tools/call", ToolCallParams{Name: name, Arguments: argumentsJSON})
	if err != nil {
		return nil, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("mcp: decode tools/call result: %w", err)
	}
	return &result, nil
}

// DrainTimeout bounds how long Manager waits for a removed client's
// in-flight calls to finish before forcibly closing it (spec.md
// §4.11's 30s hot-reload drain).
const DrainTimeout = 30 * time.Second
