// Package vmservice implements a minimal client for the runtime debug
// service protocol: JSON-RPC 2.0 carried over a WebSocket.
package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

// DialOptions tunes a client connection.
type DialOptions struct {
	// CallTimeout bounds each request. Zero disables the bound.
	CallTimeout time.Duration
	// ReadLimit caps a single inbound message. Zero keeps the library default.
	ReadLimit int64
}

// Client issues sequential requests over a single connection.
type Client struct {
	conn        *websocket.Conn
	callTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	nextID    atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

// Dial opens a connection to the streaming endpoint at uri.
func Dial(ctx context.Context, uri string, opts DialOptions, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if opts.CallTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", uri, err)
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	logger.Debug("connected", "uri", uri)

	return &Client{
		conn:        conn,
		callTimeout: opts.CallTimeout,
		logger:      logger,
	}, nil
}

// Call sends method with params and decodes the result into out. Messages
// not answering this request, such as stream notifications, are skipped.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	callCtx := ctx
	var cancel context.CancelFunc
	if c.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	payload, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	if err := c.conn.Write(callCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	for {
		msgType, data, err := c.conn.Read(callCtx)
		if err != nil {
			return fmt.Errorf("read %s response: %w", method, err)
		}
		if msgType != websocket.MessageText {
			continue
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Debug("invalid service message", "method", method, "err", err)
			continue
		}
		if !matchesID(resp.ID, id) {
			if resp.Method != "" {
				c.logger.Debug("skipping notification", "method", resp.Method)
			}
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

// GetVM returns the global runtime descriptor.
func (c *Client) GetVM(ctx context.Context) (VM, error) {
	var vm VM
	err := c.Call(ctx, "getVM", nil, &vm)
	return vm, err
}

// GetProcessMemoryUsage returns the process-wide memory breakdown.
func (c *Client) GetProcessMemoryUsage(ctx context.Context) (ProcessMemoryUsage, error) {
	var usage ProcessMemoryUsage
	err := c.Call(ctx, "getProcessMemoryUsage", nil, &usage)
	return usage, err
}

// GetMemoryUsage returns heap usage for an isolate.
func (c *Client) GetMemoryUsage(ctx context.Context, isolateID string) (MemoryUsage, error) {
	var usage MemoryUsage
	err := c.Call(ctx, "getMemoryUsage", isolateParams{IsolateID: isolateID}, &usage)
	return usage, err
}

// GetAllocationProfile returns the allocation histogram for an isolate
// without forcing a collection or resetting accumulators.
func (c *Client) GetAllocationProfile(ctx context.Context, isolateID string) (AllocationProfile, error) {
	var profile AllocationProfile
	err := c.Call(ctx, "getAllocationProfile", allocationProfileParams{IsolateID: isolateID}, &profile)
	return profile, err
}

// Close releases the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	return c.closeErr
}

func matchesID(raw json.RawMessage, id string) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == id
	}
	return strings.TrimSpace(string(raw)) == id
}
