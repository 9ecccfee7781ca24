// Package client provides the daemon-facing client library: one method per
// RPC call, a persistent framed connection, and a direct in-process fallback
// for when no daemon is reachable.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/fastsearch/fastsearchd/internal/errors"
	"github.com/fastsearch/fastsearchd/internal/rpc"
)

// DefaultDialTimeout bounds both the initial connect and the probe used by
// direct-mode fallback.
const DefaultDialTimeout = 2 * time.Second

// Client wraps a single persistent connection to the daemon's Unix socket,
// offering one method per RPC call (spec.md §4.G). Calls are serialized
// under a mutex, since the wire protocol is strictly sequential
// request/response per connection.
//
// Grounded on the teacher's internal/daemon/client.go Connect/send/receive
// shape, generalized from one-shot-per-call connections to a persistent,
// length-framed one, and from json.Decoder/Encoder streaming to
// rpc.ReadFrame/WriteFrame.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
	callTimeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	requestID atomic.Uint64
}

// New constructs a Client for socketPath. No connection is made until the
// first call.
func New(socketPath string, callTimeout time.Duration) *Client {
	return &Client{socketPath: socketPath, dialTimeout: DefaultDialTimeout, callTimeout: callTimeout}
}

// Probe reports whether a daemon is currently accepting connections on
// socketPath, without keeping the connection open. Used by callers deciding
// between daemon mode and direct mode (spec.md §9).
func Probe(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, DefaultDialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.socketPath, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) reconnectLocked() error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	return c.connectLocked()
}

func (c *Client) nextID() json.RawMessage {
	id := c.requestID.Add(1)
	b, _ := json.Marshal(id)
	return b
}

// call performs one request/response round trip, reconnecting and retrying
// exactly once if the connection was broken or the server reported
// ModelLoadFailed (spec.md §7: "client-library single-retry of
// ModelLoadFailed after reconnect").
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.callOnceLocked(ctx, method, params)
	if err != nil {
		if reconErr := c.reconnectLocked(); reconErr != nil {
			return err
		}
		resp, err = c.callOnceLocked(ctx, method, params)
		if err != nil {
			return err
		}
	}

	if resp.Error != nil {
		if resp.Error.GetKind() == string(apperrors.KindModelLoadFailed) {
			if reconErr := c.reconnectLocked(); reconErr == nil {
				resp2, err2 := c.callOnceLocked(ctx, method, params)
				if err2 == nil && resp2.Error == nil {
					resp = resp2
				}
			}
		}
	}

	if resp.Error != nil {
		return &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message, Kind: resp.Error.GetKind()}
	}

	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("re-marshal result: %w", err)
	}
	return json.Unmarshal(data, out)
}

func (c *Client) callOnceLocked(ctx context.Context, method string, params any) (*rpc.Response, error) {
	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	ctxDeadline, hasCtxDeadline := ctx.Deadline()
	if c.callTimeout > 0 || hasCtxDeadline {
		deadline := time.Now().Add(c.callTimeout)
		if c.callTimeout <= 0 {
			deadline = ctxDeadline
		} else if hasCtxDeadline && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		_ = c.conn.SetDeadline(deadline)
	}

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}

	req := rpc.Request{JSONRPC: "2.0", Method: method, Params: rawParams, ID: c.nextID()}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := rpc.WriteFrame(c.conn, body); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("write request: %w", err)
	}

	respBody, err := rpc.ReadFrame(c.conn)
	if err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp rpc.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// RemoteError wraps a JSON-RPC error response as returned by the daemon.
type RemoteError struct {
	Code    int
	Message string
	Kind    string
}

func (e *RemoteError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Message
}

func (c *Client) Ping(ctx context.Context) error {
	var result rpc.PingResult
	return c.call(ctx, rpc.MethodPing, nil, &result)
}

func (c *Client) Status(ctx context.Context) (rpc.StatusResult, error) {
	var result rpc.StatusResult
	err := c.call(ctx, rpc.MethodStatus, nil, &result)
	return result, err
}

func (c *Client) Search(ctx context.Context, params rpc.SearchParams) (rpc.SearchResult, error) {
	var result rpc.SearchResult
	err := c.call(ctx, rpc.MethodSearch, params, &result)
	return result, err
}

func (c *Client) Embed(ctx context.Context, texts []string) (rpc.EmbedResult, error) {
	var result rpc.EmbedResult
	err := c.call(ctx, rpc.MethodEmbed, rpc.EmbedParams{Texts: texts}, &result)
	return result, err
}

func (c *Client) Rerank(ctx context.Context, query string, documents []string) (rpc.RerankResult, error) {
	var result rpc.RerankResult
	err := c.call(ctx, rpc.MethodRerank, rpc.RerankParams{Query: query, Documents: documents}, &result)
	return result, err
}

func (c *Client) LoadModel(ctx context.Context, slot string) (rpc.LoadModelResult, error) {
	var result rpc.LoadModelResult
	err := c.call(ctx, rpc.MethodLoadModel, rpc.LoadModelParams{Slot: slot}, &result)
	return result, err
}

func (c *Client) UnloadModel(ctx context.Context, slot string) (rpc.UnloadModelResult, error) {
	var result rpc.UnloadModelResult
	err := c.call(ctx, rpc.MethodUnloadModel, rpc.UnloadModelParams{Slot: slot}, &result)
	return result, err
}

func (c *Client) ReloadConfig(ctx context.Context, configPath string) (rpc.ReloadConfigResult, error) {
	var result rpc.ReloadConfigResult
	err := c.call(ctx, rpc.MethodReloadConfig, rpc.ReloadConfigParams{ConfigPath: configPath}, &result)
	return result, err
}

func (c *Client) Shutdown(ctx context.Context) (rpc.ShutdownResult, error) {
	var result rpc.ShutdownResult
	err := c.call(ctx, rpc.MethodShutdown, nil, &result)
	return result, err
}
