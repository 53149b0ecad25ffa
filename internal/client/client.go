// Package client talks to a gemrated server over HTTP and websocket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtxerr/gemrate/config"
	"github.com/xtxerr/gemrate/internal/dataset"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/server"
	"github.com/xtxerr/gemrate/internal/types"
)

// =============================================================================
// State
// =============================================================================

// ClientState is the lifecycle state of a client.
type ClientState int32

const (
	StateOpen ClientState = iota
	StateClosed
)

// String returns the human-readable name of the state.
func (s ClientState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// =============================================================================
// Errors
// =============================================================================

var ErrClientClosed = errors.New("client is closed")

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the status back to the sentinel the server derived it from,
// so errors.IsNotFound and friends work on the client side.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return errors.ErrNotFound
	case http.StatusUnprocessableEntity:
		return errors.ErrMalformedInput
	case http.StatusBadRequest:
		return errors.ErrInvalidName
	case http.StatusServiceUnavailable:
		return errors.ErrSourceUnavailable
	default:
		return nil
	}
}

// =============================================================================
// Client
// =============================================================================

// Config holds client configuration.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string

	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration

	// HTTPClient overrides the default client. Its Timeout is left alone.
	HTTPClient *http.Client
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          config.DefaultServerURL,
		RequestTimeout:   config.DefaultRequestTimeout,
		HandshakeTimeout: config.DefaultHandshakeTimeout,
	}
}

// Client is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer websocket.Dialer

	state atomic.Int32

	closeOnce sync.Once
	shutdown  chan struct{}
}

// New creates a client. It fails only on a malformed base URL.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	raw := cfg.BaseURL
	if raw == "" {
		raw = config.DefaultServerURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewInvalidValue("base_url", cfg.BaseURL, err.Error())
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.NewInvalidValue("base_url", cfg.BaseURL, "scheme must be http or https")
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		base:     base,
		http:     hc,
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		shutdown: make(chan struct{}),
	}, nil
}

// State returns the current state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Close ends every running Watch. Further calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.shutdown)
		c.http.CloseIdleConnections()
	})
	return nil
}

// =============================================================================
// Requests
// =============================================================================

// Chart fetches the raw, 24h and 7d lines of kind.
func (c *Client) Chart(ctx context.Context, kind types.Kind) (dataset.Chart, error) {
	var chart dataset.Chart
	q := url.Values{"type": {kind.String()}}
	if err := c.get(ctx, "/gem_chart", q, &chart); err != nil {
		return nil, err
	}
	return chart, nil
}

// Series fetches one series of kind. A positive limit keeps only the
// newest points.
func (c *Client) Series(ctx context.Context, kind types.Kind, name types.SeriesName, limit int) ([]types.Point, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var pts []types.Point
	path := "/series/" + kind.String() + "/" + name.String()
	if err := c.get(ctx, path, q, &pts); err != nil {
		return nil, err
	}
	return pts, nil
}

// Summary fetches the trailing window statistics of kind.
func (c *Client) Summary(ctx context.Context, kind types.Kind) (dataset.Summary, error) {
	var sum dataset.Summary
	err := c.get(ctx, "/summary/"+kind.String(), nil, &sum)
	return sum, err
}

// Health fetches the refresh status of every dataset.
func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var h server.HealthResponse
	err := c.get(ctx, "/health", nil, &h)
	return h, err
}

// Kinds returns the kinds the server serves, in server order.
func (c *Client) Kinds(ctx context.Context) ([]types.Kind, error) {
	h, err := c.Health(ctx)
	if err != nil {
		return nil, err
	}
	kinds := make([]types.Kind, 0, len(h.Datasets))
	for _, d := range h.Datasets {
		k, err := types.ParseKind(d.Kind)
		if err != nil {
			// Newer server.
			continue
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	if c.State() == StateClosed {
		return ErrClientClosed
	}

	u := *c.base
	u.Path += path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Unavailable(err, c.base.Host)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// =============================================================================
// Streaming
// =============================================================================

// Watch streams chart updates of kind to fn until ctx is done, the client
// is closed, the server goes away or fn returns an error. Ending because
// of ctx or Close returns nil.
func (c *Client) Watch(ctx context.Context, kind types.Kind, fn func(server.StreamMessage) error) error {
	if c.State() == StateClosed {
		return ErrClientClosed
	}

	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path += "/ws/" + kind.String()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return errors.Unavailable(err, c.base.Host)
	}
	defer conn.Close()

	// Unblocks ReadJSON when we stop from this side.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.shutdown:
		case <-stop:
			return
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var msg server.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || c.State() == StateClosed {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.Unavailable(errors.ErrClosed, c.base.Host)
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
