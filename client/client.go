// Package client consumes the relay's text stream the way the page does:
// it accumulates fragments, re-formats the whole buffer on every increment
// and tracks the idle/generating state of a single generate action.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ai_blog_generator/generator"
)

// User-facing messages.
const (
	MessageStopped = "Generation stopped by user."
	MessageFailed  = "Failed to generate blog post. Please try again."
)

var (
	ErrStopped = errors.New("generation stopped by user")
	ErrFailed  = errors.New("failed to generate blog post")
)

type State int

const (
	Idle State = iota
	Generating
)

func (s State) String() string {
	if s == Generating {
		return "generating"
	}
	return "idle"
}

const readBufferSize = 4 * 1024

// Client drives one generate action at a time against a relay server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	seq     uint64
	cancel  context.CancelFunc
	raw     []byte
	display string
	errMsg  string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate posts req to the relay and streams the response. After every
// increment onUpdate (may be nil) receives the formatted text of everything
// received so far.
//
// A new Generate cancels the one in flight; the superseded call returns
// ErrStopped and no longer touches the client's state. Stop, or cancelling
// ctx, ends the call with ErrStopped. Every other failure is ErrFailed.
func (c *Client) Generate(ctx context.Context, req generator.GenerationRequest, onUpdate func(display string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	id := c.seq
	c.cancel = cancel
	c.state = Generating
	c.raw = nil
	c.display = ""
	c.errMsg = ""
	c.mu.Unlock()

	err := c.run(ctx, id, req, onUpdate)

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.seq {
		return ErrStopped
	}
	c.state = Idle
	c.cancel = nil
	switch {
	case err == nil:
	case errors.Is(err, ErrStopped):
		c.errMsg = MessageStopped
	default:
		c.errMsg = MessageFailed
		c.logger.Warn("generation failed", zap.Error(err))
	}
	return err
}

// Stop cancels the generate call in flight, if any.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.state = Idle
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Content returns the formatted display text.
func (c *Client) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}

// Raw returns the unformatted text received so far.
func (c *Client) Raw() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.raw)
}

// ErrorMessage returns the message for the last failed or stopped call.
func (c *Client) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

func (c *Client) run(ctx context.Context, id uint64, req generator.GenerationRequest, onUpdate func(string)) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return fmt.Errorf("%w: status %d %s", ErrFailed, resp.StatusCode, e.Error)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if display, ok := c.appendChunk(id, buf[:n]); ok && onUpdate != nil {
				onUpdate(display)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return classify(ctx, readErr)
		}
	}
}

func (c *Client) appendChunk(id uint64, chunk []byte) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.seq {
		return "", false
	}
	c.raw = append(c.raw, chunk...)
	c.display = Format(string(c.raw))
	return c.display, true
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ErrStopped
	}
	return fmt.Errorf("%w: %v", ErrFailed, err)
}
