// Package client talks to the chat relay: it posts a conversation and
// consumes the streamed reply as it arrives.
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
	"sync/atomic"
	"time"

	"github.com/RichardoC/libelnet-chat/internal/models"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second

	chatPath = "/api/chat"
)

var ErrTimeout = errors.New("chat request timed out")

type Config struct {
	BaseURL string
	// Timeout bounds the wait for the relay to start answering.
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	HTTPClient  *http.Client
}

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay request failed: status=%d body=%s", e.StatusCode, e.Body)
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No client-wide timeout: replies stream for as long as they take.
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

type chatRequest struct {
	Messages []models.WireMessage `json:"messages"`
}

// Stream makes a single relay request and calls onChunk with every decoded
// piece of the reply. Multi-byte characters split across network reads are
// held back until complete.
func (c *Client) Stream(ctx context.Context, msgs []models.WireMessage, onChunk func(string)) error {
	payload, err := json.Marshal(chatRequest{Messages: msgs})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Whichever of the timer and the response headers claims the state first
	// wins; once the headers are in, the timer can no longer cancel the read.
	const (
		waiting int32 = iota
		answered
		timedOut
	)
	var state atomic.Int32
	timer := time.AfterFunc(c.cfg.Timeout, func() {
		if state.CompareAndSwap(waiting, timedOut) {
			cancel(ErrTimeout)
		}
	})
	resp, err := c.http.Do(req)
	timer.Stop()
	if !state.CompareAndSwap(waiting, answered) {
		if err == nil {
			resp.Body.Close()
		}
		return fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
	}
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		const maxBodySize = 64 * 1024
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	reader := transform.NewReader(resp.Body, unicode.UTF8.NewDecoder())
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			onChunk(string(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading relay response: %w", err)
		}
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
