package stream

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
	"sync/atomic"
	"time"

	"github.com/mark3labs/todochat/internal/logger"
)

// Config controls retry and health-check behavior for one stream.
// The zero value is not usable; start from DefaultConfig and override.
type Config struct {
	MaxRetries        int           // retry attempts after the initial one
	InitialRetryDelay time.Duration // first backoff delay
	MaxRetryDelay     time.Duration // backoff cap
	ConnectionTimeout time.Duration // inactivity window before a stale warning

	// StaleAborts escalates the inactivity warning to an abort of the
	// current attempt, which feeds back into the normal retry path. Off
	// by default: a silent stream usually means a long-running tool is
	// executing server side, not a dead connection.
	StaleAborts bool
}

// DefaultConfig returns the stock retry configuration. Callers merge
// overrides into a copy; the defaults themselves are never mutated.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialRetryDelay: time.Second,
		MaxRetryDelay:     10 * time.Second,
		ConnectionTimeout: 30 * time.Second,
	}
}

// Request is the body sent to the chat streaming endpoint. A nil
// ConversationID starts a new conversation.
type Request struct {
	ConversationID *int64 `json:"conversation_id"`
	Message        string `json:"message"`
}

// Client opens streaming chat requests against one backend.
type Client struct {
	baseURL string
	http    *http.Client
	cfg     Config
}

// NewClient creates a stream client for the backend at baseURL.
func NewClient(baseURL string, cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall request timeout: the response body is a
		// long-lived stream. Liveness is handled by the health check.
		http: &http.Client{},
		cfg:  cfg,
	}
}

// Handle cancels a running stream. Cancel is idempotent and safe to call
// after the stream has finished; no callbacks fire after cancellation.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel aborts the in-flight request and stops any pending retries.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the stream goroutine has fully exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// permanentError marks a failure that must not be retried (HTTP 4xx).
type permanentError struct {
	status int
	body   string
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("request rejected with status %d: %s", e.status, e.body)
}

// errTurnFinished signals that the server ended the turn normally.
var errTurnFinished = errors.New("turn finished")

// Start opens the stream and dispatches events to cb until the turn
// completes, retries are exhausted, or the handle is canceled. It never
// panics or returns errors through any path other than cb.OnError; all
// transport failures are normalized into ErrorEvent values.
func (c *Client) Start(ctx context.Context, token string, req Request, cb Callbacks) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		c.run(ctx, token, req, cb)
	}()
	return h
}

func (c *Client) run(ctx context.Context, token string, req Request, cb Callbacks) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		// Cancellation wins over everything, including a pending
		// retry. No callbacks after this point.
		if ctx.Err() != nil {
			return
		}

		if attempt > 0 {
			delay := backoffDelay(c.cfg, attempt-1)
			logger.Info("Stream attempt %d failed, retrying in %s: %v", attempt, delay, lastErr)
			if cb.OnThinking != nil {
				cb.OnThinking(fmt.Sprintf("Connection lost. Reconnecting in %ds...", int(delay/time.Second)), "System")
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		err := c.attempt(ctx, token, req, cb)
		switch {
		case err == nil || errors.Is(err, errTurnFinished):
			return
		case ctx.Err() != nil:
			// Caller canceled mid-read; not an error.
			return
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			logger.Warn("Stream rejected permanently: %v", perm)
			emitError(cb, ErrorEvent{
				Message: perm.body,
				Code:    fmt.Sprintf("http_%d", perm.status),
			})
			return
		}

		lastErr = err
	}

	if ctx.Err() != nil {
		return
	}
	logger.Error("Stream failed after %d retries: %v", c.cfg.MaxRetries, lastErr)
	emitError(cb, ErrorEvent{
		Message: fmt.Sprintf("connection failed after %d retries: %v", c.cfg.MaxRetries, lastErr),
		Code:    "retries_exhausted",
	})
}

// attempt performs one connect-and-read cycle. It returns nil or
// errTurnFinished on a clean end of turn, a *permanentError for 4xx
// responses, and any other error for transient failures the caller may
// retry.
func (c *Client) attempt(ctx context.Context, token string, req Request, cb Callbacks) error {
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	body, err := json.Marshal(req)
	if err != nil {
		return &permanentError{status: http.StatusBadRequest, body: fmt.Sprintf("encoding request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return &permanentError{status: http.StatusBadRequest, body: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &permanentError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	// Health check: a soft warning when no data has arrived within the
	// configured window. With StaleAborts the attempt is torn down
	// instead, which re-enters the retry loop above.
	var lastData atomic.Int64
	lastData.Store(time.Now().UnixNano())
	stopHealth := c.watchHealth(attemptCtx, &lastData, cancelAttempt)
	defer stopHealth()

	parser := NewParser()
	finished := false
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			lastData.Store(time.Now().UnixNano())
			for _, frame := range parser.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if frame.Event == EventDone || frame.Event == EventError {
					finished = true
				}
				Dispatch(frame, cb)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if finished {
					return errTurnFinished
				}
				if parser.Pending() {
					logger.Warn("Stream closed mid-frame, discarding partial tail")
				}
				return errors.New("stream closed before turn completed")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading stream: %w", readErr)
		}
		if finished {
			// Keep draining until EOF so the connection closes
			// cleanly, but a canceled context still wins.
			if ctx.Err() != nil {
				return errTurnFinished
			}
		}
	}
}

// watchHealth runs the inactivity monitor for one attempt. The ticker
// fires at half the timeout window; the returned func stops it.
func (c *Client) watchHealth(ctx context.Context, lastData *atomic.Int64, abort context.CancelFunc) func() {
	if c.cfg.ConnectionTimeout <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(c.cfg.ConnectionTimeout / 2)
	var once sync.Once
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, lastData.Load()))
				if idle < c.cfg.ConnectionTimeout {
					continue
				}
				if c.cfg.StaleAborts {
					logger.Warn("No stream data for %s, aborting attempt", idle.Round(time.Second))
					abort()
					return
				}
				// Advisory only: long tool executions are
				// legitimately silent.
				logger.Warn("No stream data for %s (still waiting)", idle.Round(time.Second))
			}
		}
	}()
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// emitError routes a transport-level failure to the error hook. Server
// error events go through Dispatch instead; this path is only for errors
// the transport itself produced.
func emitError(cb Callbacks, ev ErrorEvent) {
	if cb.OnError != nil {
		cb.OnError(ev)
	}
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.InitialRetryDelay << uint(attempt)
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		return cfg.MaxRetryDelay
	}
	return delay
}
