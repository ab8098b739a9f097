package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialRetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	cfg.ConnectionTimeout = 0
	return cfg
}

func writeFrame(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestStartStreamsFullTurn(t *testing.T) {
	var gotAuth, gotAccept string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, EventAgentStart, `{"agent_name":"todo","message":"starting"}`)
		writeFrame(w, EventToken, `{"content":"Hello"}`)
		writeFrame(w, EventToken, `{"content":" there"}`)
		writeFrame(w, EventDone, `{"conversation_id":7,"message_id":42}`)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var text strings.Builder
	var done DoneEvent
	var agent string
	cb := Callbacks{
		OnToken: func(s string) {
			mu.Lock()
			text.WriteString(s)
			mu.Unlock()
		},
		OnAgentStart: func(name, _ string) {
			mu.Lock()
			agent = name
			mu.Unlock()
		},
		OnDone: func(ev DoneEvent) {
			mu.Lock()
			done = ev
			mu.Unlock()
		},
		OnError: func(ev ErrorEvent) { t.Errorf("unexpected error: %+v", ev) },
	}

	client := NewClient(srv.URL, testConfig())
	conv := int64(7)
	h := client.Start(context.Background(), "tok-123", Request{ConversationID: &conv, Message: "hi"}, cb)
	waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	if text.String() != "Hello there" {
		t.Errorf("tokens = %q", text.String())
	}
	if agent != "todo" {
		t.Errorf("agent = %q", agent)
	}
	if done.ConversationID != 7 || done.MessageID != 42 {
		t.Errorf("done = %+v", done)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("accept header = %q", gotAccept)
	}
	if gotReq.Message != "hi" || gotReq.ConversationID == nil || *gotReq.ConversationID != 7 {
		t.Errorf("request body = %+v", gotReq)
	}
}

func TestRetriesExhaustedAfterBound(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var errs []ErrorEvent
	var reconnects []string
	cb := Callbacks{
		OnError: func(ev ErrorEvent) {
			mu.Lock()
			errs = append(errs, ev)
			mu.Unlock()
		},
		OnThinking: func(content, agent string) {
			mu.Lock()
			reconnects = append(reconnects, agent+": "+content)
			mu.Unlock()
		},
	}

	client := NewClient(srv.URL, testConfig())
	h := client.Start(context.Background(), "", Request{Message: "hi"}, cb)
	waitDone(t, h)

	if got := attempts.Load(); got != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("errors = %+v, want exactly one", errs)
	}
	if errs[0].Code != "retries_exhausted" {
		t.Errorf("code = %q", errs[0].Code)
	}
	if len(reconnects) != 3 {
		t.Errorf("reconnect narrations = %d, want 3", len(reconnects))
	}
	for _, r := range reconnects {
		if !strings.HasPrefix(r, "System: Connection lost. Reconnecting in ") {
			t.Errorf("narration = %q", r)
		}
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "invalid session")
	}))
	defer srv.Close()

	var mu sync.Mutex
	var errs []ErrorEvent
	cb := Callbacks{OnError: func(ev ErrorEvent) {
		mu.Lock()
		errs = append(errs, ev)
		mu.Unlock()
	}}

	client := NewClient(srv.URL, testConfig())
	h := client.Start(context.Background(), "stale", Request{Message: "hi"}, cb)
	waitDone(t, h)

	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is permanent)", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || errs[0].Code != "http_403" {
		t.Fatalf("errors = %+v", errs)
	}
	if errs[0].Message != "invalid session" {
		t.Errorf("message = %q", errs[0].Message)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, EventToken, `{"content":"ok"}`)
		writeFrame(w, EventDone, `{"conversation_id":1,"message_id":2}`)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var tokens []string
	var doneSeen bool
	cb := Callbacks{
		OnToken: func(s string) {
			mu.Lock()
			tokens = append(tokens, s)
			mu.Unlock()
		},
		OnDone: func(DoneEvent) {
			mu.Lock()
			doneSeen = true
			mu.Unlock()
		},
		OnError: func(ev ErrorEvent) { t.Errorf("unexpected error: %+v", ev) },
	}

	client := NewClient(srv.URL, testConfig())
	h := client.Start(context.Background(), "", Request{Message: "hi"}, cb)
	waitDone(t, h)

	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if !doneSeen || len(tokens) != 1 || tokens[0] != "ok" {
		t.Errorf("tokens = %v, done = %v", tokens, doneSeen)
	}
}

func TestCancelStopsStreamAndIsIdempotent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, EventToken, `{"content":"partial"}`)
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	var errCount atomic.Int32
	cb := Callbacks{
		OnError: func(ErrorEvent) { errCount.Add(1) },
	}

	client := NewClient(srv.URL, testConfig())
	h := client.Start(context.Background(), "", Request{Message: "hi"}, cb)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the request")
	}

	h.Cancel()
	h.Cancel() // second call must be a no-op
	waitDone(t, h)
	h.Cancel() // and after completion too

	if n := errCount.Load(); n != 0 {
		t.Errorf("cancellation produced %d error callbacks, want 0", n)
	}
}

func TestServerClosesMidTurnIsRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, EventToken, `{"content":"partial"}`)
		if attempts.Add(1) < 2 {
			// Drop the connection before the turn completes.
			return
		}
		writeFrame(w, EventDone, `{"conversation_id":1,"message_id":1}`)
	}))
	defer srv.Close()

	var doneSeen atomic.Bool
	cb := Callbacks{
		OnDone:  func(DoneEvent) { doneSeen.Store(true) },
		OnError: func(ev ErrorEvent) { t.Errorf("unexpected error: %+v", ev) },
	}

	client := NewClient(srv.URL, testConfig())
	h := client.Start(context.Background(), "", Request{Message: "hi"}, cb)
	waitDone(t, h)

	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if !doneSeen.Load() {
		t.Error("done event never arrived after reconnect")
	}
}

func TestStaleAbortForcesReconnect(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, EventToken, `{"content":"partial"}`)
		if attempts.Add(1) < 2 {
			// Go silent without closing; only the health check can
			// get the client off this connection.
			<-r.Context().Done()
			return
		}
		writeFrame(w, EventDone, `{"conversation_id":1,"message_id":1}`)
	}))
	defer srv.Close()

	var doneSeen atomic.Bool
	cb := Callbacks{
		OnDone:  func(DoneEvent) { doneSeen.Store(true) },
		OnError: func(ev ErrorEvent) { t.Errorf("unexpected error: %+v", ev) },
	}

	cfg := testConfig()
	cfg.ConnectionTimeout = 50 * time.Millisecond
	cfg.StaleAborts = true
	client := NewClient(srv.URL, cfg)
	h := client.Start(context.Background(), "", Request{Message: "hi"}, cb)
	waitDone(t, h)

	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2 (stale abort feeds the retry loop)", attempts.Load())
	}
	if !doneSeen.Load() {
		t.Error("done event never arrived after the forced reconnect")
	}
}

func TestStaleConnectionIsNotAbortedByDefault(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, EventToken, `{"content":"partial"}`)
		// Silence well past the inactivity window, as a slow tool
		// execution would produce.
		time.Sleep(200 * time.Millisecond)
		writeFrame(w, EventDone, `{"conversation_id":1,"message_id":1}`)
	}))
	defer srv.Close()

	var doneSeen atomic.Bool
	cb := Callbacks{
		OnDone:  func(DoneEvent) { doneSeen.Store(true) },
		OnError: func(ev ErrorEvent) { t.Errorf("unexpected error: %+v", ev) },
	}

	cfg := testConfig()
	cfg.ConnectionTimeout = 40 * time.Millisecond
	client := NewClient(srv.URL, cfg)
	h := client.Start(context.Background(), "", Request{Message: "hi"}, cb)
	waitDone(t, h)

	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (inactivity warning is advisory)", attempts.Load())
	}
	if !doneSeen.Load() {
		t.Error("turn did not complete on the original connection")
	}
}

func TestServerErrorEventEndsTurnWithoutRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, EventError, `{"message":"model overloaded","code":"overloaded"}`)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var errs []ErrorEvent
	cb := Callbacks{OnError: func(ev ErrorEvent) {
		mu.Lock()
		errs = append(errs, ev)
		mu.Unlock()
	}}

	client := NewClient(srv.URL, testConfig())
	h := client.Start(context.Background(), "", Request{Message: "hi"}, cb)
	waitDone(t, h)

	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (error event ends the turn)", attempts.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || errs[0].Message != "model overloaded" {
		t.Errorf("errors = %+v", errs)
	}
}

func TestBackoffDelaySchedule(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
		{63, 10 * time.Second}, // shift overflow clamps to the cap
	}
	for _, tt := range tests {
		if got := backoffDelay(cfg, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
