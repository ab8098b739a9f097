package devserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/todochat/internal/api"
	"github.com/mark3labs/todochat/internal/auth"
	"github.com/mark3labs/todochat/internal/chat"
	"github.com/mark3labs/todochat/internal/stream"
)

func startDev(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New().Handler())
	t.Cleanup(srv.Close)
	return srv
}

func devSession(t *testing.T, srv *httptest.Server) *chat.Session {
	t.Helper()
	cfg := stream.DefaultConfig()
	cfg.InitialRetryDelay = time.Millisecond
	cfg.ConnectionTimeout = 0
	return chat.NewSession(chat.SessionOptions{
		Client: stream.NewClient(srv.URL, cfg),
		Token:  "dev-token",
		Label:  "dev",
	})
}

func TestSignIn(t *testing.T) {
	srv := startDev(t)

	sess, err := auth.Login(context.Background(), srv.URL, "dev@example.com", "anything")
	if err != nil {
		t.Fatalf("Login error = %v", err)
	}
	if sess.Token != "dev-token" || sess.Email != "dev@example.com" {
		t.Errorf("session = %+v", sess)
	}

	if _, err := auth.Login(context.Background(), srv.URL, "dev@example.com", ""); err == nil {
		t.Error("Login should fail with empty password")
	}
}

func TestChatAddTask(t *testing.T) {
	srv := startDev(t)
	sess := devSession(t, srv)

	turn := sess.Send(context.Background(), "add buy milk")
	sess.Wait()

	if !turn.Finished() {
		t.Fatal("turn did not finish")
	}
	snap := turn.Snapshot()
	if snap.Err != nil {
		t.Fatalf("turn error: %+v", snap.Err)
	}
	if !strings.Contains(snap.Text, "buy milk") {
		t.Errorf("reply = %q", snap.Text)
	}
	if len(snap.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(snap.ToolCalls))
	}
	call := snap.ToolCalls[0]
	if call.Tool != "add_task" || call.Status != stream.ToolCompleted {
		t.Errorf("call = %+v", call)
	}
	if call.Args["title"] != "buy milk" {
		t.Errorf("args = %v", call.Args)
	}
	// The verbose lifecycle events should have walked the history
	// through to completion.
	if call.History[len(call.History)-1] != stream.PhaseCompleted {
		t.Errorf("history = %v", call.History)
	}

	// The task is visible through the REST API too.
	tasks, err := api.NewClient(srv.URL, "dev-token").ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks error = %v", err)
	}
	found := false
	for _, task := range tasks {
		if task.Title == "buy milk" {
			found = true
		}
	}
	if !found {
		t.Errorf("task not created, tasks = %+v", tasks)
	}
}

func TestChatMissingTaskFailsToolCall(t *testing.T) {
	srv := startDev(t)
	sess := devSession(t, srv)

	turn := sess.Send(context.Background(), "complete 999")
	sess.Wait()

	snap := turn.Snapshot()
	if len(snap.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(snap.ToolCalls))
	}
	if snap.ToolCalls[0].Status != stream.ToolError {
		t.Errorf("status = %s, want error", snap.ToolCalls[0].Status)
	}
	if !strings.Contains(snap.Text, "999") {
		t.Errorf("reply = %q", snap.Text)
	}
}

func TestChatConversationIDStable(t *testing.T) {
	srv := startDev(t)
	sess := devSession(t, srv)

	sess.Send(context.Background(), "list")
	sess.Wait()
	first := sess.ConversationID()
	if first == nil {
		t.Fatal("no conversation id after first turn")
	}

	sess.Send(context.Background(), "list")
	sess.Wait()
	second := sess.ConversationID()
	if second == nil || *second != *first {
		t.Errorf("conversation id changed: %v -> %v", first, second)
	}
}

func TestChatRejectsBadToken(t *testing.T) {
	srv := startDev(t)

	cfg := stream.DefaultConfig()
	cfg.InitialRetryDelay = time.Millisecond
	cfg.ConnectionTimeout = 0
	client := stream.NewClient(srv.URL, cfg)

	errCh := make(chan stream.ErrorEvent, 1)
	h := client.Start(context.Background(), "wrong", stream.Request{Message: "hi"}, stream.Callbacks{
		OnError: func(ev stream.ErrorEvent) { errCh <- ev },
	})
	<-h.Done()

	select {
	case ev := <-errCh:
		if ev.Code != "http_401" {
			t.Errorf("code = %q, want http_401", ev.Code)
		}
	default:
		t.Error("no error event for bad token")
	}
}
