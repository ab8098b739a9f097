package chat

import (
	"sync"
	"testing"

	"github.com/mark3labs/todochat/internal/stream"
)

func dispatchAll(t *testing.T, cb stream.Callbacks, wire string) {
	t.Helper()
	p := stream.NewParser()
	for _, f := range p.Feed([]byte(wire)) {
		stream.Dispatch(f, cb)
	}
}

func TestTurnAccumulatesTokens(t *testing.T) {
	turn := NewTurn(nil)
	cb := turn.Callbacks()

	dispatchAll(t, cb, "event: token\ndata: {\"content\":\"Hello\"}\n\n"+
		"event: token\ndata: {\"content\":\" there\"}\n\n")

	snap := turn.Snapshot()
	if snap.Text != "Hello there" {
		t.Errorf("text = %q", snap.Text)
	}
	if turn.Finished() {
		t.Error("turn should not be finished")
	}
}

func TestTurnThinkingClearsOnFirstToken(t *testing.T) {
	turn := NewTurn(nil)
	cb := turn.Callbacks()

	dispatchAll(t, cb, "event: thinking\ndata: {\"content\":\"Looking at your tasks...\",\"agent\":\"todo\"}\n\n")
	if snap := turn.Snapshot(); snap.Thinking != "Looking at your tasks..." || snap.Agent != "todo" {
		t.Errorf("snapshot = %+v", snap)
	}

	dispatchAll(t, cb, "event: token\ndata: {\"content\":\"You have\"}\n\n")
	if snap := turn.Snapshot(); snap.Thinking != "" {
		t.Errorf("thinking not cleared: %q", snap.Thinking)
	}
}

func TestTurnToolLifecycle(t *testing.T) {
	turn := NewTurn(nil)
	cb := turn.Callbacks()

	dispatchAll(t, cb,
		"event: agent_start\ndata: {\"agent_name\":\"todo\"}\n\n"+
			"event: llm_start\ndata: {\"agent_name\":\"todo\",\"model\":\"gpt-4o\"}\n\n"+
			"event: tool_call\ndata: {\"tool\":\"add_task\",\"args\":{\"title\":\"Buy milk\"},\"call_id\":\"c1\"}\n\n")

	snap := turn.Snapshot()
	if len(snap.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(snap.ToolCalls))
	}
	call := snap.ToolCalls[0]
	if call.Status != stream.ToolExecuting {
		t.Errorf("status = %s", call.Status)
	}
	if call.AgentName != "todo" || call.Model != "gpt-4o" {
		t.Errorf("context not captured: %+v", call)
	}

	dispatchAll(t, cb, "event: tool_result\ndata: {\"call_id\":\"c1\",\"output\":{\"id\":9}}\n\n")
	got := stream.FindCall(turn.Snapshot().ToolCalls, "c1")
	if got.Status != stream.ToolCompleted {
		t.Errorf("status after result = %s", got.Status)
	}

	// The earlier snapshot must be untouched.
	if call.Status != stream.ToolExecuting {
		t.Error("old snapshot mutated by later event")
	}
}

func TestTurnErrorShapedResultFailsCall(t *testing.T) {
	turn := NewTurn(nil)
	cb := turn.Callbacks()

	dispatchAll(t, cb,
		"event: tool_call\ndata: {\"tool\":\"complete_task\",\"args\":{\"id\":4},\"call_id\":\"c2\"}\n\n"+
			"event: tool_result\ndata: {\"call_id\":\"c2\",\"output\":{\"error\":\"task not found\"}}\n\n")

	got := stream.FindCall(turn.Snapshot().ToolCalls, "c2")
	if got.Status != stream.ToolError {
		t.Errorf("status = %s, want error", got.Status)
	}
	if got.Phase != stream.PhaseError {
		t.Errorf("phase = %s", got.Phase)
	}
}

func TestTurnHandoffSwitchesAgent(t *testing.T) {
	turn := NewTurn(nil)
	cb := turn.Callbacks()

	dispatchAll(t, cb,
		"event: agent_updated\ndata: {\"agent\":\"triage\"}\n\n"+
			"event: handoff\ndata: {\"from_agent\":\"triage\",\"to_agent\":\"todo\"}\n\n")

	if snap := turn.Snapshot(); snap.Agent != "todo" {
		t.Errorf("agent = %q, want todo", snap.Agent)
	}
}

func TestTurnDoneAndError(t *testing.T) {
	t.Run("done", func(t *testing.T) {
		turn := NewTurn(nil)
		dispatchAll(t, turn.Callbacks(), "event: done\ndata: {\"conversation_id\":7,\"message_id\":42}\n\n")
		if !turn.Finished() {
			t.Error("turn not finished after done")
		}
		snap := turn.Snapshot()
		if snap.Done == nil || snap.Done.ConversationID != 7 {
			t.Errorf("done = %+v", snap.Done)
		}
	})

	t.Run("error", func(t *testing.T) {
		turn := NewTurn(nil)
		dispatchAll(t, turn.Callbacks(), "event: error\ndata: {\"message\":\"boom\",\"code\":\"internal\"}\n\n")
		if !turn.Finished() {
			t.Error("turn not finished after error")
		}
		snap := turn.Snapshot()
		if snap.Err == nil || snap.Err.Message != "boom" {
			t.Errorf("err = %+v", snap.Err)
		}
	})
}

func TestTurnNotifyOrder(t *testing.T) {
	var mu sync.Mutex
	var kinds []UpdateKind
	turn := NewTurn(func(u Update) {
		mu.Lock()
		kinds = append(kinds, u.Kind)
		mu.Unlock()
	})

	dispatchAll(t, turn.Callbacks(),
		"event: thinking\ndata: {\"content\":\"hm\",\"agent\":\"todo\"}\n\n"+
			"event: token\ndata: {\"content\":\"Hi\"}\n\n"+
			"event: tool_call\ndata: {\"tool\":\"add_task\",\"args\":{},\"call_id\":\"c1\"}\n\n"+
			"event: done\ndata: {\"conversation_id\":1,\"message_id\":2}\n\n")

	mu.Lock()
	defer mu.Unlock()
	want := []UpdateKind{UpdateThinking, UpdateText, UpdateTools, UpdateDone}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestTurnMCPPhasesAdvanceCall(t *testing.T) {
	turn := NewTurn(nil)
	cb := turn.Callbacks()

	dispatchAll(t, cb,
		"event: tool_call\ndata: {\"tool\":\"list_tasks\",\"args\":{},\"call_id\":\"c3\"}\n\n"+
			"event: mcp_response\ndata: {\"tool_name\":\"list_tasks\",\"call_id\":\"c3\"}\n\n")

	got := stream.FindCall(turn.Snapshot().ToolCalls, "c3")
	if got.Phase != stream.PhaseMCPResponded {
		t.Errorf("phase = %s, want mcp_responded", got.Phase)
	}
}
