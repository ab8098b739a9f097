// Package chat drives one conversation with the Todo backend: it owns the
// turn state that stream callbacks mutate and publishes snapshots to the
// UI. All mutable state lives in Turn; the stream layer stays stateless.
package chat

import (
	"strings"
	"sync"

	"github.com/mark3labs/todochat/internal/stream"
)

// UpdateKind tags what changed in a turn snapshot.
type UpdateKind string

const (
	UpdateText     UpdateKind = "text"      // assistant text grew
	UpdateThinking UpdateKind = "thinking"  // status line changed
	UpdateTools    UpdateKind = "tools"     // tool call state changed
	UpdateAgent    UpdateKind = "agent"     // active agent changed
	UpdateDone     UpdateKind = "done"      // turn finished normally
	UpdateError    UpdateKind = "error"     // turn finished with an error
	UpdateHandoff  UpdateKind = "handoff"   // agent handoff happened
	UpdateReason   UpdateKind = "reasoning" // reasoning trace grew
)

// Update is an immutable snapshot of the turn handed to the notify hook.
// ToolCalls is a fresh slice on every update, so the UI can keep a
// reference without racing the next event.
type Update struct {
	Kind      UpdateKind
	Text      string
	Thinking  string
	Agent     string
	Reasoning string
	ToolCalls []stream.ActiveToolCall
	Done      *stream.DoneEvent
	Err       *stream.ErrorEvent
}

// Turn accumulates the state of one request/response exchange. It is safe
// for concurrent use; stream callbacks arrive on the transport goroutine
// while the UI reads snapshots.
type Turn struct {
	mu sync.Mutex

	text      strings.Builder
	reasoning strings.Builder
	thinking  string
	agent     string
	model     string
	calls     []stream.ActiveToolCall
	done      *stream.DoneEvent
	err       *stream.ErrorEvent

	notify func(Update)
}

// NewTurn creates a turn that reports changes through notify. A nil notify
// is allowed; state still accumulates and can be read with Snapshot.
func NewTurn(notify func(Update)) *Turn {
	if notify == nil {
		notify = func(Update) {}
	}
	return &Turn{notify: notify}
}

// Snapshot returns the current turn state as an update with no kind set.
func (t *Turn) Snapshot() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked("")
}

// Finished reports whether the turn reached a terminal state.
func (t *Turn) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done != nil || t.err != nil
}

func (t *Turn) snapshotLocked(kind UpdateKind) Update {
	calls := make([]stream.ActiveToolCall, len(t.calls))
	copy(calls, t.calls)
	return Update{
		Kind:      kind,
		Text:      t.text.String(),
		Thinking:  t.thinking,
		Agent:     t.agent,
		Reasoning: t.reasoning.String(),
		ToolCalls: calls,
		Done:      t.done,
		Err:       t.err,
	}
}

// apply runs mutate under the lock, then notifies with a snapshot taken
// before the lock is released. Notify runs unlocked so the hook can call
// back into the turn.
func (t *Turn) apply(kind UpdateKind, mutate func()) {
	t.mu.Lock()
	mutate()
	update := t.snapshotLocked(kind)
	t.mu.Unlock()
	t.notify(update)
}

// Callbacks wires the turn into the stream dispatcher. Every hook routes
// through the same mutex, so event ordering within the turn is preserved.
func (t *Turn) Callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnToken: func(content string) {
			t.apply(UpdateText, func() {
				t.text.WriteString(content)
				t.thinking = ""
			})
		},
		OnThinking: func(content, agent string) {
			t.apply(UpdateThinking, func() {
				t.thinking = content
				if agent != "" && agent != "System" {
					t.agent = agent
				}
			})
		},
		OnReasoning: func(content string) {
			t.apply(UpdateReason, func() {
				t.reasoning.WriteString(content)
			})
		},
		OnToolCall: func(ev stream.ToolCallEvent) {
			t.apply(UpdateTools, func() {
				t.calls = append(t.calls, stream.NewToolCall(ev, stream.ToolCallOptions{
					AgentName: t.agent,
					Model:     t.model,
				}))
			})
		},
		OnToolResult: func(ev stream.ToolResultEvent) {
			t.apply(UpdateTools, func() {
				if stream.IsErrorResult(ev.Output) {
					t.calls = stream.Fail(t.calls, ev.CallID, ev.Output)
				} else {
					t.calls = stream.Complete(t.calls, ev.CallID, ev.Output)
				}
			})
		},
		OnMCPRequest: func(ev stream.MCPLifecycleEvent) {
			t.apply(UpdateTools, func() {
				t.calls = stream.AdvancePhase(t.calls, ev.CallID, stream.PhaseMCPRequesting)
			})
		},
		OnMCPResponse: func(ev stream.MCPLifecycleEvent) {
			t.apply(UpdateTools, func() {
				t.calls = stream.AdvancePhase(t.calls, ev.CallID, stream.PhaseMCPResponded)
			})
		},
		OnAgentStart: func(agentName, message string) {
			t.apply(UpdateAgent, func() {
				if agentName != "" {
					t.agent = agentName
				}
				if message != "" {
					t.thinking = message
				}
			})
		},
		OnAgentUpdated: func(agent, content string) {
			t.apply(UpdateAgent, func() {
				t.agent = agent
				if content != "" {
					t.thinking = content
				}
			})
		},
		OnHandoff: func(fromAgent, toAgent string) {
			t.apply(UpdateHandoff, func() {
				t.agent = toAgent
			})
		},
		OnLLMStart: func(agentName, model string) {
			t.mu.Lock()
			if agentName != "" {
				t.agent = agentName
			}
			t.model = model
			t.mu.Unlock()
		},
		OnDone: func(ev stream.DoneEvent) {
			t.apply(UpdateDone, func() {
				done := ev
				t.done = &done
				t.thinking = ""
			})
		},
		OnError: func(ev stream.ErrorEvent) {
			t.apply(UpdateError, func() {
				errEv := ev
				t.err = &errEv
				t.thinking = ""
			})
		},
	}
}
