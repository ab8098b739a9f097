// Package stream implements the client side of the chat backend's SSE
// protocol: a reconnecting transport, an incremental frame parser, a
// callback dispatcher, and pure helpers for tracking tool-call lifecycles.
package stream

import (
	"encoding/json"
	"fmt"
)

// Event type names as they appear on the wire in `event:` lines.
const (
	EventThinking     = "thinking"
	EventToken        = "token"
	EventToolCall     = "tool_call"
	EventToolResult   = "tool_result"
	EventAgentUpdated = "agent_updated"
	EventDone         = "done"
	EventError        = "error"
	EventHandoffCall  = "handoff_call"
	EventHandoff      = "handoff"
	EventReasoning    = "reasoning"

	// Verbose lifecycle events, emitted when the backend runs with
	// lifecycle tracing enabled.
	EventAgentStart  = "agent_start"
	EventAgentEnd    = "agent_end"
	EventLLMStart    = "llm_start"
	EventLLMEnd      = "llm_end"
	EventMCPRequest  = "mcp_request"
	EventMCPResponse = "mcp_response"
)

// ThinkingEvent carries status or reasoning narration for display while the
// agent works. The transport also synthesizes these for reconnect notices.
type ThinkingEvent struct {
	Content string `json:"content"`
	Agent   string `json:"agent"`
}

// TokenEvent is one chunk of the assistant's response text.
type TokenEvent struct {
	Content string `json:"content"`
}

// ToolCallEvent announces that the agent is invoking a tool.
type ToolCallEvent struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	CallID string         `json:"call_id"`
}

// ToolResultEvent carries the output of a completed tool invocation.
// Output is kept opaque; an object containing an "error" key signals a
// failed call, which the consumer decides how to surface.
type ToolResultEvent struct {
	CallID string          `json:"call_id"`
	Output json.RawMessage `json:"output"`
}

// AgentUpdatedEvent reports that a different agent is now responding.
type AgentUpdatedEvent struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
}

// DoneEvent terminates a chat turn.
type DoneEvent struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}

// ErrorEvent is a server-reported stream error. The transport normalizes
// its own failures (HTTP errors, retry exhaustion) into the same shape.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error implements the error interface so ErrorEvent can flow through
// error-returning paths unchanged.
func (e ErrorEvent) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// HandoffCallEvent announces that the current agent requested a handoff.
type HandoffCallEvent struct {
	Tool   string `json:"tool"`
	CallID string `json:"call_id"`
}

// HandoffEvent reports a completed transfer of control between agents.
type HandoffEvent struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
}

// ReasoningEvent carries model reasoning traces.
type ReasoningEvent struct {
	Content string `json:"content"`
}

// AgentLifecycleEvent is shared by agent_start and agent_end.
type AgentLifecycleEvent struct {
	AgentName string `json:"agent_name"`
	Message   string `json:"message"`
}

// LLMLifecycleEvent is shared by llm_start and llm_end. Model is only
// populated on llm_start.
type LLMLifecycleEvent struct {
	AgentName string `json:"agent_name"`
	Model     string `json:"model,omitempty"`
}

// MCPLifecycleEvent is shared by mcp_request and mcp_response.
type MCPLifecycleEvent struct {
	ToolName  string `json:"tool_name"`
	CallID    string `json:"call_id"`
	AgentName string `json:"agent_name,omitempty"`
}

// decodeStrict unmarshals data into v and then runs the variant's shape
// check. Payloads that don't match their declared event type are rejected
// here rather than silently producing zero values downstream.
func decodeStrict(data []byte, v any, check func() error) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	if check != nil {
		return check()
	}
	return nil
}
