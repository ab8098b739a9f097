package stream

import "encoding/json"

// ToolPhase names one stage of the backend's processing pipeline for a
// single tool call. Phases are surfaced to the client purely for progress
// display; the canonical order below is advisory, not enforced, because
// network and agent timing can skip or reorder them.
type ToolPhase string

const (
	PhaseIdle          ToolPhase = "idle"
	PhaseAgentStart    ToolPhase = "agent_start"
	PhaseLLMThinking   ToolPhase = "llm_thinking"
	PhaseLLMCalling    ToolPhase = "llm_calling"
	PhaseLLMResponding ToolPhase = "llm_responding"
	PhaseMCPRequesting ToolPhase = "mcp_requesting"
	PhaseToolRunning   ToolPhase = "tool_running"
	PhaseMCPResponded  ToolPhase = "mcp_responded"
	PhaseStreaming     ToolPhase = "streaming"
	PhaseCompleted     ToolPhase = "completed"
	PhaseError         ToolPhase = "error"
)

// Legacy phase names still emitted by older backend builds.
var phaseAliases = map[ToolPhase]ToolPhase{
	"llm_calling": PhaseLLMThinking,
	"llm_done":    PhaseLLMResponding,
}

// NormalizePhase maps legacy phase aliases to their canonical names.
// Unrecognized phases pass through unchanged.
func NormalizePhase(p ToolPhase) ToolPhase {
	if canonical, ok := phaseAliases[p]; ok {
		return canonical
	}
	return p
}

// ToolStatus is the coarse status of a tool invocation, derived from the
// events seen so far rather than from any single field on the wire.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolExecuting ToolStatus = "executing"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ActiveToolCall tracks one in-flight or finished tool invocation for the
// duration of a chat turn. Records are keyed by CallID and mutated only
// through the pure helpers below; History is append-only and deduplicates
// consecutive repeats of the same phase.
type ActiveToolCall struct {
	CallID    string
	Tool      string
	Args      map[string]any
	Status    ToolStatus
	Result    json.RawMessage
	Phase     ToolPhase
	History   []ToolPhase
	AgentName string
	Model     string
}

// ToolCallOptions supplies optional context captured from earlier verbose
// lifecycle events when a call record is created.
type ToolCallOptions struct {
	AgentName    string
	Model        string
	InitialPhase ToolPhase
}

// NewToolCall builds a record for a tool_call event. When no explicit
// initial phase is given, History is seeded with the phases that must
// already have happened for a tool call to reach the client: the agent
// started, the LLM ran, and the MCP request went out. The seed uses the
// canonical names, so the LLM step appears as llm_thinking (what
// llm_calling normalizes to), and it ends with tool_running because that
// is the phase the call is in the moment the event arrives.
func NewToolCall(ev ToolCallEvent, opts ToolCallOptions) ActiveToolCall {
	call := ActiveToolCall{
		CallID:    ev.CallID,
		Tool:      ev.Tool,
		Args:      ev.Args,
		Status:    ToolExecuting,
		AgentName: opts.AgentName,
		Model:     opts.Model,
	}
	if opts.InitialPhase != "" {
		phase := NormalizePhase(opts.InitialPhase)
		call.Phase = phase
		call.History = []ToolPhase{phase}
		return call
	}
	call.Phase = PhaseToolRunning
	call.History = []ToolPhase{PhaseAgentStart, PhaseLLMThinking, PhaseMCPRequesting, PhaseToolRunning}
	return call
}

// AdvancePhase appends phase to the history of the call with the given id
// and updates its current phase. Re-applying the phase already at the tail
// of the history updates the current phase but leaves history untouched,
// so repeated lifecycle events never duplicate entries. Calls with other
// ids are returned unchanged; an unknown id returns the input as is.
func AdvancePhase(calls []ActiveToolCall, callID string, phase ToolPhase) []ActiveToolCall {
	return updateCall(calls, callID, func(call *ActiveToolCall) {
		appendPhase(call, NormalizePhase(phase))
	})
}

// Complete marks the call as finished: status and phase become completed,
// the result is attached, and mcp_responded then completed are appended to
// the history.
func Complete(calls []ActiveToolCall, callID string, result json.RawMessage) []ActiveToolCall {
	return updateCall(calls, callID, func(call *ActiveToolCall) {
		appendPhase(call, PhaseMCPResponded)
		appendPhase(call, PhaseCompleted)
		call.Status = ToolCompleted
		call.Result = result
	})
}

// Fail marks the call as failed, attaching the error-shaped result. The
// tracker records the result verbatim; deciding that a payload is
// error-shaped is the caller's job.
func Fail(calls []ActiveToolCall, callID string, result json.RawMessage) []ActiveToolCall {
	return updateCall(calls, callID, func(call *ActiveToolCall) {
		appendPhase(call, PhaseError)
		call.Status = ToolError
		call.Result = result
	})
}

// updateCall returns a new slice with the matching call replaced by a
// mutated copy. The input slice and its elements are never modified, so
// snapshots handed to the UI stay stable across later events.
func updateCall(calls []ActiveToolCall, callID string, mutate func(*ActiveToolCall)) []ActiveToolCall {
	for i := range calls {
		if calls[i].CallID != callID {
			continue
		}
		out := make([]ActiveToolCall, len(calls))
		copy(out, calls)

		call := calls[i]
		call.History = append([]ToolPhase(nil), calls[i].History...)
		mutate(&call)
		out[i] = call
		return out
	}
	return calls
}

func appendPhase(call *ActiveToolCall, phase ToolPhase) {
	call.Phase = phase
	if n := len(call.History); n > 0 && call.History[n-1] == phase {
		return
	}
	call.History = append(call.History, phase)
}

// FindCall returns the call with the given id, or nil.
func FindCall(calls []ActiveToolCall, callID string) *ActiveToolCall {
	for i := range calls {
		if calls[i].CallID == callID {
			return &calls[i]
		}
	}
	return nil
}

// IsErrorResult reports whether a tool result payload is error-shaped: a
// JSON object containing an "error" key. The result schema is otherwise an
// external contract the tracker does not interpret.
func IsErrorResult(result json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(result, &obj); err != nil {
		return false
	}
	_, ok := obj["error"]
	return ok
}
