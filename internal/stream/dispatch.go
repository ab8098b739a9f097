package stream

import (
	"errors"

	"github.com/mark3labs/todochat/internal/logger"
)

// Callbacks is the hook surface exposed to the UI layer. Every field is
// optional; a nil callback is a silent no-op. The dispatcher holds no state
// of its own, so all UI state lives behind these hooks.
type Callbacks struct {
	OnThinking     func(content, agent string)
	OnToken        func(content string)
	OnToolCall     func(ev ToolCallEvent)
	OnToolResult   func(ev ToolResultEvent)
	OnAgentUpdated func(agent, content string)
	OnDone         func(ev DoneEvent)
	OnError        func(ev ErrorEvent)
	OnHandoffCall  func(ev HandoffCallEvent)
	OnHandoff      func(fromAgent, toAgent string)
	OnReasoning    func(content string)

	// Verbose lifecycle hooks.
	OnAgentStart  func(agentName, message string)
	OnAgentEnd    func(agentName, message string)
	OnLLMStart    func(agentName, model string)
	OnLLMEnd      func(agentName string)
	OnMCPRequest  func(ev MCPLifecycleEvent)
	OnMCPResponse func(ev MCPLifecycleEvent)
}

// Dispatch decodes a frame's payload against its declared event type and
// invokes the matching callback. Unknown event types are logged and
// ignored, keeping the client forward compatible with new server events.
// Payloads that fail their shape check are logged and skipped.
func Dispatch(f Frame, cb Callbacks) {
	decodeErr := func(err error) {
		logger.Warn("Skipping %q event with bad payload: %v", f.Event, err)
	}

	switch f.Event {
	case EventThinking:
		var ev ThinkingEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnThinking != nil {
			cb.OnThinking(ev.Content, ev.Agent)
		}

	case EventToken:
		var ev TokenEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnToken != nil {
			cb.OnToken(ev.Content)
		}

	case EventToolCall:
		var ev ToolCallEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.CallID == "" || ev.Tool == "" {
				return errors.New("tool_call requires tool and call_id")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnToolCall != nil {
			cb.OnToolCall(ev)
		}

	case EventToolResult:
		var ev ToolResultEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.CallID == "" {
				return errors.New("tool_result requires call_id")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnToolResult != nil {
			cb.OnToolResult(ev)
		}

	case EventAgentUpdated:
		var ev AgentUpdatedEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.Agent == "" {
				return errors.New("agent_updated requires agent")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnAgentUpdated != nil {
			cb.OnAgentUpdated(ev.Agent, ev.Content)
		}

	case EventDone:
		var ev DoneEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnDone != nil {
			cb.OnDone(ev)
		}

	case EventError:
		var ev ErrorEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.Message == "" {
				return errors.New("error requires message")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnError != nil {
			cb.OnError(ev)
		}

	case EventHandoffCall:
		var ev HandoffCallEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.Tool == "" {
				return errors.New("handoff_call requires tool")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnHandoffCall != nil {
			cb.OnHandoffCall(ev)
		}

	case EventHandoff:
		var ev HandoffEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.ToAgent == "" {
				return errors.New("handoff requires to_agent")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnHandoff != nil {
			cb.OnHandoff(ev.FromAgent, ev.ToAgent)
		}

	case EventReasoning:
		var ev ReasoningEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnReasoning != nil {
			cb.OnReasoning(ev.Content)
		}

	case EventAgentStart:
		var ev AgentLifecycleEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnAgentStart != nil {
			cb.OnAgentStart(ev.AgentName, ev.Message)
		}

	case EventAgentEnd:
		var ev AgentLifecycleEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnAgentEnd != nil {
			cb.OnAgentEnd(ev.AgentName, ev.Message)
		}

	case EventLLMStart:
		var ev LLMLifecycleEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnLLMStart != nil {
			cb.OnLLMStart(ev.AgentName, ev.Model)
		}

	case EventLLMEnd:
		var ev LLMLifecycleEvent
		if err := decodeStrict(f.Data, &ev, nil); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnLLMEnd != nil {
			cb.OnLLMEnd(ev.AgentName)
		}

	case EventMCPRequest:
		var ev MCPLifecycleEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.CallID == "" {
				return errors.New("mcp_request requires call_id")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnMCPRequest != nil {
			cb.OnMCPRequest(ev)
		}

	case EventMCPResponse:
		var ev MCPLifecycleEvent
		if err := decodeStrict(f.Data, &ev, func() error {
			if ev.CallID == "" {
				return errors.New("mcp_response requires call_id")
			}
			return nil
		}); err != nil {
			decodeErr(err)
			return
		}
		if cb.OnMCPResponse != nil {
			cb.OnMCPResponse(ev)
		}

	default:
		logger.Debug("Ignoring unknown event type: %s", f.Event)
	}
}
