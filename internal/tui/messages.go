package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/todochat/internal/stream"
)

// MessageItem represents a displayable item in the chat transcript.
type MessageItem interface {
	// ID returns the unique identifier for this message item.
	ID() string
	// Render returns the rendered string representation at the given width.
	Render(width int) string
}

// UserMessageItem is a message the user sent.
type UserMessageItem struct {
	id      string
	content string

	cachedRender string
	cachedWidth  int
}

// NewUserMessage creates a user message item.
func NewUserMessage(id, content string) *UserMessageItem {
	return &UserMessageItem{id: id, content: content}
}

func (u *UserMessageItem) ID() string { return u.id }

func (u *UserMessageItem) Render(width int) string {
	if u.cachedWidth == width && u.cachedRender != "" {
		return u.cachedRender
	}

	label := styleUserLabel.Render("You")
	body := styleUserText.Render(wrapText(u.content, max(width-2, 1)))
	u.cachedRender = label + "\n" + body
	u.cachedWidth = width
	return u.cachedRender
}

// TextMessageItem is streamed assistant text, rendered as markdown. The
// content grows while the turn streams, so the cache keys on content
// length as well as width.
type TextMessageItem struct {
	id    string
	agent string

	content      string
	cachedRender string
	cachedWidth  int
	cachedLen    int
}

// NewTextMessage creates an assistant text item.
func NewTextMessage(id, agent string) *TextMessageItem {
	return &TextMessageItem{id: id, agent: agent}
}

// SetContent replaces the accumulated text.
func (t *TextMessageItem) SetContent(content string) {
	t.content = content
}

// SetAgent updates the agent label shown above the text.
func (t *TextMessageItem) SetAgent(agent string) {
	if agent != "" {
		t.agent = agent
		t.cachedRender = ""
	}
}

func (t *TextMessageItem) ID() string { return t.id }

func (t *TextMessageItem) Render(width int) string {
	if t.cachedWidth == width && t.cachedLen == len(t.content) && t.cachedRender != "" {
		return t.cachedRender
	}

	effectiveWidth := width - 2
	if effectiveWidth > 120 {
		effectiveWidth = 120
	}
	if effectiveWidth < 1 {
		effectiveWidth = 1
	}

	label := styleAgentLabel.Render(t.agent)
	if t.agent == "" {
		label = styleAgentLabel.Render("Assistant")
	}
	body := styleAssistantBorder.Render(renderMarkdown(t.content, effectiveWidth))

	t.cachedRender = label + "\n" + body
	t.cachedWidth = width
	t.cachedLen = len(t.content)
	return t.cachedRender
}

// ToolMessageItem is a tool invocation card showing status, arguments, and
// the phase trail the call walked through.
type ToolMessageItem struct {
	call stream.ActiveToolCall

	cachedRender string
	cachedWidth  int
	cachedState  string
}

// NewToolMessage creates a tool card for the given call snapshot.
func NewToolMessage(call stream.ActiveToolCall) *ToolMessageItem {
	return &ToolMessageItem{call: call}
}

// SetCall replaces the call snapshot. Lifecycle helpers hand out fresh
// records, so comparing phase and status is enough to invalidate the cache.
func (t *ToolMessageItem) SetCall(call stream.ActiveToolCall) {
	t.call = call
}

func (t *ToolMessageItem) ID() string { return "tool:" + t.call.CallID }

func (t *ToolMessageItem) state() string {
	return fmt.Sprintf("%s|%s|%d", t.call.Status, t.call.Phase, len(t.call.History))
}

func (t *ToolMessageItem) Render(width int) string {
	if t.cachedWidth == width && t.cachedState == t.state() && t.cachedRender != "" {
		return t.cachedRender
	}

	inner := max(width-4, 10)

	var b strings.Builder
	b.WriteString(statusIcon(string(t.call.Status)))
	b.WriteString(" ")
	b.WriteString(styleToolName.Render(t.call.Tool))
	if args := summarizeArgs(t.call.Args); args != "" {
		b.WriteString(" ")
		b.WriteString(styleDim.Render(truncate(args, inner-len(t.call.Tool)-4)))
	}

	if len(t.call.History) > 0 {
		phases := make([]string, len(t.call.History))
		for i, p := range t.call.History {
			phases[i] = string(p)
		}
		b.WriteString("\n")
		b.WriteString(stylePhaseTrail.Render(truncate(strings.Join(phases, " › "), inner)))
	}

	if t.call.Status == stream.ToolError {
		if msg := errorMessage(t.call.Result); msg != "" {
			b.WriteString("\n")
			b.WriteString(styleErrorText.Render(truncate(msg, inner)))
		}
	}

	t.cachedRender = styleToolBox.Width(min(width, inner+4)).Render(b.String())
	t.cachedWidth = width
	t.cachedState = t.state()
	return t.cachedRender
}

// SystemMessageItem is a dimmed one-liner for handoffs and errors.
type SystemMessageItem struct {
	id      string
	content string
	isError bool
}

// NewSystemMessage creates a system notice item.
func NewSystemMessage(id, content string, isError bool) *SystemMessageItem {
	return &SystemMessageItem{id: id, content: content, isError: isError}
}

func (s *SystemMessageItem) ID() string { return s.id }

func (s *SystemMessageItem) Render(width int) string {
	text := wrapText(s.content, max(width-2, 1))
	if s.isError {
		return styleErrorText.Render(text)
	}
	return styleDim.Render(text)
}

// summarizeArgs flattens tool arguments to "key=value" pairs in a stable
// order.
func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, " ")
}

// errorMessage extracts the "error" value from an error-shaped result.
func errorMessage(result json.RawMessage) string {
	var obj struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(result, &obj); err != nil || obj.Error == nil {
		return ""
	}
	return fmt.Sprintf("%v", obj.Error)
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
