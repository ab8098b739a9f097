package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	uv "github.com/charmbracelet/ultraviolet"

	"github.com/mark3labs/todochat/internal/chat"
)

// ChatView displays the conversation transcript with auto-scroll.
type ChatView struct {
	viewport   viewport.Model
	messages   []MessageItem
	index      map[string]int // item ID → message index
	width      int
	height     int
	autoScroll bool
	ready      bool
}

// NewChatView creates an empty chat transcript view.
func NewChatView() *ChatView {
	return &ChatView{
		index:      make(map[string]int),
		autoScroll: true,
	}
}

// SetSize resizes the viewport and re-renders all items.
func (c *ChatView) SetSize(width, height int) {
	c.width = width
	c.height = height

	if !c.ready {
		c.viewport = viewport.New(
			viewport.WithWidth(width),
			viewport.WithHeight(height),
		)
		c.viewport.MouseWheelEnabled = true
		c.ready = true
	} else {
		c.viewport.SetWidth(width)
		c.viewport.SetHeight(height)
	}
	c.refreshContent()
}

// Update forwards scrolling input to the viewport.
func (c *ChatView) Update(msg tea.Msg) tea.Cmd {
	if !c.ready {
		return nil
	}

	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)

	switch msg.(type) {
	case tea.KeyPressMsg, tea.MouseMsg:
		c.autoScroll = c.viewport.AtBottom()
	}
	return cmd
}

// Draw renders the transcript into the given screen area.
func (c *ChatView) Draw(scr uv.Screen, area uv.Rectangle) *tea.Cursor {
	if !c.ready {
		uv.NewStyledString(styleDim.Render("Say something to get started.")).Draw(scr, area)
		return nil
	}
	uv.NewStyledString(c.viewport.View()).Draw(scr, area)
	return nil
}

// append adds an item and records its position.
func (c *ChatView) append(item MessageItem) {
	c.index[item.ID()] = len(c.messages)
	c.messages = append(c.messages, item)
}

// AddUserMessage appends the user's outgoing message.
func (c *ChatView) AddUserMessage(turnSeq int, content string) {
	c.append(NewUserMessage(fmt.Sprintf("user:%d", turnSeq), content))
	c.refreshContent()
}

// AddNotice appends a dimmed system line.
func (c *ChatView) AddNotice(id, content string) {
	c.append(NewSystemMessage(id, content, false))
	c.refreshContent()
}

// ApplyTurnUpdate folds a turn snapshot into the transcript: tool cards
// are upserted by call id and the assistant text item grows in place.
func (c *ChatView) ApplyTurnUpdate(turnSeq int, u chat.Update) {
	switch u.Kind {
	case chat.UpdateTools:
		for _, call := range u.ToolCalls {
			id := "tool:" + call.CallID
			if i, ok := c.index[id]; ok {
				c.messages[i].(*ToolMessageItem).SetCall(call)
			} else {
				c.append(NewToolMessage(call))
			}
		}

	case chat.UpdateText:
		id := fmt.Sprintf("turn:%d:text", turnSeq)
		var item *TextMessageItem
		if i, ok := c.index[id]; ok {
			item = c.messages[i].(*TextMessageItem)
		} else {
			item = NewTextMessage(id, u.Agent)
			c.append(item)
		}
		item.SetContent(u.Text)
		item.SetAgent(u.Agent)

	case chat.UpdateHandoff:
		id := fmt.Sprintf("turn:%d:handoff:%s", turnSeq, u.Agent)
		if _, ok := c.index[id]; !ok {
			c.append(NewSystemMessage(id, fmt.Sprintf("Handed off to %s", u.Agent), false))
		}

	case chat.UpdateError:
		if u.Err != nil {
			id := fmt.Sprintf("turn:%d:error", turnSeq)
			if _, ok := c.index[id]; !ok {
				c.append(NewSystemMessage(id, u.Err.Message, true))
			}
		}

	default:
		return
	}
	c.refreshContent()
}

// refreshContent re-renders all items into the viewport, preserving scroll
// position unless auto-scroll is pinned to the bottom.
func (c *ChatView) refreshContent() {
	if !c.ready {
		return
	}

	var b strings.Builder
	for i, item := range c.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(item.Render(c.width))
	}
	c.viewport.SetContent(b.String())

	if c.autoScroll {
		c.viewport.GotoBottom()
	}
}
