// Package tui is the terminal chat interface: a transcript pane with
// streaming assistant text and tool cards, a task sidebar, and a single
// line input. It consumes turn snapshots pushed in from the chat session
// and never talks to the stream layer directly.
package tui

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textarea"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	uv "github.com/charmbracelet/ultraviolet"

	"github.com/mark3labs/todochat/internal/api"
	"github.com/mark3labs/todochat/internal/chat"
	"github.com/mark3labs/todochat/internal/logger"
)

const sidebarWidth = 32

// TurnUpdateMsg carries a turn snapshot from the session into the UI.
// Sent from the stream goroutine via Program.Send.
type TurnUpdateMsg struct {
	Update chat.Update
}

// tasksLoadedMsg carries a sidebar refresh result.
type tasksLoadedMsg struct {
	tasks []api.Task
	err   error
}

// AppOptions wires the UI to the rest of the client.
type AppOptions struct {
	// Send starts a turn for the message. Updates flow back as
	// TurnUpdateMsg values.
	Send func(message string)
	// Cancel stops the in-flight turn.
	Cancel func()
	// Tasks fetches the sidebar task list. Nil hides the sidebar.
	Tasks *api.Client
	// Conversation is the label shown in the header.
	Conversation string
}

// App is the main Bubbletea model.
type App struct {
	opts AppOptions

	chatView *ChatView
	sidebar  *Sidebar
	status   *StatusBar
	input    textarea.Model

	sidebarVisible bool
	turnSeq        int
	turnBusy       bool
	turnCount      int
	width          int
	height         int
	quitting       bool
}

// NewApp creates the chat application model.
func NewApp(opts AppOptions) *App {
	ta := textarea.New()
	ta.Placeholder = "Message the Todo agent..."
	ta.CharLimit = 2000
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.SetHeight(1)
	// enter submits; newline moves to alt+enter
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	styles := textarea.DefaultDarkStyles()
	styles.Cursor.Color = colorSecondary
	styles.Cursor.Shape = tea.CursorBlock
	styles.Cursor.Blink = true
	ta.SetStyles(styles)

	return &App{
		opts:           opts,
		chatView:       NewChatView(),
		sidebar:        NewSidebar(),
		status:         NewStatusBar(),
		input:          ta,
		sidebarVisible: opts.Tasks != nil,
	}
}

// Init focuses the input and kicks off the first sidebar refresh.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.input.Focus(), a.refreshTasks())
}

// Update handles incoming messages and updates the model state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return a.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.propagateSizes()
		return a, nil

	case TurnUpdateMsg:
		return a.handleTurnUpdate(msg.Update)

	case tasksLoadedMsg:
		if msg.err != nil {
			logger.Warn("Task refresh failed: %v", msg.err)
			a.sidebar.SetError(msg.err)
		} else {
			a.sidebar.SetTasks(msg.tasks)
		}
		return a, nil

	case tea.MouseWheelMsg:
		return a, a.chatView.Update(msg)
	}

	var cmds []tea.Cmd
	if cmd := a.status.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

func (a *App) handleKeyPress(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if a.opts.Cancel != nil {
			a.opts.Cancel()
		}
		a.quitting = true
		return a, tea.Quit

	case "esc":
		if a.turnBusy && a.opts.Cancel != nil {
			a.opts.Cancel()
			a.turnBusy = false
			a.status.SetBusy(false)
			a.status.SetThinking("")
			a.chatView.AddNotice(fmt.Sprintf("turn:%d:canceled", a.turnSeq), "Canceled.")
		}
		return a, nil

	case "ctrl+t":
		if a.opts.Tasks != nil {
			a.sidebarVisible = !a.sidebarVisible
			a.propagateSizes()
			if a.sidebarVisible {
				return a, a.refreshTasks()
			}
		}
		return a, nil

	case "enter":
		return a, a.sendCurrentInput()

	case "pgup", "pgdown":
		return a, a.chatView.Update(msg)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) sendCurrentInput() tea.Cmd {
	message := strings.TrimSpace(a.input.Value())
	if message == "" || a.opts.Send == nil {
		return nil
	}

	a.turnSeq++
	a.turnCount++
	a.turnBusy = true
	a.input.SetValue("")
	a.chatView.AddUserMessage(a.turnSeq, message)
	a.status.SetThinking("")

	a.opts.Send(message)
	return a.status.SetBusy(true)
}

func (a *App) handleTurnUpdate(u chat.Update) (tea.Model, tea.Cmd) {
	a.chatView.ApplyTurnUpdate(a.turnSeq, u)
	a.status.SetAgent(u.Agent)
	a.status.SetThinking(u.Thinking)

	switch u.Kind {
	case chat.UpdateDone:
		a.turnBusy = false
		a.status.SetBusy(false)
		// The agent may have changed tasks; refresh the sidebar.
		return a, a.refreshTasks()
	case chat.UpdateError:
		a.turnBusy = false
		a.status.SetBusy(false)
	}
	return a, nil
}

// refreshTasks fetches the task list for the sidebar.
func (a *App) refreshTasks() tea.Cmd {
	if a.opts.Tasks == nil || !a.sidebarVisible {
		return nil
	}
	client := a.opts.Tasks
	return func() tea.Msg {
		tasks, err := client.ListTasks(context.Background())
		return tasksLoadedMsg{tasks: tasks, err: err}
	}
}

func (a *App) chatWidth() int {
	if a.sidebarVisible && a.width >= 80 {
		return a.width - sidebarWidth
	}
	return a.width
}

func (a *App) propagateSizes() {
	chatHeight := a.height - 4 // header, status, input rows
	if chatHeight < 1 {
		chatHeight = 1
	}
	a.chatView.SetSize(a.chatWidth(), chatHeight)
	a.sidebar.SetSize(sidebarWidth, chatHeight)
	a.status.SetSize(a.width)
	a.input.SetWidth(a.width - 2)
}

// View renders the current view. In Bubbletea v2, this returns tea.View
// with the full-screen content and terminal options.
func (a *App) View() tea.View {
	var view tea.View
	view.AltScreen = true
	view.MouseMode = tea.MouseModeCellMotion

	if a.quitting {
		// Exit alt screen for proper terminal restoration
		view.AltScreen = false
		view.MouseMode = 0
		view.Content = lipgloss.NewLayer("")
		return view
	}
	if a.width == 0 || a.height == 0 {
		view.Content = lipgloss.NewLayer("")
		return view
	}

	canvas := uv.NewScreenBuffer(a.width, a.height)
	view.Cursor = a.Draw(canvas, canvas.Bounds())
	view.Content = lipgloss.NewLayer(canvas.Render())
	view.BackgroundColor = colorBase
	return view
}

// Draw renders all components into the screen buffer.
func (a *App) Draw(scr uv.Screen, area uv.Rectangle) *tea.Cursor {
	width := area.Dx()
	height := area.Dy()
	chatWidth := a.chatWidth()

	// Header
	title := styleAgentLabel.Render("todochat")
	label := a.opts.Conversation
	if label == "" {
		label = "new conversation"
	}
	header := fmt.Sprintf("%s  %s  %s", title, styleDim.Render(label), styleDim.Render(FormatTurnCount(a.turnCount)))
	uv.NewStyledString(header).Draw(scr, uv.Rect(area.Min.X, area.Min.Y, width, 1))

	// Transcript
	chatArea := uv.Rect(area.Min.X, area.Min.Y+1, chatWidth, height-4)
	a.chatView.Draw(scr, chatArea)

	// Sidebar
	if a.sidebarVisible && width >= 80 {
		sideArea := uv.Rect(area.Min.X+chatWidth, area.Min.Y+1, sidebarWidth, height-4)
		a.sidebar.Draw(scr, sideArea)
	}

	// Status line
	a.status.Draw(scr, uv.Rect(area.Min.X, area.Min.Y+height-3, width, 1))

	// Input
	input := styleInputBox.Width(width - 2).Render(a.input.View())
	uv.NewStyledString(input).Draw(scr, uv.Rect(area.Min.X, area.Min.Y+height-2, width, 2))

	return nil
}
