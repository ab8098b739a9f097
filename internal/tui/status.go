package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	uv "github.com/charmbracelet/ultraviolet"
)

// StatusBar is the single status line between the transcript and input.
// It shows the busy spinner, the active agent, thinking narration, and key
// hints.
type StatusBar struct {
	spinner  spinner.Model
	agent    string
	thinking string
	busy     bool
	width    int
}

// NewStatusBar creates the status line.
func NewStatusBar() *StatusBar {
	s := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(colorPrimary)),
	)
	return &StatusBar{spinner: s}
}

// SetSize records the bar width.
func (s *StatusBar) SetSize(width int) {
	s.width = width
}

// SetAgent updates the active agent label.
func (s *StatusBar) SetAgent(agent string) {
	if agent != "" {
		s.agent = agent
	}
}

// SetThinking updates the narration text.
func (s *StatusBar) SetThinking(text string) {
	s.thinking = text
}

// SetBusy toggles the spinner. Returns the tick command when starting.
func (s *StatusBar) SetBusy(busy bool) tea.Cmd {
	wasBusy := s.busy
	s.busy = busy
	if busy && !wasBusy {
		return s.spinner.Tick
	}
	return nil
}

// Update advances the spinner animation while busy.
func (s *StatusBar) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(spinner.TickMsg); !ok {
		return nil
	}
	if !s.busy {
		return nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return cmd
}

// Draw renders the status line.
func (s *StatusBar) Draw(scr uv.Screen, area uv.Rectangle) *tea.Cursor {
	var left strings.Builder
	if s.busy {
		left.WriteString(s.spinner.View())
		left.WriteString(" ")
	}
	if s.agent != "" {
		left.WriteString(styleStatusAgent.Render(s.agent))
		left.WriteString(" ")
	}
	if s.thinking != "" {
		left.WriteString(styleStatusBar.Render(s.thinking))
	}

	hints := styleStatusBar.Render("enter send · esc cancel · ctrl+t tasks · ctrl+c quit")

	leftText := left.String()
	pad := s.width - lipgloss.Width(leftText) - lipgloss.Width(hints)
	if pad < 1 {
		pad = 1
	}
	line := leftText + strings.Repeat(" ", pad) + hints

	uv.NewStyledString(styleStatusBar.Width(s.width).Render(line)).Draw(scr, area)
	return nil
}

// FormatTurnCount renders the conversation position indicator.
func FormatTurnCount(n int) string {
	if n == 1 {
		return "1 turn"
	}
	return fmt.Sprintf("%d turns", n)
}
