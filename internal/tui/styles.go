package tui

import (
	"charm.land/lipgloss/v2"
)

// Catppuccin Mocha inspired palette, shared across all components.
var (
	colorBase     = lipgloss.Color("#1e1e2e")
	colorCrust    = lipgloss.Color("#11111b")
	colorSurface0 = lipgloss.Color("#313244")
	colorSurface1 = lipgloss.Color("#45475a")

	colorSubtext0 = lipgloss.Color("#a6adc8")
	colorText     = lipgloss.Color("#cdd6f4")

	colorPrimary   = lipgloss.Color("#cba6f7") // mauve
	colorSecondary = lipgloss.Color("#89b4fa") // blue
	colorSuccess   = lipgloss.Color("#a6e3a1") // green
	colorWarning   = lipgloss.Color("#f9e2af") // yellow
	colorError     = lipgloss.Color("#f38ba8") // red
)

var (
	styleDim = lipgloss.NewStyle().
			Foreground(colorSubtext0)

	styleUserLabel = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	styleUserText = lipgloss.NewStyle().
			Foreground(colorText)

	styleAssistantBorder = lipgloss.NewStyle().
				Border(lipgloss.ThickBorder(), false, false, false, true).
				BorderForeground(colorPrimary).
				PaddingLeft(1)

	styleAgentLabel = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleToolBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			PaddingLeft(1).
			PaddingRight(1)

	styleToolName = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	stylePhaseTrail = lipgloss.NewStyle().
			Foreground(colorSubtext0)

	styleStatusBar = lipgloss.NewStyle().
			Background(colorCrust).
			Foreground(colorSubtext0)

	styleStatusAgent = lipgloss.NewStyle().
				Background(colorCrust).
				Foreground(colorPrimary).
				Bold(true)

	styleErrorText = lipgloss.NewStyle().
			Foreground(colorError)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorSuccess)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorWarning)

	styleSidebarTitle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true).
				PaddingLeft(1)

	styleSidebarBorder = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(colorSurface0)

	styleInputBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1)
)

// statusIcon maps a tool status to its glyph and style.
func statusIcon(status string) string {
	switch status {
	case "completed":
		return styleSuccess.Render("✓")
	case "error":
		return styleErrorText.Render("✗")
	case "executing":
		return styleWarning.Render("●")
	default:
		return styleDim.Render("○")
	}
}
