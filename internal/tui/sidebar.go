package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "charm.land/bubbletea/v2"
	uv "github.com/charmbracelet/ultraviolet"

	"github.com/mark3labs/todochat/internal/api"
)

// Sidebar shows the current task list next to the conversation.
type Sidebar struct {
	tasks  []api.Task
	width  int
	height int
	err    error
}

// NewSidebar creates an empty task sidebar.
func NewSidebar() *Sidebar {
	return &Sidebar{}
}

// SetSize records the drawing area.
func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
}

// SetTasks replaces the task list, newest first.
func (s *Sidebar) SetTasks(tasks []api.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID > tasks[j].ID })
	s.tasks = tasks
	s.err = nil
}

// SetError records a refresh failure shown in place of the list.
func (s *Sidebar) SetError(err error) {
	s.err = err
}

// Draw renders the sidebar into the given area.
func (s *Sidebar) Draw(scr uv.Screen, area uv.Rectangle) *tea.Cursor {
	var b strings.Builder
	b.WriteString(styleSidebarTitle.Render("Tasks"))
	b.WriteString("\n\n")

	switch {
	case s.err != nil:
		b.WriteString(styleErrorText.Render(wrapText("tasks unavailable: "+s.err.Error(), max(s.width-2, 1))))
	case len(s.tasks) == 0:
		b.WriteString(styleDim.Render(" No tasks yet"))
	default:
		remaining := 0
		for _, task := range s.tasks {
			if !task.Completed {
				remaining++
			}
		}
		shown := 0
		for _, task := range s.tasks {
			if shown >= max(s.height-4, 1) {
				b.WriteString(styleDim.Render(fmt.Sprintf(" …and %d more\n", len(s.tasks)-shown)))
				break
			}
			mark := styleDim.Render("[ ]")
			title := task.Title
			if task.Completed {
				mark = styleSuccess.Render("[x]")
				title = styleDim.Render(truncate(title, max(s.width-6, 4)))
			} else {
				title = truncate(title, max(s.width-6, 4))
			}
			fmt.Fprintf(&b, " %s %s\n", mark, title)
			shown++
		}
		b.WriteString("\n")
		b.WriteString(styleDim.Render(fmt.Sprintf(" %d open", remaining)))
	}

	content := styleSidebarBorder.Height(s.height).Render(b.String())
	uv.NewStyledString(content).Draw(scr, area)
	return nil
}
