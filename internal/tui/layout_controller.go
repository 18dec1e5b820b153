package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/standardbeagle/runbox/internal/flags"
	"github.com/standardbeagle/runbox/internal/viewmode"
)

// LayoutController sizes the panes and renders the screen.
type LayoutController struct {
	model *Model

	bodyHeight int

	// Styles (initialized once)
	headerStyle   lipgloss.Style
	ruleStyle     lipgloss.Style
	paneStyle     lipgloss.Style
	focusedStyle  lipgloss.Style
	sidebarStyle  lipgloss.Style
	cursorStyle   lipgloss.Style
	dimStyle      lipgloss.Style
	runningStyle  lipgloss.Style
	reasonStyles  map[string]lipgloss.Style
	helpStyle     lipgloss.Style
	tooSmallStyle lipgloss.Style
}

func NewLayoutController(model *Model) *LayoutController {
	lc := &LayoutController{model: model}
	lc.initStyles()
	return lc
}

// initStyles initializes the lipgloss styles
func (lc *LayoutController) initStyles() {
	lc.headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("53")).
		Padding(0, 1)

	lc.ruleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	lc.paneStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))

	lc.focusedStyle = lc.paneStyle.Copy().
		BorderForeground(lipgloss.Color("205"))

	lc.sidebarStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderTop(false).
		BorderRight(false).
		BorderBottom(false).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	lc.cursorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Bold(true)

	lc.dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	lc.runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true)

	lc.reasonStyles = map[string]lipgloss.Style{
		"completed": lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"aborted":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"timeout":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"error":     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}

	lc.helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	lc.tooSmallStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)
}

// UpdateSize recomputes pane sizes for the terminal size and current view
// mode.
func (lc *LayoutController) UpdateSize(width, height int) {
	m := lc.model

	lc.bodyHeight = height - HeaderHeight - lc.footerHeight()
	if lc.bodyHeight < 3 {
		lc.bodyHeight = 3
	}

	editorW, termW := viewmode.Render(m.view.Mode()).Widths(lc.contentWidth(width))
	// Pane borders take one cell on each side.
	inner := lc.bodyHeight - 2
	if editorW > 2 {
		m.editor.SetWidth(editorW - 2)
		m.editor.SetHeight(inner)
	}
	if termW > 2 {
		m.terminalView.Width = termW - 2
		m.terminalView.Height = inner
	}
	m.argsInput.Width = SidebarWidth - 16
	m.help.Width = width
}

func (lc *LayoutController) contentWidth(width int) int {
	if lc.model.view.SidebarOpen() {
		width -= SidebarWidth
	}
	if width < 0 {
		return 0
	}
	return width
}

func (lc *LayoutController) footerHeight() int {
	if lc.model.help.ShowAll {
		return lipgloss.Height(lc.model.help.View(lc.model.keys))
	}
	return FooterHeight
}

// Render draws the whole screen.
func (lc *LayoutController) Render() string {
	m := lc.model
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.width < MinTerminalWidth || m.height < MinTerminalHeight {
		return lc.tooSmallStyle.Render(fmt.Sprintf("%s (%dx%d, need %dx%d)",
			ErrTerminalTooSmall, m.width, m.height, MinTerminalWidth, MinTerminalHeight))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lc.RenderHeader(),
		lc.RenderBody(),
		lc.RenderFooter(),
	)
}

// RenderHeader renders the title bar and the rule under it.
func (lc *LayoutController) RenderHeader() string {
	m := lc.model

	title := "runbox"
	if m.version != "" {
		title += " " + m.version
	}
	if m.ctrl.Embedded() {
		title += " (embedded)"
	}

	var status string
	switch {
	case m.status.IsNotifying():
		status = m.status.Text()
	case m.ctrl.Running():
		status = lc.runningStyle.Render("● " + StatusRunning)
	case m.lastReason != "":
		style, ok := lc.reasonStyles[m.lastReason]
		if !ok {
			style = lc.dimStyle
		}
		status = style.Render(m.status.Text())
	default:
		status = m.status.Text()
	}

	left := lc.headerStyle.Render(title)
	right := fmt.Sprintf("%s │ %s │ %s ", m.language(), viewmode.Render(m.view.Mode()).Class, status)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	line := left + strings.Repeat(" ", gap) + right

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().MaxWidth(m.width).Render(line),
		lc.ruleStyle.Render(strings.Repeat("─", m.width)),
	)
}

// RenderBody renders the visible panes and, when open, the settings
// sidebar.
func (lc *LayoutController) RenderBody() string {
	m := lc.model
	layout := viewmode.Render(m.view.Mode())
	editorW, termW := layout.Widths(lc.contentWidth(m.width))

	var panes []string
	if layout.ShowEditor && editorW > 2 {
		panes = append(panes, lc.pane(m.editor.View(), editorW, m.focus == focusEditor))
	}
	if layout.ShowTerminal && termW > 2 {
		panes = append(panes, lc.pane(m.terminalView.View(), termW, m.focus == focusTerminal))
	}
	if m.view.SidebarOpen() {
		panes = append(panes, lc.RenderSidebar())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, panes...)
}

func (lc *LayoutController) pane(content string, width int, focused bool) string {
	style := lc.paneStyle
	if focused {
		style = lc.focusedStyle
	}
	return style.
		Width(width - 2).
		Height(lc.bodyHeight - 2).
		MaxHeight(lc.bodyHeight).
		Render(content)
}

// RenderSidebar renders the settings panel: compiler options, language,
// program arguments and the recent message log.
func (lc *LayoutController) RenderSidebar() string {
	m := lc.model
	focused := m.focus == focusSidebar
	// Left border plus padding.
	inner := SidebarWidth - 3

	var b strings.Builder
	b.WriteString(lc.cursorStyle.Render("Settings"))
	b.WriteString("\n\n")

	row := func(i int, text string) {
		marker := "  "
		if focused && m.sidebarRow == i {
			marker = lc.cursorStyle.Render("▸ ")
		}
		b.WriteString(marker + text + "\n")
	}

	for i, ctl := range m.panel.Controls() {
		token, on := ctl.Token()
		switch ctl.Kind() {
		case flags.KindSelect:
			row(i, fmt.Sprintf("%-8s ‹ %s ›", ctl.Name(), token))
		default:
			mark := "[ ]"
			if on {
				mark = "[x]"
			}
			row(i, fmt.Sprintf("%s %-8s %s", mark, ctl.Name(), lc.dimStyle.Render(toggleValue(ctl))))
		}
	}

	b.WriteString("\n")
	row(m.languageRow(), fmt.Sprintf("%-8s ‹ %s ›", "language", m.language()))
	row(m.argsRow(), "args     "+m.argsInput.View())

	b.WriteString("\n")
	b.WriteString(lc.dimStyle.Render("flags: " + strings.Join(m.panel.Collect(), " ")))
	b.WriteString("\n\n")
	b.WriteString(lc.cursorStyle.Render("Messages"))
	b.WriteString("\n")
	b.WriteString(lc.dimStyle.Render(m.messages.Format(5, inner)))

	return lc.sidebarStyle.
		Width(SidebarWidth - 1).
		Height(lc.bodyHeight).
		MaxHeight(lc.bodyHeight).
		Render(b.String())
}

// toggleValue shows the flag a toggle adds even while unchecked.
func toggleValue(ctl flags.Control) string {
	if t, ok := ctl.(*flags.Toggle); ok {
		return t.Value
	}
	tok, _ := ctl.Token()
	return tok
}

// RenderFooter renders the help bar.
func (lc *LayoutController) RenderFooter() string {
	m := lc.model
	return lc.helpStyle.Render(m.help.View(m.keys))
}
