package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// InputController routes keyboard input: global keys first, then the
// shortcut dispatcher, then whichever pane has focus.
type InputController struct {
	model *Model
}

func NewInputController(model *Model) *InputController {
	return &InputController{model: model}
}

// HandleKeyMsg processes keyboard input and returns whether it was handled
func (ic *InputController) HandleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	m := ic.model

	if key.Matches(msg, m.keys.Quit) {
		m.ctrl.Abort()
		return m, tea.Quit, true
	}

	// Chords behave the same in every pane.
	m.syncState()
	if m.dispatcher.Dispatch(ChordFromKeyMsg(msg)) {
		return m, nil, true
	}

	if model, cmd, handled := ic.handleGlobalKeys(msg); handled {
		return model, cmd, true
	}

	switch m.focus {
	case focusSidebar:
		return ic.handleSidebar(msg)
	case focusTerminal:
		var cmd tea.Cmd
		m.terminalView, cmd = m.terminalView.Update(msg)
		return m, cmd, true
	default:
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd, true
	}
}

func (ic *InputController) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	m := ic.model

	switch {
	case key.Matches(msg, m.keys.Run):
		m.triggerRun()
		return m, nil, true

	case key.Matches(msg, m.keys.Settings):
		m.toggleSettings()
		return m, nil, true

	case key.Matches(msg, m.keys.EditorPane):
		m.view.ShowEditorPane()
		return m, nil, true

	case key.Matches(msg, m.keys.SplitView):
		m.view.ShowSplitView()
		return m, nil, true

	case key.Matches(msg, m.keys.Abort):
		return m, m.abortRun(), true

	case key.Matches(msg, m.keys.Save):
		return m, m.saveCmd(), true

	case key.Matches(msg, m.keys.FocusNext):
		m.focusNext()
		return m, nil, true

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.updateSizes()
		return m, nil, true

	case key.Matches(msg, m.keys.OpenFullView) && m.focus == focusTerminal:
		// "o" is text everywhere else.
		return m, m.openFullView(), true
	}

	return m, nil, false
}

func (ic *InputController) handleSidebar(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	m := ic.model

	if m.sidebarRow == m.argsRow() {
		// Letters belong to the arguments field; only arrows navigate.
		switch msg.String() {
		case "up":
			m.moveSidebar(-1)
			return m, nil, true
		case "down", "enter":
			return m, nil, true
		}
		var cmd tea.Cmd
		m.argsInput, cmd = m.argsInput.Update(msg)
		return m, cmd, true
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveSidebar(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveSidebar(1)
	case key.Matches(msg, m.keys.Activate):
		m.activateSidebar()
	case m.sidebarRow == m.languageRow() && msg.String() == "left":
		m.cycleLanguage(-1)
	case m.sidebarRow == m.languageRow() && msg.String() == "right":
		m.cycleLanguage(1)
	case msg.String() == "esc":
		m.toggleSettings()
	}
	return m, nil, true
}
