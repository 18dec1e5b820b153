package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"pkt.systems/pslog"

	"github.com/standardbeagle/runbox/internal/channel"
	"github.com/standardbeagle/runbox/internal/config"
	"github.com/standardbeagle/runbox/internal/flags"
	runkeys "github.com/standardbeagle/runbox/internal/keys"
	"github.com/standardbeagle/runbox/internal/output"
	"github.com/standardbeagle/runbox/internal/session"
	"github.com/standardbeagle/runbox/internal/tui/notifications"
	"github.com/standardbeagle/runbox/internal/tui/system"
	"github.com/standardbeagle/runbox/internal/viewmode"
	"github.com/standardbeagle/runbox/internal/workspace"
	"github.com/standardbeagle/runbox/pkg/events"
)

type focusArea int

const (
	focusEditor focusArea = iota
	focusTerminal
	focusSidebar
)

func (f focusArea) String() string {
	switch f {
	case focusTerminal:
		return "terminal"
	case focusSidebar:
		return "settings"
	default:
		return "editor"
	}
}

// Options wire the model to the rest of the client.
type Options struct {
	Context  context.Context
	Config   *config.Config
	Opener   channel.Opener
	Panel    *flags.Panel
	Source   *workspace.Source
	EventBus *events.EventBus
	Platform runkeys.Platform
	Version  string
}

type Model struct {
	ctx     context.Context
	cfg     *config.Config
	bus     *events.EventBus
	source  *workspace.Source
	version string

	// diskText is the source text as last loaded or saved.
	diskText string

	ctrl       *session.Controller
	view       *viewmode.Machine
	dispatcher *runkeys.Dispatcher
	panel      *flags.Panel
	term       *output.Terminal
	state      *sharedState

	input  *InputController
	layout *LayoutController

	editor       textarea.Model
	terminalView viewport.Model
	argsInput    textinput.Model
	help         help.Model
	keys         keyMap

	languages  []string
	langIndex  int
	focus      focusArea
	sidebarRow int

	width  int
	height int

	status     *notifications.Controller
	messages   *system.Controller
	lastReason string
	runID      string

	updateChan chan tea.Msg
}

// Messages delivered through updateChan.
type outputMsg struct{}
type runStateMsg struct{ enabled bool }
type editorResizeMsg struct{}
type viewChangedMsg struct{}
type runStartedMsg struct{ runID string }
type runFinishedMsg struct {
	runID  string
	reason string
	err    string
}
type sourceReloadedMsg struct{ text string }
type runErrorMsg struct{ err error }
type systemMsg struct{}

// Messages returned by commands.
type savedMsg struct {
	text string
	err  error
}

func NewModel(opts Options) *Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	panel := opts.Panel
	if panel == nil {
		panel = flags.PanelFromConfig(cfg.GetFlagControls())
	}

	m := &Model{
		ctx:        ctx,
		cfg:        cfg,
		bus:        opts.EventBus,
		source:     opts.Source,
		version:    opts.Version,
		panel:      panel,
		languages:  cfg.GetLanguages(),
		help:       help.New(),
		keys:       newKeyMap(opts.Platform, cfg.GetEmbedded()),
		status:     notifications.NewController(StatusReady),
		messages:   system.NewController(MaxSystemMessages),
		updateChan: make(chan tea.Msg, UpdateChannelBufferSize),
	}
	m.state = newSharedState(m.trySend)

	m.term = output.NewTerminal(TerminalMaxLines)
	m.term.SetNotify(func() { m.trySend(outputMsg{}) })

	m.view = viewmode.New(viewmode.Options{
		ResizeDelay: cfg.GetResizeDelay(),
		OnResize:    func() { m.trySend(editorResizeMsg{}) },
		EventBus:    opts.EventBus,
	})

	m.ctrl = session.NewController(session.Options{
		Opener:     opts.Opener,
		Terminal:   m.term,
		Editor:     m.state,
		Inputs:     m.state,
		Flags:      panel,
		Affordance: m.state,
		View:       m.view,
		Embedded:   cfg.GetEmbedded(),
		RunTimeout: cfg.GetRunTimeout(),
		EventBus:   opts.EventBus,
	})
	m.dispatcher = runkeys.NewDispatcher(opts.Platform, keyActions{m: m})

	m.editor = textarea.New()
	m.editor.ShowLineNumbers = true
	m.editor.CharLimit = 0
	m.editor.Placeholder = "// write some code, then press F5"
	if m.source != nil {
		m.diskText = m.source.Text()
		m.editor.SetValue(m.diskText)
	}
	m.editor.Focus()

	m.terminalView = viewport.New(0, 0)

	m.argsInput = textinput.New()
	m.argsInput.Prompt = ""
	m.argsInput.Placeholder = "program arguments"
	m.argsInput.SetValue(cfg.GetRuntimeArgs())

	for i, lang := range m.languages {
		if lang == cfg.GetLanguage() {
			m.langIndex = i
		}
	}

	m.syncState()
	m.input = NewInputController(m)
	m.layout = NewLayoutController(m)
	return m
}

// Controller exposes the session controller, mainly for tests and the
// quit path.
func (m *Model) Controller() *session.Controller { return m.ctrl }

// ViewMachine exposes the view mode machine.
func (m *Model) ViewMachine() *viewmode.Machine { return m.view }

func (m *Model) Init() tea.Cmd {
	m.bus.Subscribe(events.RunStarted, func(e events.Event) {
		m.send(runStartedMsg{runID: e.RunID})
	})
	m.bus.Subscribe(events.RunFinished, func(e events.Event) {
		m.send(runFinishedMsg{runID: e.RunID, reason: e.String("reason"), err: e.String("error")})
	})
	m.bus.Subscribe(events.ViewChanged, func(e events.Event) {
		m.send(viewChangedMsg{})
	})
	m.bus.Subscribe(events.SidebarToggled, func(e events.Event) {
		m.send(viewChangedMsg{})
	})
	m.bus.Subscribe(events.SourceReloaded, func(e events.Event) {
		m.send(sourceReloadedMsg{text: e.String("text")})
	})
	m.bus.Subscribe(events.SystemMessage, func(e events.Event) {
		level := e.String("level")
		if level == "" {
			level = system.LevelInfo
		}
		m.messages.AddMessage(level, e.String("context"), e.String("message"))
		m.trySend(systemMsg{})
	})

	return tea.Batch(
		textarea.Blink,
		m.waitForUpdates(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	fromChan := true

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		fromChan = false
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()

	case tea.KeyMsg:
		fromChan = false
		model, cmd, handled := m.input.HandleKeyMsg(msg)
		m.syncState()
		if handled {
			return model, cmd
		}

	case notifications.ClearMsg:
		fromChan = false
		m.status.HandleMsg(msg)

	case outputMsg:
		m.refreshTerminal()

	case runStateMsg:
		if msg.enabled {
			m.status.SetState(StatusReady)
		} else {
			m.status.SetState(StatusRunning)
		}

	case runStartedMsg:
		m.runID = msg.runID
		m.lastReason = ""

	case runFinishedMsg:
		m.lastReason = msg.reason
		state := msg.reason
		if msg.err != "" {
			state = fmt.Sprintf("%s: %s", msg.reason, msg.err)
		}
		m.status.SetState(state)
		m.messages.AddMessage(levelForReason(msg.reason), "run", state)
		m.refreshTerminal()

	case viewChangedMsg:
		m.syncFocus()
		m.updateSizes()

	case editorResizeMsg:
		m.updateSizes()

	case sourceReloadedMsg:
		edited := m.editor.Value() != m.diskText
		m.diskText = msg.text
		switch {
		case msg.text == m.editor.Value():
		case edited:
			// Unsaved edits win; saving overwrites the file.
			cmds = append(cmds, m.notify(system.LevelWarning, "source", MsgSourceChangedOnDisk))
		default:
			m.editor.SetValue(msg.text)
			m.syncState()
			cmds = append(cmds, m.notify(system.LevelInfo, "source", "reloaded "+m.sourceName()))
		}

	case runErrorMsg:
		cmds = append(cmds, m.notify(system.LevelError, "run", "run failed: "+msg.err.Error()))

	case systemMsg:

	case savedMsg:
		fromChan = false
		if msg.err != nil {
			pslog.Ctx(m.ctx).Warn("save failed", "err", msg.err)
			cmds = append(cmds, m.notify(system.LevelError, "source", "save failed: "+msg.err.Error()))
		} else {
			m.diskText = msg.text
			cmds = append(cmds, m.notify(system.LevelSuccess, "source", "saved "+m.sourceName()))
		}

	default:
		fromChan = false
	}

	if fromChan {
		cmds = append(cmds, m.waitForUpdates())
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	return m.layout.Render()
}

// keyActions binds the shortcut dispatcher to the model.
type keyActions struct{ m *Model }

func (a keyActions) RunTrigger()     { a.m.triggerRun() }
func (a keyActions) ToggleSettings() { a.m.toggleSettings() }
func (a keyActions) ShowEditor()     { a.m.view.ShowEditorPane() }

// triggerRun starts the run off the update loop; opening a channel may
// block on the network.
func (m *Model) triggerRun() {
	m.syncState()
	SafeGoroutine("run", func() error {
		return m.ctrl.HandleRunTrigger(m.ctx)
	}, func(err error) {
		pslog.Ctx(m.ctx).Error("run trigger failed", "err", err)
		m.send(runErrorMsg{err: err})
	})
}

func (m *Model) toggleSettings() {
	if m.view.ToggleSettings() {
		m.focus = focusSidebar
		m.editor.Blur()
	} else if m.focus == focusSidebar {
		m.focus = focusEditor
	}
	m.syncFocus()
}

func (m *Model) abortRun() tea.Cmd {
	if m.ctrl.Abort() {
		return m.status.Show("aborting")
	}
	return nil
}

func (m *Model) saveCmd() tea.Cmd {
	if m.source == nil {
		return m.status.Show(MsgNoSourceFile)
	}
	src := m.source
	text := m.editor.Value()
	return func() tea.Msg {
		return savedMsg{text: text, err: src.Save(text)}
	}
}

// openFullView prints the non-embedded page address for the current
// snippet.
func (m *Model) openFullView() tea.Cmd {
	if !m.cfg.GetEmbedded() {
		return m.status.Show(MsgFullViewUnavailable)
	}
	url := FullViewURL(m.cfg.GetPageURL())
	_, _ = m.term.WriteString("\r\nopen in full view: " + url + "\r\n")
	return m.notify(system.LevelInfo, "view", "full view: "+url)
}

// FullViewURL turns an embedded page address into the full editor address.
func FullViewURL(pageURL string) string {
	return strings.Replace(pageURL, "/embed", "/", 1)
}

func (m *Model) cycleLanguage(delta int) {
	if len(m.languages) == 0 {
		return
	}
	m.langIndex = (m.langIndex + delta + len(m.languages)) % len(m.languages)
	m.syncState()
}

func (m *Model) language() string {
	if len(m.languages) == 0 {
		return ""
	}
	return m.languages[m.langIndex]
}

// syncState copies the editable inputs into the state the controller
// reads.
func (m *Model) syncState() {
	m.state.setText(m.editor.Value())
	m.state.setLanguage(m.language())
	m.state.setArgs(m.argsInput.Value())
}

// syncFocus moves focus off panes the current layout hides.
func (m *Model) syncFocus() {
	layout := viewmode.Render(m.view.Mode())
	sidebarOpen := m.view.SidebarOpen()

	switch {
	case m.focus == focusSidebar && !sidebarOpen:
		m.focus = focusEditor
	}
	if m.focus == focusEditor && !layout.ShowEditor {
		m.focus = focusTerminal
	}
	if m.focus == focusTerminal && !layout.ShowTerminal {
		m.focus = focusEditor
	}

	if m.focus == focusEditor {
		m.editor.Focus()
	} else {
		m.editor.Blur()
	}
	if m.focus == focusSidebar && m.sidebarRow == m.argsRow() {
		m.argsInput.Focus()
	} else {
		m.argsInput.Blur()
	}
}

// focusNext cycles through the visible panes.
func (m *Model) focusNext() {
	layout := viewmode.Render(m.view.Mode())
	order := []focusArea{}
	if layout.ShowEditor {
		order = append(order, focusEditor)
	}
	if layout.ShowTerminal {
		order = append(order, focusTerminal)
	}
	if m.view.SidebarOpen() {
		order = append(order, focusSidebar)
	}
	for i, f := range order {
		if f == m.focus {
			m.focus = order[(i+1)%len(order)]
			m.syncFocus()
			return
		}
	}
	if len(order) > 0 {
		m.focus = order[0]
	}
	m.syncFocus()
}

// Sidebar rows: one per flag control, then language, then arguments.
func (m *Model) languageRow() int { return m.panel.Len() }
func (m *Model) argsRow() int     { return m.panel.Len() + 1 }

func (m *Model) moveSidebar(delta int) {
	m.sidebarRow += delta
	if m.sidebarRow < 0 {
		m.sidebarRow = 0
	}
	if m.sidebarRow > m.argsRow() {
		m.sidebarRow = m.argsRow()
	}
	if m.sidebarRow < m.panel.Len() {
		m.panel.Move(m.sidebarRow - m.panel.Cursor())
	}
	m.syncFocus()
}

func (m *Model) activateSidebar() {
	switch {
	case m.sidebarRow < m.panel.Len():
		m.panel.Activate()
	case m.sidebarRow == m.languageRow():
		m.cycleLanguage(1)
	}
}

func (m *Model) updateSizes() {
	m.layout.UpdateSize(m.width, m.height)
}

func (m *Model) refreshTerminal() {
	atBottom := m.terminalView.AtBottom()
	m.terminalView.SetContent(m.term.String())
	if atBottom || m.ctrl.Running() {
		m.terminalView.GotoBottom()
	}
}

// notify shows text on the status line and records it in the message log.
func (m *Model) notify(level, context, text string) tea.Cmd {
	m.messages.AddMessage(level, context, text)
	return m.status.Show(text)
}

func levelForReason(reason string) string {
	switch channel.Reason(reason) {
	case channel.ReasonCompleted:
		return system.LevelSuccess
	case channel.ReasonAborted, channel.ReasonTimeout:
		return system.LevelWarning
	default:
		return system.LevelError
	}
}

func (m *Model) sourceName() string {
	if m.source == nil {
		return ""
	}
	return m.source.Path()
}

// trySend delivers a UI refresh without blocking. Dropped messages are
// harmless: the next one renders the same shared state.
func (m *Model) trySend(msg tea.Msg) {
	select {
	case m.updateChan <- msg:
	default:
	}
}

// send delivers msg unless the program is shutting down.
func (m *Model) send(msg tea.Msg) {
	select {
	case m.updateChan <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Model) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}
