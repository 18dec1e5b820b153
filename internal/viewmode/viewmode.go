// Package viewmode holds the layout state of the client: which of the
// editor and terminal panes are visible, and whether the settings sidebar
// is open.
package viewmode

import (
	"sync"
	"time"

	"github.com/standardbeagle/runbox/pkg/events"
)

type ViewMode int

const (
	Split ViewMode = iota
	CodeOnly
	TermOnly
)

func (m ViewMode) String() string {
	switch m {
	case CodeOnly:
		return "code-only"
	case TermOnly:
		return "term-only"
	default:
		return "split"
	}
}

// DefaultResizeDelay lets the pane transition settle before the editor
// re-measures itself.
const DefaultResizeDelay = 300 * time.Millisecond

// Scheduler runs f once after d. time.AfterFunc satisfies it.
type Scheduler func(d time.Duration, f func())

// Options configure a Machine. Zero values are usable.
type Options struct {
	ResizeDelay time.Duration
	Schedule    Scheduler
	// OnResize is called after every transition, once the delay elapsed.
	OnResize func()
	EventBus *events.EventBus
}

// Machine owns the current ViewMode and the sidebar state.
type Machine struct {
	mu          sync.RWMutex
	mode        ViewMode
	sidebarOpen bool

	delay    time.Duration
	schedule Scheduler
	onResize func()
	bus      *events.EventBus
}

func New(opts Options) *Machine {
	if opts.ResizeDelay <= 0 {
		opts.ResizeDelay = DefaultResizeDelay
	}
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Machine{
		mode:     Split,
		delay:    opts.ResizeDelay,
		schedule: opts.Schedule,
		onResize: opts.OnResize,
		bus:      opts.EventBus,
	}
}

func (m *Machine) Mode() ViewMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Machine) SidebarOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sidebarOpen
}

func (m *Machine) ShowEditorPane()    { m.transition(CodeOnly) }
func (m *Machine) ShowSplitView()     { m.transition(Split) }
func (m *Machine) ForceTerminalOnly() { m.transition(TermOnly) }

// ToggleSettings opens or closes the settings sidebar and returns the new
// state.
func (m *Machine) ToggleSettings() bool {
	m.mu.Lock()
	m.sidebarOpen = !m.sidebarOpen
	open := m.sidebarOpen
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Type: events.SidebarToggled,
		Data: map[string]interface{}{"open": open},
	})
	m.scheduleResize()
	return open
}

// transition does not skip re-entering the current mode; the resize is
// harmless and the event lets observers re-render.
func (m *Machine) transition(to ViewMode) {
	m.mu.Lock()
	from := m.mode
	m.mode = to
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Type: events.ViewChanged,
		Data: map[string]interface{}{
			"from": from.String(),
			"mode": to.String(),
		},
	})
	m.scheduleResize()
}

func (m *Machine) scheduleResize() {
	m.schedule(m.delay, func() {
		if m.onResize != nil {
			m.onResize()
		}
		m.bus.Publish(events.Event{Type: events.EditorResize})
	})
}

// Layout is the visual projection of a ViewMode.
type Layout struct {
	Class        string
	ShowEditor   bool
	ShowTerminal bool
	// EditorShare is the fraction of the content width given to the editor.
	EditorShare float64
}

// Render maps a mode to its layout. It has no side effects.
func Render(mode ViewMode) Layout {
	switch mode {
	case CodeOnly:
		return Layout{Class: mode.String(), ShowEditor: true, EditorShare: 1}
	case TermOnly:
		return Layout{Class: mode.String(), ShowTerminal: true, EditorShare: 0}
	default:
		return Layout{Class: Split.String(), ShowEditor: true, ShowTerminal: true, EditorShare: 0.5}
	}
}

// Widths splits width between the visible panes. Hidden panes get zero.
func (l Layout) Widths(width int) (editor, terminal int) {
	if width < 0 {
		width = 0
	}
	switch {
	case l.ShowEditor && l.ShowTerminal:
		editor = int(float64(width) * l.EditorShare)
		return editor, width - editor
	case l.ShowEditor:
		return width, 0
	case l.ShowTerminal:
		return 0, width
	}
	return 0, 0
}
