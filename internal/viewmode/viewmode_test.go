package viewmode

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/runbox/pkg/events"
)

// manualScheduler records scheduled callbacks so tests can fire them.
type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (s *manualScheduler) schedule(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
}

func (s *manualScheduler) fireAll() {
	s.mu.Lock()
	funcs := s.funcs
	s.funcs = nil
	s.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

func TestInitialState(t *testing.T) {
	m := New(Options{})
	assert.Equal(t, Split, m.Mode())
	assert.False(t, m.SidebarOpen())
}

func TestTransitions(t *testing.T) {
	sched := &manualScheduler{}
	m := New(Options{Schedule: sched.schedule})

	m.ShowEditorPane()
	assert.Equal(t, CodeOnly, m.Mode())
	m.ForceTerminalOnly()
	assert.Equal(t, TermOnly, m.Mode())
	m.ShowSplitView()
	assert.Equal(t, Split, m.Mode())

	// Re-entering is allowed and still schedules a resize.
	m.ShowSplitView()
	assert.Equal(t, Split, m.Mode())
	assert.Len(t, sched.delays, 4)
}

func TestEveryTransitionSchedulesResize(t *testing.T) {
	sched := &manualScheduler{}
	resizes := 0
	m := New(Options{
		ResizeDelay: 120 * time.Millisecond,
		Schedule:    sched.schedule,
		OnResize:    func() { resizes++ },
	})

	m.ShowEditorPane()
	m.ToggleSettings()
	assert.Equal(t, 0, resizes, "resize is deferred")
	assert.Equal(t, []time.Duration{120 * time.Millisecond, 120 * time.Millisecond}, sched.delays)

	sched.fireAll()
	assert.Equal(t, 2, resizes)
}

func TestDefaultSchedulerFiresAfterDelay(t *testing.T) {
	done := make(chan struct{})
	m := New(Options{ResizeDelay: 10 * time.Millisecond, OnResize: func() { close(done) }})
	m.ShowEditorPane()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resize never fired")
	}
}

func TestToggleSettingsAlternates(t *testing.T) {
	m := New(Options{Schedule: func(time.Duration, func()) {}})
	assert.True(t, m.ToggleSettings())
	assert.True(t, m.SidebarOpen())
	assert.False(t, m.ToggleSettings())
	assert.False(t, m.SidebarOpen())
	assert.Equal(t, Split, m.Mode(), "sidebar does not change the view mode")
}

func TestTransitionsPublishEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Shutdown()

	var mu sync.Mutex
	var modes []string
	var sidebar []bool
	bus.Subscribe(events.ViewChanged, func(e events.Event) {
		mu.Lock()
		modes = append(modes, e.String("mode"))
		mu.Unlock()
	})
	bus.Subscribe(events.SidebarToggled, func(e events.Event) {
		mu.Lock()
		sidebar = append(sidebar, e.Data["open"].(bool))
		mu.Unlock()
	})

	m := New(Options{EventBus: bus, Schedule: func(time.Duration, func()) {}})
	m.ForceTerminalOnly()
	m.ToggleSettings()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(modes) == 1 && len(sidebar) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"term-only"}, modes)
	assert.Equal(t, []bool{true}, sidebar)
}

func TestRender(t *testing.T) {
	tests := []struct {
		mode     ViewMode
		class    string
		editor   bool
		terminal bool
		widths   [2]int
	}{
		{mode: Split, class: "split", editor: true, terminal: true, widths: [2]int{50, 51}},
		{mode: CodeOnly, class: "code-only", editor: true, widths: [2]int{101, 0}},
		{mode: TermOnly, class: "term-only", terminal: true, widths: [2]int{0, 101}},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			l := Render(tt.mode)
			assert.Equal(t, tt.class, l.Class)
			assert.Equal(t, tt.class, tt.mode.String())
			assert.Equal(t, tt.editor, l.ShowEditor)
			assert.Equal(t, tt.terminal, l.ShowTerminal)

			e, term := l.Widths(101)
			assert.Equal(t, tt.widths, [2]int{e, term})
			assert.Equal(t, l, Render(tt.mode), "pure")
		})
	}
}

func TestWidthsNegative(t *testing.T) {
	e, term := Render(Split).Widths(-3)
	assert.Equal(t, 0, e)
	assert.Equal(t, 0, term)

	e, term = Layout{}.Widths(80)
	assert.Equal(t, 0, e+term)
}
