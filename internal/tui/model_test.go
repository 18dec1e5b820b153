package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/runbox/internal/channel"
	"github.com/standardbeagle/runbox/internal/channel/channeltest"
	"github.com/standardbeagle/runbox/internal/config"
	runkeys "github.com/standardbeagle/runbox/internal/keys"
	"github.com/standardbeagle/runbox/internal/session"
	"github.com/standardbeagle/runbox/internal/tui/system"
	"github.com/standardbeagle/runbox/internal/viewmode"
	"github.com/standardbeagle/runbox/internal/workspace"
	"github.com/standardbeagle/runbox/pkg/events"
)

type testModelOptions struct {
	cfg      *config.Config
	source   *workspace.Source
	bus      *events.EventBus
	platform runkeys.Platform
}

func createTestModel(t *testing.T, opts testModelOptions) (*Model, *channeltest.Opener) {
	t.Helper()
	opener := channeltest.NewOpener()
	m := NewModel(Options{
		Context:  context.Background(),
		Config:   opts.cfg,
		Opener:   opener,
		Source:   opts.source,
		EventBus: opts.bus,
		Platform: opts.platform,
		Version:  "test",
	})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m, opener
}

// drain feeds queued background messages through Update.
func drain(m *Model) {
	for {
		select {
		case msg := <-m.updateChan:
			m.Update(msg)
		default:
			return
		}
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func press(m *Model, msg tea.KeyMsg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func waitForChannel(t *testing.T, opener *channeltest.Opener) *channeltest.Channel {
	t.Helper()
	require.Eventually(t, func() bool {
		ch := opener.Last()
		return ch != nil && len(ch.Sent()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	return opener.Last()
}

func TestRunKeySendsEditorContent(t *testing.T) {
	m, opener := createTestModel(t, testModelOptions{
		cfg: &config.Config{RuntimeArgs: strPtr("--count 3")},
	})
	m.editor.SetValue("int main(){return 0;}")

	press(m, tea.KeyMsg{Type: tea.KeyF5})

	ch := waitForChannel(t, opener)
	sent := ch.Sent()[0]
	assert.Equal(t, session.RunEvent, sent.Event)
	assert.Equal(t, session.RunRequest{
		Code:     "int main(){return 0;}",
		Language: "c",
		Flags:    []string{"-std=c17", "-O0", "-Wall"},
		Args:     "--count 3",
	}, sent.Payload)
	assert.False(t, m.state.RunEnabled(), "run affordance is disabled while running")

	ch.Output("hello\n")
	ch.Disconnect(channel.ReasonCompleted)
	drain(m)

	assert.True(t, m.state.RunEnabled())
	assert.Contains(t, m.terminalView.View(), "hello")
}

func TestSecondRunKeyIgnoredWhileRunning(t *testing.T) {
	m, opener := createTestModel(t, testModelOptions{})

	press(m, tea.KeyMsg{Type: tea.KeyF5})
	waitForChannel(t, opener)

	press(m, tea.KeyMsg{Type: tea.KeyF5})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, opener.Count())
}

func TestAbortKeyClosesChannel(t *testing.T) {
	m, opener := createTestModel(t, testModelOptions{})

	press(m, tea.KeyMsg{Type: tea.KeyF5})
	ch := waitForChannel(t, opener)

	cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlK})
	assert.NotNil(t, cmd)

	closed, reason := ch.Closed()
	assert.True(t, closed)
	assert.Equal(t, channel.ReasonAborted, reason)
	assert.False(t, m.ctrl.Running())
	assert.Contains(t, m.term.String(), "[run aborted]")
}

func TestEmbeddedRunForcesTerminalOnly(t *testing.T) {
	m, opener := createTestModel(t, testModelOptions{
		cfg: &config.Config{Embedded: boolPtr(true)},
	})
	require.Equal(t, viewmode.Split, m.view.Mode())

	press(m, tea.KeyMsg{Type: tea.KeyF5})
	waitForChannel(t, opener)

	assert.Equal(t, viewmode.TermOnly, m.view.Mode())
}

func TestNonEmbeddedRunKeepsView(t *testing.T) {
	m, opener := createTestModel(t, testModelOptions{})

	press(m, tea.KeyMsg{Type: tea.KeyF5})
	waitForChannel(t, opener)

	assert.Equal(t, viewmode.Split, m.view.Mode())
}

func TestRunFailureShowsStatus(t *testing.T) {
	m, opener := createTestModel(t, testModelOptions{})
	opener.Err = errors.New("connection refused")

	press(m, tea.KeyMsg{Type: tea.KeyF5})

	require.Eventually(t, func() bool {
		drain(m)
		return strings.Contains(m.status.Text(), "connection refused")
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.state.RunEnabled())
}

func TestRunFinishedUpdatesStatusAndLog(t *testing.T) {
	m, _ := createTestModel(t, testModelOptions{})

	m.updateChan <- runFinishedMsg{runID: "r1", reason: "timeout"}
	drain(m)

	assert.Equal(t, "timeout", m.lastReason)
	assert.Equal(t, "timeout", m.status.Text())
	msgs := m.messages.Recent(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "warning", msgs[0].Level)
	assert.Equal(t, "run", msgs[0].Context)
}

func TestBusEventsReachModel(t *testing.T) {
	bus := events.NewEventBus()
	t.Cleanup(bus.Shutdown)
	m, _ := createTestModel(t, testModelOptions{bus: bus})
	m.Init()

	bus.Publish(events.Event{
		Type: events.SystemMessage,
		Data: map[string]interface{}{"level": "error", "context": "server", "message": "backend unreachable"},
	})

	require.Eventually(t, func() bool {
		drain(m)
		return m.messages.Count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "backend unreachable", m.messages.Recent(1)[0].Message)
}

func TestSourceReloadReplacesEditor(t *testing.T) {
	m, _ := createTestModel(t, testModelOptions{})

	m.updateChan <- sourceReloadedMsg{text: "int x;"}
	drain(m)

	assert.Equal(t, "int x;", m.editor.Value())
	assert.Equal(t, "int x;", m.state.Text())
}

func TestSourceReloadKeepsUnsavedEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.c")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))
	src, err := workspace.Open(path, nil)
	require.NoError(t, err)

	m, _ := createTestModel(t, testModelOptions{source: src})
	m.editor.SetValue("my edits")

	m.updateChan <- sourceReloadedMsg{text: "from another editor"}
	drain(m)

	assert.Equal(t, "my edits", m.editor.Value())
	assert.Equal(t, MsgSourceChangedOnDisk, m.status.Text())
	assert.Equal(t, system.LevelWarning, m.messages.Recent(1)[0].Level)

	// Back in sync with the disk once the user takes the disk version.
	m.editor.SetValue("from another editor")
	m.updateChan <- sourceReloadedMsg{text: "third"}
	drain(m)
	assert.Equal(t, "third", m.editor.Value())
}

func TestReloadAfterSaveApplies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.c")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))
	src, err := workspace.Open(path, nil)
	require.NoError(t, err)

	m, _ := createTestModel(t, testModelOptions{source: src})
	m.editor.SetValue("saved text")
	cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	m.Update(cmd())

	m.updateChan <- sourceReloadedMsg{text: "changed elsewhere"}
	drain(m)
	assert.Equal(t, "changed elsewhere", m.editor.Value())
}

func TestSaveWritesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.c")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))
	src, err := workspace.Open(path, nil)
	require.NoError(t, err)

	m, _ := createTestModel(t, testModelOptions{source: src})
	assert.Equal(t, "old", m.editor.Value())
	m.editor.SetValue("new text")

	cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	msg := cmd()
	saved, ok := msg.(savedMsg)
	require.True(t, ok)
	require.NoError(t, saved.err)
	m.Update(saved)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new text", string(data))
	assert.True(t, strings.HasPrefix(m.status.Text(), "saved "))
}

func TestSaveWithoutSource(t *testing.T) {
	m, _ := createTestModel(t, testModelOptions{})

	cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.NotNil(t, cmd)
	assert.Equal(t, MsgNoSourceFile, m.status.Text())
}

func TestQuitAbortsRun(t *testing.T) {
	m, opener := createTestModel(t, testModelOptions{})

	press(m, tea.KeyMsg{Type: tea.KeyF5})
	ch := waitForChannel(t, opener)

	cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	closed, _ := ch.Closed()
	assert.True(t, closed)
}

func TestFullViewURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://cfiddle.example/embed?id=3", "https://cfiddle.example/?id=3"},
		{"http://localhost:3000/embed", "http://localhost:3000/"},
		{"https://x/embed/embed", "https://x//embed"},
		{"https://x/page", "https://x/page"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FullViewURL(tt.in), tt.in)
	}
}
