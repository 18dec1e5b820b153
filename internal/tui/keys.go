package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	runkeys "github.com/standardbeagle/runbox/internal/keys"
)

type keyMap struct {
	Run          key.Binding
	RunChord     key.Binding
	Settings     key.Binding
	EditorPane   key.Binding
	SplitView    key.Binding
	Abort        key.Binding
	Save         key.Binding
	FocusNext    key.Binding
	OpenFullView key.Binding
	Up           key.Binding
	Down         key.Binding
	Activate     key.Binding
	Help         key.Binding
	Quit         key.Binding
}

// newKeyMap builds the bindings. The chord bindings are only used for help
// text; chords are matched by the dispatcher.
func newKeyMap(platform runkeys.Platform, embedded bool) keyMap {
	primary := platform.PrimaryName()
	km := keyMap{
		Run: key.NewBinding(
			key.WithKeys("f5"),
			key.WithHelp("f5", "run"),
		),
		RunChord: key.NewBinding(
			key.WithKeys("shift+enter"),
			key.WithHelp("shift+enter", "run"),
		),
		Settings: key.NewBinding(
			key.WithKeys("f2"),
			key.WithHelp("f2/"+primary+"+,", "settings"),
		),
		EditorPane: key.NewBinding(
			key.WithKeys("f3"),
			key.WithHelp("f3/"+primary+"+e", "edit"),
		),
		SplitView: key.NewBinding(
			key.WithKeys("f4"),
			key.WithHelp("f4", "split"),
		),
		Abort: key.NewBinding(
			key.WithKeys("ctrl+k"),
			key.WithHelp("ctrl+k", "abort"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save"),
		),
		FocusNext: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "focus"),
		),
		OpenFullView: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open full view"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Activate: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter/space", "toggle"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
	km.OpenFullView.SetEnabled(embedded)
	return km
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.Settings, k.EditorPane, k.SplitView, k.Abort, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Run, k.RunChord, k.Abort, k.Save},
		{k.Settings, k.EditorPane, k.SplitView, k.OpenFullView},
		{k.FocusNext, k.Up, k.Down, k.Activate},
		{k.Help, k.Quit},
	}
}

// ChordFromKeyMsg converts a bubbletea key event into a dispatcher chord.
// Alt is reported as the meta modifier, which is how terminals deliver the
// command key when they forward it at all.
func ChordFromKeyMsg(msg tea.KeyMsg) runkeys.Chord {
	s := msg.String()
	var c runkeys.Chord
	for {
		switch {
		case strings.HasPrefix(s, "ctrl+") && len(s) > len("ctrl+"):
			c.Ctrl = true
			s = s[len("ctrl+"):]
		case strings.HasPrefix(s, "alt+") && len(s) > len("alt+"):
			c.Meta = true
			s = s[len("alt+"):]
		case strings.HasPrefix(s, "shift+") && len(s) > len("shift+"):
			c.Shift = true
			s = s[len("shift+"):]
		default:
			if r, size := utf8.DecodeRuneInString(s); size == len(s) && unicode.IsUpper(r) {
				c.Shift = true
				s = string(unicode.ToLower(r))
			}
			c.Key = strings.ToLower(s)
			return c
		}
	}
}
