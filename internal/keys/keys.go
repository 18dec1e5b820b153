// Package keys maps global key chords onto client actions.
package keys

import (
	"runtime"
	"strings"
)

// Platform decides which modifier is the primary shortcut key.
type Platform int

const (
	Other Platform = iota
	Apple
)

func (p Platform) String() string {
	if p == Apple {
		return "apple"
	}
	return "other"
}

// DetectPlatform classifies the running system once at startup.
func DetectPlatform() Platform {
	return platformFor(runtime.GOOS)
}

func platformFor(goos string) Platform {
	switch goos {
	case "darwin", "ios":
		return Apple
	}
	return Other
}

// PrimaryName is the label shown in help text for the primary modifier.
func (p Platform) PrimaryName() string {
	if p == Apple {
		return "cmd"
	}
	return "ctrl"
}

// Chord is one key press with its modifiers. Key is lower case: a single
// character or a named key such as "enter".
type Chord struct {
	Key   string
	Shift bool
	Ctrl  bool
	Meta  bool
}

func (c Chord) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Meta {
		parts = append(parts, "meta")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}

// Actions are the operations the dispatcher can trigger.
type Actions interface {
	RunTrigger()
	ToggleSettings()
	ShowEditor()
}

type binding struct {
	chord  Chord
	action func(Actions)
}

// Dispatcher holds the platform-resolved shortcut table.
type Dispatcher struct {
	platform Platform
	actions  Actions
	bindings []binding
}

func NewDispatcher(platform Platform, actions Actions) *Dispatcher {
	primary := func(key string) Chord {
		if platform == Apple {
			return Chord{Key: key, Meta: true}
		}
		return Chord{Key: key, Ctrl: true}
	}
	return &Dispatcher{
		platform: platform,
		actions:  actions,
		bindings: []binding{
			{chord: Chord{Key: "enter", Shift: true}, action: Actions.RunTrigger},
			{chord: primary(","), action: Actions.ToggleSettings},
			{chord: primary("e"), action: Actions.ShowEditor},
		},
	}
}

func (d *Dispatcher) Platform() Platform { return d.platform }

// Dispatch runs the action bound to c and reports whether one matched.
// Matching stops at the first binding.
func (d *Dispatcher) Dispatch(c Chord) bool {
	c.Key = strings.ToLower(c.Key)
	for _, b := range d.bindings {
		if b.chord == c {
			b.action(d.actions)
			return true
		}
	}
	return false
}

// Bindings returns the resolved chords in match order, for help text.
func (d *Dispatcher) Bindings() []Chord {
	out := make([]Chord, len(d.bindings))
	for i, b := range d.bindings {
		out[i] = b.chord
	}
	return out
}
