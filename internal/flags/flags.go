// Package flags models the compiler option panel and collects the option
// tokens sent with a run.
package flags

import (
	"sync"

	"github.com/standardbeagle/runbox/internal/config"
)

// Kind distinguishes the two control styles.
type Kind int

const (
	KindSelect Kind = iota
	KindToggle
)

func (k Kind) String() string {
	if k == KindToggle {
		return "toggle"
	}
	return "select"
}

// Control is one entry of the panel.
type Control interface {
	Name() string
	Kind() Kind
	// Token returns the contributed option and whether it contributes.
	Token() (string, bool)
}

// Select always contributes its current value; it has no unchecked state.
type Select struct {
	Label   string
	Options []string
	Value   string
}

func (s *Select) Name() string { return s.Label }
func (s *Select) Kind() Kind   { return KindSelect }

func (s *Select) Token() (string, bool) {
	return s.Value, true
}

// next advances to the following option, wrapping around.
func (s *Select) next() {
	if len(s.Options) == 0 {
		return
	}
	for i, opt := range s.Options {
		if opt == s.Value {
			s.Value = s.Options[(i+1)%len(s.Options)]
			return
		}
	}
	s.Value = s.Options[0]
}

// Toggle contributes its value only while checked.
type Toggle struct {
	Label   string
	Value   string
	Checked bool
}

func (t *Toggle) Name() string { return t.Label }
func (t *Toggle) Kind() Kind   { return KindToggle }

func (t *Toggle) Token() (string, bool) {
	return t.Value, t.Checked
}

// Panel is the fixed, ordered set of controls plus a cursor used by the
// settings sidebar.
type Panel struct {
	mu       sync.RWMutex
	controls []Control
	cursor   int
}

func NewPanel(controls ...Control) *Panel {
	return &Panel{controls: controls}
}

// Collect returns the contributed tokens in panel order.
func (p *Panel) Collect() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.controls))
	for _, c := range p.controls {
		if tok, ok := c.Token(); ok {
			out = append(out, tok)
		}
	}
	return out
}

// Controls returns the panel's controls in order.
func (p *Panel) Controls() []Control {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Control, len(p.controls))
	copy(out, p.controls)
	return out
}

func (p *Panel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.controls)
}

func (p *Panel) Cursor() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

// Move shifts the cursor by delta, clamped to the panel.
func (p *Panel) Move(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.controls) == 0 {
		return
	}
	p.cursor += delta
	if p.cursor < 0 {
		p.cursor = 0
	}
	if p.cursor >= len(p.controls) {
		p.cursor = len(p.controls) - 1
	}
}

// Activate flips the toggle under the cursor or cycles the select.
func (p *Panel) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor >= len(p.controls) {
		return
	}
	switch c := p.controls[p.cursor].(type) {
	case *Toggle:
		c.Checked = !c.Checked
	case *Select:
		c.next()
	}
}

// DefaultPanel is used when the configuration defines no controls.
func DefaultPanel() *Panel {
	return NewPanel(
		&Select{Label: "std", Options: []string{"-std=c11", "-std=c17", "-std=c++17", "-std=c++20"}, Value: "-std=c17"},
		&Select{Label: "opt", Options: []string{"-O0", "-O1", "-O2", "-O3"}, Value: "-O0"},
		&Toggle{Label: "warnings", Value: "-Wall", Checked: true},
		&Toggle{Label: "extra", Value: "-Wextra"},
		&Toggle{Label: "debug", Value: "-g"},
		&Toggle{Label: "asan", Value: "-fsanitize=address"},
	)
}

// PanelFromConfig builds the panel from configured controls, falling back
// to DefaultPanel.
func PanelFromConfig(controls []config.FlagControl) *Panel {
	if len(controls) == 0 {
		return DefaultPanel()
	}
	out := make([]Control, 0, len(controls))
	for _, fc := range controls {
		switch fc.Kind {
		case "select":
			value := fc.Value
			if value == "" && len(fc.Options) > 0 {
				value = fc.Options[0]
			}
			out = append(out, &Select{
				Label:   fc.Name,
				Options: append([]string(nil), fc.Options...),
				Value:   value,
			})
		case "toggle":
			out = append(out, &Toggle{Label: fc.Name, Value: fc.Value, Checked: fc.Checked})
		}
	}
	return NewPanel(out...)
}
