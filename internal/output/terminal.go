// Package output holds the terminal pane's content: the byte stream of the
// running program split into lines.
package output

import (
	"strings"
	"sync"
)

const DefaultMaxLines = 5000

// Terminal is an append-only line buffer fed by the session channel. It
// keeps the trailing partial line open until a newline arrives. A bare
// carriage return rewinds the open line, which is what progress bars
// expect.
type Terminal struct {
	mu       sync.RWMutex
	lines    []string
	partial  strings.Builder
	rewound  bool
	maxLines int
	dropped  int
	notify   func()
}

func NewTerminal(maxLines int) *Terminal {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Terminal{
		lines:    make([]string, 0, 64),
		maxLines: maxLines,
	}
}

// SetNotify registers a callback run after every change, outside the lock.
func (t *Terminal) SetNotify(fn func()) {
	t.mu.Lock()
	t.notify = fn
	t.mu.Unlock()
}

// Reset clears the pane.
func (t *Terminal) Reset() {
	t.mu.Lock()
	t.lines = t.lines[:0]
	t.partial.Reset()
	t.rewound = false
	t.dropped = 0
	notify := t.notify
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Write appends program output. It never fails.
func (t *Terminal) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	t.mu.Lock()
	for _, r := range string(p) {
		switch r {
		case '\n':
			t.lines = append(t.lines, t.partial.String())
			t.partial.Reset()
			t.rewound = false
		case '\r':
			t.rewound = true
		default:
			if t.rewound {
				t.partial.Reset()
				t.rewound = false
			}
			t.partial.WriteRune(r)
		}
	}
	if over := len(t.lines) - t.maxLines; over > 0 {
		t.lines = append(t.lines[:0], t.lines[over:]...)
		t.dropped += over
	}
	notify := t.notify
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
	return len(p), nil
}

// WriteString is a convenience for banners and system messages.
func (t *Terminal) WriteString(s string) (int, error) {
	return t.Write([]byte(s))
}

// Lines returns the completed lines followed by the open line, if any.
func (t *Terminal) Lines() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.lines), len(t.lines)+1)
	copy(out, t.lines)
	if t.partial.Len() > 0 {
		out = append(out, t.partial.String())
	}
	return out
}

func (t *Terminal) String() string {
	return strings.Join(t.Lines(), "\n")
}

// Dropped reports how many lines were discarded to stay under the limit
// since the last Reset.
func (t *Terminal) Dropped() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dropped
}
