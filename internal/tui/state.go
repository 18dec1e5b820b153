package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// sharedState mirrors the inputs the session controller reads. The model
// writes it from Update; the controller reads it from whichever goroutine
// starts the run.
type sharedState struct {
	mu       sync.RWMutex
	text     string
	language string
	args     string

	runEnabled atomic.Bool
	notify     func(msg tea.Msg)
}

func newSharedState(notify func(msg tea.Msg)) *sharedState {
	s := &sharedState{notify: notify}
	s.runEnabled.Store(true)
	return s
}

func (s *sharedState) setText(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

func (s *sharedState) setLanguage(lang string) {
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()
}

func (s *sharedState) setArgs(args string) {
	s.mu.Lock()
	s.args = args
	s.mu.Unlock()
}

// Text implements session.Editor.
func (s *sharedState) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Language implements session.Inputs.
func (s *sharedState) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// Args implements session.Inputs.
func (s *sharedState) Args() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.args
}

// SetRunEnabled implements session.Affordance. It must not block.
func (s *sharedState) SetRunEnabled(enabled bool) {
	s.runEnabled.Store(enabled)
	if s.notify != nil {
		s.notify(runStateMsg{enabled: enabled})
	}
}

func (s *sharedState) RunEnabled() bool {
	return s.runEnabled.Load()
}
