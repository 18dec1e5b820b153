// Package notifications drives the status line: a sticky run state with
// short-lived messages shown over it.
package notifications

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Controller manages the status line. The zero value is not usable; use
// NewController.
type Controller struct {
	state            string
	message          string
	notificationTime time.Time
	duration         time.Duration
	now              func() time.Time
}

func NewController(initialState string) *Controller {
	return &Controller{
		state:    initialState,
		duration: 3 * time.Second,
		now:      time.Now,
	}
}

// SetDuration sets how long a notification stays over the state.
func (c *Controller) SetDuration(d time.Duration) {
	c.duration = d
}

// SetState replaces the sticky state, e.g. "running" or "completed".
func (c *Controller) SetState(state string) {
	c.state = state
}

func (c *Controller) State() string { return c.state }

// Show displays message until the duration elapses and returns the command
// that clears it.
func (c *Controller) Show(message string) tea.Cmd {
	c.message = message
	c.notificationTime = c.now()
	stamp := c.notificationTime

	return tea.Tick(c.duration, func(time.Time) tea.Msg {
		return ClearMsg{stamp: stamp}
	})
}

// HandleMsg clears the notification its ClearMsg was issued for. Newer
// notifications survive older clear ticks.
func (c *Controller) HandleMsg(msg tea.Msg) bool {
	cm, ok := msg.(ClearMsg)
	if !ok {
		return false
	}
	if cm.stamp.Equal(c.notificationTime) {
		c.message = ""
		c.notificationTime = time.Time{}
	}
	return true
}

// Text is what the status line shows right now.
func (c *Controller) Text() string {
	if c.message != "" && c.now().Sub(c.notificationTime) <= c.duration {
		return c.message
	}
	return c.state
}

// IsNotifying reports whether a notification is covering the state.
func (c *Controller) IsNotifying() bool {
	return c.message != "" && c.now().Sub(c.notificationTime) <= c.duration
}

// ClearMsg is delivered by the tick returned from Show.
type ClearMsg struct {
	stamp time.Time
}
