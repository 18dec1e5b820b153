package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(c *Controller, t *time.Time) {
	c.now = func() time.Time { return *t }
}

func TestStateShownWithoutNotification(t *testing.T) {
	c := NewController("ready")
	assert.Equal(t, "ready", c.Text())
	assert.False(t, c.IsNotifying())

	c.SetState("running")
	assert.Equal(t, "running", c.Text())
	assert.Equal(t, "running", c.State())
}

func TestNotificationCoversStateUntilExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewController("ready")
	fixedClock(c, &now)

	cmd := c.Show("saved main.c")
	require.NotNil(t, cmd)
	assert.Equal(t, "saved main.c", c.Text())
	assert.True(t, c.IsNotifying())

	now = now.Add(4 * time.Second)
	assert.Equal(t, "ready", c.Text(), "expired notifications fall back to the state")
}

func TestClearOnlyMatchingNotification(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewController("ready")
	fixedClock(c, &now)

	c.Show("first")
	stale := ClearMsg{stamp: now}

	now = now.Add(time.Second)
	c.Show("second")

	assert.True(t, c.HandleMsg(stale))
	assert.Equal(t, "second", c.Text(), "older tick must not clear a newer notification")

	assert.True(t, c.HandleMsg(ClearMsg{stamp: now}))
	assert.Equal(t, "ready", c.Text())
}

func TestHandleMsgIgnoresOtherMessages(t *testing.T) {
	c := NewController("ready")
	assert.False(t, c.HandleMsg("something else"))
}

func TestSetDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewController("idle")
	fixedClock(c, &now)
	c.SetDuration(10 * time.Second)

	c.Show("hello")
	now = now.Add(5 * time.Second)
	assert.Equal(t, "hello", c.Text())
}
