// Package system keeps the short log of client messages shown in the
// settings sidebar: run outcomes, saves, reloads and errors.
package system

import (
	"fmt"
	"strings"
	"sync"
)

// Controller stores messages most recent first. It is safe for concurrent
// use; messages arrive from event bus workers.
type Controller struct {
	mu          sync.RWMutex
	messages    []Message
	maxMessages int
}

func NewController(maxMessages int) *Controller {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Controller{
		messages:    make([]Message, 0, maxMessages),
		maxMessages: maxMessages,
	}
}

// AddMessage records a message, dropping the oldest past the limit.
func (c *Controller) AddMessage(level, context, message string) {
	msg := NewMessage(level, context, message)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]Message{msg}, c.messages...)
	if len(c.messages) > c.maxMessages {
		c.messages = c.messages[:c.maxMessages]
	}
}

func (c *Controller) Clear() {
	c.mu.Lock()
	c.messages = c.messages[:0]
	c.mu.Unlock()
}

func (c *Controller) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Recent returns up to n messages, most recent first.
func (c *Controller) Recent(n int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.messages) || n < 0 {
		n = len(c.messages)
	}
	out := make([]Message, n)
	copy(out, c.messages[:n])
	return out
}

// Format renders up to n messages, one per line, cut to width.
func (c *Controller) Format(n, width int) string {
	msgs := c.Recent(n)
	if len(msgs) == 0 {
		return "no messages"
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		line := fmt.Sprintf("%s %s %s: %s",
			msg.Timestamp.Format("15:04:05"),
			GetIcon(msg.Level),
			msg.Context,
			msg.Message,
		)
		b.WriteString(truncate(line, width))
	}
	return b.String()
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
