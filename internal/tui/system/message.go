package system

import (
	"time"
)

// Message is one entry of the message log.
type Message struct {
	Timestamp time.Time
	Level     string // "error", "warning", "info", "success"
	Message   string
	Context   string // where the message originated, e.g. "run", "source"
}

const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
	LevelSuccess = "success"
)

func NewMessage(level, context, message string) Message {
	return Message{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Context:   context,
	}
}

// GetIcon returns a single-cell marker for the level.
func GetIcon(level string) string {
	switch level {
	case LevelError:
		return "✗"
	case LevelWarning:
		return "!"
	case LevelSuccess:
		return "✓"
	case LevelInfo:
		return "i"
	default:
		return "•"
	}
}
