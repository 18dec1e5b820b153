package tui

// UI Layout Constants
const (
	// Terminal size constraints
	MinTerminalWidth  = 40
	MinTerminalHeight = 10

	// Chrome around the panes
	HeaderHeight = 2
	FooterHeight = 1

	// Settings sidebar
	SidebarWidth = 34

	// Lines kept by the terminal pane
	TerminalMaxLines = 5000

	// Entries kept in the sidebar message log
	MaxSystemMessages = 50

	// Update channel buffer size
	UpdateChannelBufferSize = 100
)

// Status messages
const (
	StatusReady            = "ready"
	StatusRunning          = "running"
	ErrTerminalTooSmall    = "Terminal too small"
	MsgNoSourceFile        = "no source file: start with --file to save"
	MsgFullViewUnavailable = "open in full view is only available when embedded"
	MsgSourceChangedOnDisk = "file changed on disk; ctrl+s keeps your edits"
)
