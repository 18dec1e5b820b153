// Package channel provides the session channel a run is sent over: open a
// connection to the execution backend, emit one typed request, stream output
// back and report exactly one disconnect.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Reason says why a session channel went away.
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonError     Reason = "error"
	ReasonTimeout   Reason = "timeout"
	ReasonAborted   Reason = "aborted"
)

func (r Reason) String() string { return string(r) }

// Inbound event names sent by the backend.
const (
	EventData = "data"
	EventExit = "exit"
)

// Transport names accepted by NewOpener.
const (
	TransportSocketIO  = "socketio"
	TransportWebSocket = "websocket"
)

var (
	ErrClosed           = errors.New("channel closed")
	ErrUnknownTransport = errors.New("unknown transport")
)

// Handlers receive the traffic of one channel. OnDisconnect is called exactly
// once per opened channel.
type Handlers struct {
	OnOutput     func(chunk []byte)
	OnDisconnect func(reason Reason)
}

// Channel is one open session to the backend.
type Channel interface {
	ID() string
	Send(event string, payload any) error
	// Close tears the channel down; the disconnect notification carries reason.
	Close(reason Reason) error
}

// Opener opens session channels.
type Opener interface {
	Open(ctx context.Context, h Handlers) (Channel, error)
}

// Options configure the built-in transports.
type Options struct {
	ServerURL      string
	Path           string
	Transport      string
	ConnectTimeout time.Duration
}

// NewOpener returns the opener for opts.Transport.
func NewOpener(opts Options) (Opener, error) {
	if strings.TrimSpace(opts.ServerURL) == "" {
		return nil, fmt.Errorf("server url is required")
	}
	switch strings.ToLower(opts.Transport) {
	case "", TransportSocketIO, "socket.io":
		return NewSocketIOOpener(opts), nil
	case TransportWebSocket, "ws":
		return NewWebSocketOpener(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, opts.Transport)
	}
}

// notifier enforces the once-per-channel disconnect contract shared by the
// transports and resolves which reason to report.
type notifier struct {
	once    sync.Once
	mu      sync.Mutex
	pending Reason
	exited  bool
	h       Handlers
}

func newNotifier(h Handlers) *notifier {
	return &notifier{h: h}
}

// request records a client-side close reason; the first one wins.
func (n *notifier) request(reason Reason) {
	n.mu.Lock()
	if n.pending == "" {
		n.pending = reason
	}
	n.mu.Unlock()
}

func (n *notifier) markExited() {
	n.mu.Lock()
	n.exited = true
	n.mu.Unlock()
}

// resolve picks the reported reason: a client close wins, then a backend
// exit, then the transport's own verdict.
func (n *notifier) resolve(transport Reason) Reason {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending != "" {
		return n.pending
	}
	if n.exited {
		return ReasonCompleted
	}
	return transport
}

func (n *notifier) output(chunk []byte) {
	if len(chunk) == 0 || n.h.OnOutput == nil {
		return
	}
	n.h.OnOutput(chunk)
}

func (n *notifier) fire(transport Reason) {
	n.once.Do(func() {
		if n.h.OnDisconnect != nil {
			n.h.OnDisconnect(n.resolve(transport))
		}
	})
}

// chunkBytes converts an inbound output argument to bytes.
func chunkBytes(arg any) []byte {
	switch v := arg.(type) {
	case nil:
		return nil
	case string:
		return []byte(v)
	case []byte:
		return v
	case interface{ Bytes() []byte }:
		return v.Bytes()
	case fmt.Stringer:
		return []byte(v.String())
	default:
		return []byte(fmt.Sprint(v))
	}
}
