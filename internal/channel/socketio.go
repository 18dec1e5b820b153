package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

const defaultSocketIOPath = "/socket.io/"

// socket.io disconnect reason sent when the server ends the session.
const serverDisconnect = "io server disconnect"

// SocketIOOpener opens one socket.io connection per run.
type SocketIOOpener struct {
	opts Options
}

func NewSocketIOOpener(opts Options) *SocketIOOpener {
	if opts.Path == "" {
		opts.Path = defaultSocketIOPath
	}
	return &SocketIOOpener{opts: opts}
}

type socketIOChannel struct {
	id     string
	sock   *socket.Socket
	n      *notifier
	mu     sync.Mutex
	closed bool
}

// Open connects to the backend. Connection is asynchronous: emits issued
// before the handshake completes are buffered by the socket.
func (o *SocketIOOpener) Open(ctx context.Context, h Handlers) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := socket.DefaultOptions()
	opts.SetPath(o.opts.Path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))

	sock, err := socket.Connect(o.opts.ServerURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &socketIOChannel{
		id:   fmt.Sprintf("sio-%d", time.Now().UnixNano()),
		sock: sock,
		n:    newNotifier(h),
	}

	sock.On(types.EventName("connect"), func(args ...any) {
		c.mu.Lock()
		c.id = string(sock.Id())
		c.mu.Unlock()
	})

	sock.On(types.EventName(EventData), func(args ...any) {
		for _, arg := range args {
			c.n.output(chunkBytes(arg))
		}
	})

	sock.On(types.EventName(EventExit), func(args ...any) {
		c.n.markExited()
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		verdict := ReasonError
		if reason == serverDisconnect {
			verdict = ReasonCompleted
		}
		c.shutdown()
		c.n.fire(verdict)
	})

	// The client would keep retrying a failed handshake; a run has no
	// reconnect story, so a connect error ends the channel.
	sock.On(types.EventName("connect_error"), func(args ...any) {
		c.n.request(ReasonError)
		c.shutdown()
		c.n.fire(ReasonError)
	})

	return c, nil
}

func (c *socketIOChannel) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *socketIOChannel) Send(event string, payload any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := toWireMap(payload)
	if err != nil {
		return err
	}
	c.sock.Emit(event, data)
	return nil
}

func (c *socketIOChannel) Close(reason Reason) error {
	c.n.request(reason)
	wasConnected := c.sock.Connected()
	c.shutdown()
	// Disconnecting a socket that never connected emits no "disconnect".
	if !wasConnected {
		c.n.fire(reason)
	}
	return nil
}

func (c *socketIOChannel) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.sock.Disconnect()
}

// toWireMap turns a payload struct into the generic map the socket.io
// parser serializes.
func toWireMap(payload any) (map[string]interface{}, error) {
	if m, ok := payload.(map[string]interface{}); ok {
		return m, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("payload must encode as an object: %w", err)
	}
	return out, nil
}
