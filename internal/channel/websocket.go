package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultWebSocketPath = "/run"

// Frame is the JSON envelope used by the websocket transport in both
// directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketOpener opens a plain websocket per run and exchanges JSON frames.
type WebSocketOpener struct {
	opts   Options
	dialer websocket.Dialer
}

func NewWebSocketOpener(opts Options) *WebSocketOpener {
	if opts.Path == "" {
		opts.Path = defaultWebSocketPath
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebSocketOpener{
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: timeout},
	}
}

// Endpoint returns the websocket URL derived from the server URL and path.
func (o *WebSocketOpener) Endpoint() (string, error) {
	u, err := url.Parse(o.opts.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(o.opts.Path, "/")
	return u.String(), nil
}

type webSocketChannel struct {
	id      string
	conn    *websocket.Conn
	n       *notifier
	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func (o *WebSocketOpener) Open(ctx context.Context, h Handlers) (Channel, error) {
	endpoint, err := o.Endpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := o.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &webSocketChannel{
		id:   "ws-" + uuid.NewString(),
		conn: conn,
		n:    newNotifier(h),
	}
	go c.readLoop()
	return c, nil
}

func (c *webSocketChannel) readLoop() {
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			verdict := ReasonError
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				verdict = ReasonCompleted
			}
			c.shutdown()
			c.n.fire(verdict)
			return
		}
		switch frame.Event {
		case EventData:
			c.n.output(decodeChunk(frame.Data))
		case EventExit:
			c.n.markExited()
		}
	}
}

// decodeChunk accepts a JSON string or any other JSON value as output text.
func decodeChunk(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return []byte(raw)
}

func (c *webSocketChannel) ID() string { return c.id }

func (c *webSocketChannel) Send(event string, payload any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(Frame{Event: event, Data: data}); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *webSocketChannel) Close(reason Reason) error {
	c.n.request(reason)

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	// The read loop observes the close and fires the notification.
	c.shutdown()
	return nil
}

func (c *webSocketChannel) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}
