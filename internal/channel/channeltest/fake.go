// Package channeltest provides an in-memory session channel for tests.
package channeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/standardbeagle/runbox/internal/channel"
)

// Message is one Send call recorded by a fake channel.
type Message struct {
	Event   string
	Payload any
}

// Opener hands out fake channels and remembers every one it opened.
type Opener struct {
	mu       sync.Mutex
	channels []*Channel

	// Err, when set, makes Open fail.
	Err error
	// SendErr, when set, makes Send on new channels fail.
	SendErr error
	// DisconnectOnOpen fires the disconnect notification from inside Open.
	DisconnectOnOpen channel.Reason
}

func NewOpener() *Opener {
	return &Opener{}
}

func (o *Opener) Open(ctx context.Context, h channel.Handlers) (channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	if o.Err != nil {
		err := o.Err
		o.mu.Unlock()
		return nil, err
	}
	c := &Channel{
		id:      fmt.Sprintf("fake-%d", len(o.channels)+1),
		h:       h,
		sendErr: o.SendErr,
	}
	o.channels = append(o.channels, c)
	early := o.DisconnectOnOpen
	o.mu.Unlock()

	if early != "" {
		c.Disconnect(early)
	}
	return c, nil
}

// Count returns how many channels were opened.
func (o *Opener) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.channels)
}

// Last returns the most recently opened channel, or nil.
func (o *Opener) Last() *Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.channels) == 0 {
		return nil
	}
	return o.channels[len(o.channels)-1]
}

// Channels returns every opened channel in order.
func (o *Opener) Channels() []*Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Channel, len(o.channels))
	copy(out, o.channels)
	return out
}

// Channel is a fake session channel driven by the test.
type Channel struct {
	id      string
	h       channel.Handlers
	sendErr error

	mu           sync.Mutex
	sent         []Message
	closed       bool
	closeReason  channel.Reason
	disconnected bool
	notified     int
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, Message{Event: event, Payload: payload})
	return nil
}

// Close records the reason and disconnects synchronously.
func (c *Channel) Close(reason channel.Reason) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.closeReason = reason
	}
	c.mu.Unlock()
	c.Disconnect(reason)
	return nil
}

// Output pushes a chunk of program output to the handlers.
func (c *Channel) Output(chunk string) {
	if c.h.OnOutput != nil {
		c.h.OnOutput([]byte(chunk))
	}
}

// Disconnect simulates the backend ending the session. Only the first call
// notifies.
func (c *Channel) Disconnect(reason channel.Reason) {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	c.closed = true
	c.notified++
	c.mu.Unlock()
	if c.h.OnDisconnect != nil {
		c.h.OnDisconnect(reason)
	}
}

// Sent returns the recorded Send calls.
func (c *Channel) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// Closed reports whether Close was called and with which reason.
func (c *Channel) Closed() (bool, channel.Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason != "", c.closeReason
}

// Notifications returns how many disconnect notifications were delivered.
func (c *Channel) Notifications() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notified
}
