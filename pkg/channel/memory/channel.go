package memory

import (
	"net"
	"sync"

	"github.com/backkem/naisho/pkg/channel"
)

// maxFrameSize bounds a single text frame.
const maxFrameSize = 1 << 20

// Channel is one end of an in-memory channel.
type Channel struct {
	id          string
	fingerprint string
	network     *Network

	mu      sync.Mutex
	state   channel.ConnectionState
	link    *link
	conn    net.Conn
	onState func(channel.ConnectionState)
	onMsg   func(string)
	closed  bool
}

var _ channel.Channel = (*Channel)(nil)

// ID returns the pair ID shared by both ends.
func (c *Channel) ID() string { return c.id }

// Fingerprint returns the local fingerprint.
func (c *Channel) Fingerprint() string { return c.fingerprint }

// State returns the current connection state.
func (c *Channel) State() channel.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange implements channel.Channel.
func (c *Channel) OnStateChange(f func(channel.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = f
}

// OnMessage implements channel.Channel.
func (c *Channel) OnMessage(f func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = f
}

// Send implements channel.Channel.
func (c *Channel) Send(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channel.ErrClosed
	}
	if c.state != channel.ConnectionStateConnected || c.link == nil {
		c.mu.Unlock()
		return channel.ErrNotConnected
	}
	l, conn := c.link, c.conn
	c.mu.Unlock()

	if err := l.write(conn, []byte(text)); err != nil {
		return channel.ErrNotConnected
	}
	return nil
}

// Close implements channel.Channel. The peer becomes disconnected.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.network.release(c)
	c.setState(channel.ConnectionStateClosed)
	return nil
}

func (c *Channel) attach(l *link, conn net.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	c.link = l
	c.conn = conn
	return nil
}

// setState records s and notifies the handler if the state changed.
// A closed channel only moves to ConnectionStateClosed.
func (c *Channel) setState(s channel.ConnectionState) {
	c.mu.Lock()
	if c.state == s || c.state == channel.ConnectionStateClosed {
		c.mu.Unlock()
		return
	}
	if c.closed && s != channel.ConnectionStateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	if s.Terminal() {
		c.link = nil
		c.conn = nil
	}
	f := c.onState
	c.mu.Unlock()

	if f != nil {
		f(s)
	}
}

func (c *Channel) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	buf := make([]byte, maxFrameSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frame := string(buf[:n])

		c.mu.Lock()
		f := c.onMsg
		c.mu.Unlock()
		if f != nil {
			f(frame)
		}
	}
}
