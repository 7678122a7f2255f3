package webrtc

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/backkem/naisho/pkg/channel"
)

// Channel is a PeerConnection with its text data channel.
//
// It reports ConnectionStateConnected only once the peer connection is
// connected and the data channel is open, so Send works as soon as the
// session sees the connected state.
type Channel struct {
	pc  *webrtc.PeerConnection
	log logging.LeveledLogger

	mu       sync.Mutex
	dc       *webrtc.DataChannel
	pcState  webrtc.PeerConnectionState
	dcOpen   bool
	reported channel.ConnectionState
	onState  func(channel.ConnectionState)
	onMsg    func(string)
	closed   bool
}

var _ channel.Channel = (*Channel)(nil)

func newChannel(pc *webrtc.PeerConnection, log logging.LeveledLogger) *Channel {
	c := &Channel{
		pc:       pc,
		log:      log,
		pcState:  webrtc.PeerConnectionStateNew,
		reported: channel.ConnectionStateNew,
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.mu.Lock()
		c.pcState = s
		c.mu.Unlock()
		if c.log != nil {
			c.log.Debugf("peer connection state %s", s)
		}
		c.update()
	})
	return c
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
	closed, dc, open := c.closed, c.dc, c.dcOpen
	c.mu.Unlock()

	switch {
	case closed:
		return channel.ErrClosed
	case dc == nil || !open:
		return channel.ErrNotConnected
	}
	return dc.SendText(text)
}

// Close implements channel.Channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.pc.Close()
	c.update()
	return err
}

func (c *Channel) bindDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		c.dcOpen = true
		c.mu.Unlock()
		c.update()
	})
	dc.OnClose(func() {
		c.mu.Lock()
		c.dcOpen = false
		c.mu.Unlock()
		c.update()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		c.mu.Lock()
		f := c.onMsg
		c.mu.Unlock()
		if f != nil {
			f(string(msg.Data))
		}
	})
}

// update recomputes the reported state and notifies on change.
func (c *Channel) update() {
	c.mu.Lock()
	s := c.effectiveState()
	if s == c.reported {
		c.mu.Unlock()
		return
	}
	c.reported = s
	f := c.onState
	c.mu.Unlock()

	if f != nil {
		f(s)
	}
}

func (c *Channel) effectiveState() channel.ConnectionState {
	if c.closed {
		return channel.ConnectionStateClosed
	}
	switch c.pcState {
	case webrtc.PeerConnectionStateConnecting:
		return channel.ConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		if c.dcOpen {
			return channel.ConnectionStateConnected
		}
		return channel.ConnectionStateConnecting
	case webrtc.PeerConnectionStateDisconnected:
		return channel.ConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return channel.ConnectionStateFailed
	case webrtc.PeerConnectionStateClosed:
		return channel.ConnectionStateClosed
	default:
		return channel.ConnectionStateNew
	}
}
