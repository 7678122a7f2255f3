// Package channel defines the boundary between a pairing session and the
// transport that carries its data.
//
// A Provider creates channels from opaque offer/answer descriptions. The
// session never looks inside a description; it only copies it into a token.
// Each description comes with the fingerprint of the local end of the
// encrypted transport, which the session feeds into the SAS.
//
// Two providers exist: pkg/channel/webrtc for real peers and
// pkg/channel/memory for tests and demos inside one process.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// Errors.
var (
	ErrNotConnected   = errors.New("channel: not connected")
	ErrClosed         = errors.New("channel: closed")
	ErrUnknownChannel = errors.New("channel: unknown channel")
)

// ConnectionState is the transport state of a Channel.
type ConnectionState int

const (
	// ConnectionStateNew is the state before negotiation starts.
	ConnectionStateNew ConnectionState = iota

	// ConnectionStateConnecting indicates negotiation is in progress.
	ConnectionStateConnecting

	// ConnectionStateConnected indicates the data path is usable.
	ConnectionStateConnected

	// ConnectionStateDisconnected indicates connectivity was lost and may
	// come back.
	ConnectionStateDisconnected

	// ConnectionStateFailed indicates the transport gave up.
	ConnectionStateFailed

	// ConnectionStateClosed indicates the channel was closed.
	ConnectionStateClosed
)

// String returns the lower-case state name.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// Terminal reports whether s means the data path is gone.
func (s ConnectionState) Terminal() bool {
	return s == ConnectionStateDisconnected || s == ConnectionStateFailed || s == ConnectionStateClosed
}

// ParseConnectionState parses the name returned by String.
func ParseConnectionState(name string) (ConnectionState, error) {
	for s := ConnectionStateNew; s <= ConnectionStateClosed; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("channel: unknown connection state %q", name)
}

// Channel is a bidirectional text channel to the peer.
//
// Callbacks may run on provider goroutines. Registering a callback replaces
// the previous one.
type Channel interface {
	// OnStateChange registers a handler for connection state changes.
	OnStateChange(func(ConnectionState))

	// OnMessage registers a handler for inbound text frames.
	OnMessage(func(string))

	// Send sends one text frame. It returns ErrNotConnected until the
	// data path is open.
	Send(text string) error

	// Close releases the channel. Closing twice is a no-op.
	Close() error
}

// OfferResult is the local side of a newly offered channel.
type OfferResult struct {
	// Description is the opaque transport offer.
	Description string

	// Fingerprint identifies the local end of the encrypted transport.
	Fingerprint string
}

// AnswerResult is the local side of an answered channel.
type AnswerResult struct {
	// Description is the opaque transport answer.
	Description string

	// Fingerprint identifies the local end of the encrypted transport.
	Fingerprint string

	// PeerFingerprint identifies the remote end named by the consumed
	// transport offer.
	PeerFingerprint string
}

// Provider creates channels from offer/answer descriptions.
type Provider interface {
	// CreateOffer starts a channel as the offering side.
	CreateOffer(ctx context.Context) (Channel, OfferResult, error)

	// CreateAnswer joins the channel described by transportOffer.
	CreateAnswer(ctx context.Context, transportOffer string) (Channel, AnswerResult, error)

	// AcceptAnswer completes a channel returned by CreateOffer. It returns
	// the remote fingerprint named by transportAnswer.
	AcceptAnswer(ctx context.Context, ch Channel, transportAnswer string) (string, error)
}
