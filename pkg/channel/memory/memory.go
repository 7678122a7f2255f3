// Package memory provides an in-process channel.Provider.
//
// Both peers share one Network. An offer registers a pending channel; an
// answer attaches to it by ID; accepting the answer links the two ends with
// a pion/transport virtual bridge that a background goroutine ticks. No real
// sockets are used, so sessions can be tested end to end deterministically.
//
// The descriptions look like "memory-offer:<id>:<fingerprint>" and
// "memory-answer:<id>:<fingerprint>". They are opaque to the session.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/backkem/naisho/pkg/channel"
)

const (
	offerPrefix  = "memory-offer"
	answerPrefix = "memory-answer"

	fingerprintSize = 32
)

// NetworkCondition configures frame loss and duplication.
type NetworkCondition struct {
	// DropRate is the probability of dropping a frame (0.0 - 1.0).
	DropRate float64

	// DuplicateRate is the probability of sending a frame twice (0.0 - 1.0).
	DuplicateRate float64
}

// NetworkConfig configures a Network.
type NetworkConfig struct {
	// ProcessInterval is how often linked bridges deliver frames.
	// Default: 1ms
	ProcessInterval time.Duration

	// Condition applies to every linked pair.
	Condition NetworkCondition

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Network is a set of in-memory channels that can reach each other.
type Network struct {
	processInterval time.Duration
	condition       NetworkCondition
	log             logging.LeveledLogger

	mu      sync.Mutex
	offers  map[string]*Channel
	answers map[string]*Channel
	links   map[string]*link
}

var _ channel.Provider = (*Network)(nil)

// NewNetwork creates an empty Network.
func NewNetwork(config NetworkConfig) *Network {
	n := &Network{
		processInterval: config.ProcessInterval,
		condition:       config.Condition,
		offers:          make(map[string]*Channel),
		answers:         make(map[string]*Channel),
		links:           make(map[string]*link),
	}
	if n.processInterval <= 0 {
		n.processInterval = time.Millisecond
	}
	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("channel-memory")
	}
	return n
}

// CreateOffer implements channel.Provider.
func (n *Network) CreateOffer(ctx context.Context) (channel.Channel, channel.OfferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, channel.OfferResult{}, err
	}
	fp, err := newFingerprint()
	if err != nil {
		return nil, channel.OfferResult{}, err
	}

	ch := n.newChannel(uuid.NewString(), fp)

	n.mu.Lock()
	n.offers[ch.id] = ch
	n.mu.Unlock()

	n.debugf("offer %s created", ch.id)
	return ch, channel.OfferResult{
		Description: formatDescription(offerPrefix, ch.id, fp),
		Fingerprint: fp,
	}, nil
}

// CreateAnswer implements channel.Provider.
func (n *Network) CreateAnswer(ctx context.Context, transportOffer string) (channel.Channel, channel.AnswerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, channel.AnswerResult{}, err
	}
	id, peerFP, err := parseDescription(offerPrefix, transportOffer)
	if err != nil {
		return nil, channel.AnswerResult{}, err
	}
	fp, err := newFingerprint()
	if err != nil {
		return nil, channel.AnswerResult{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	offerer, ok := n.offers[id]
	if !ok {
		return nil, channel.AnswerResult{}, fmt.Errorf("%w: no offer %s", channel.ErrUnknownChannel, id)
	}
	if offerer.fingerprint != peerFP {
		return nil, channel.AnswerResult{}, fmt.Errorf("memory: offer fingerprint mismatch for %s", id)
	}
	if _, ok := n.answers[id]; ok {
		return nil, channel.AnswerResult{}, fmt.Errorf("memory: offer %s already answered", id)
	}

	ch := n.newChannel(id, fp)
	n.answers[id] = ch

	n.debugf("answer for %s created", id)
	return ch, channel.AnswerResult{
		Description:     formatDescription(answerPrefix, id, fp),
		Fingerprint:     fp,
		PeerFingerprint: peerFP,
	}, nil
}

// AcceptAnswer implements channel.Provider. It links both ends and drives
// them through connecting to connected.
func (n *Network) AcceptAnswer(ctx context.Context, ch channel.Channel, transportAnswer string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offerer, ok := ch.(*Channel)
	if !ok || offerer.network != n {
		return "", fmt.Errorf("%w: not a channel of this network", channel.ErrUnknownChannel)
	}
	id, fp, err := parseDescription(answerPrefix, transportAnswer)
	if err != nil {
		return "", err
	}

	n.mu.Lock()
	answerer, ok := n.answers[id]
	switch {
	case !ok || n.offers[id] != offerer:
		n.mu.Unlock()
		return "", fmt.Errorf("%w: answer does not match offer %s", channel.ErrUnknownChannel, offerer.id)
	case answerer.fingerprint != fp:
		n.mu.Unlock()
		return "", fmt.Errorf("memory: answer fingerprint mismatch for %s", id)
	case n.links[id] != nil:
		n.mu.Unlock()
		return "", fmt.Errorf("memory: offer %s already accepted", id)
	}
	l := newLink(n.processInterval, n.condition)
	n.links[id] = l
	n.mu.Unlock()

	if err := offerer.attach(l, l.bridge.GetConn0()); err != nil {
		n.unlink(id)
		return "", err
	}
	if err := answerer.attach(l, l.bridge.GetConn1()); err != nil {
		n.unlink(id)
		return "", err
	}

	for _, c := range []*Channel{offerer, answerer} {
		c.setState(channel.ConnectionStateConnecting)
	}
	for _, c := range []*Channel{offerer, answerer} {
		c.setState(channel.ConnectionStateConnected)
		go c.readLoop()
	}

	n.debugf("link %s up", id)
	return fp, nil
}

// Drop simulates losing the transport of the pair with the given ID. Both
// ends become disconnected.
func (n *Network) Drop(id string) error {
	n.mu.Lock()
	l := n.links[id]
	offerer, answerer := n.offers[id], n.answers[id]
	n.mu.Unlock()

	if l == nil {
		return fmt.Errorf("%w: no link %s", channel.ErrUnknownChannel, id)
	}

	n.unlink(id)
	offerer.setState(channel.ConnectionStateDisconnected)
	answerer.setState(channel.ConnectionStateDisconnected)
	n.debugf("link %s dropped", id)
	return nil
}

// DropAll drops every linked pair.
func (n *Network) DropAll() {
	for _, id := range n.Links() {
		_ = n.Drop(id)
	}
}

// Links returns the IDs of the linked pairs.
func (n *Network) Links() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]string, 0, len(n.links))
	for id := range n.links {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every link.
func (n *Network) Close() error {
	for _, id := range n.Links() {
		n.unlink(id)
	}
	return nil
}

func (n *Network) newChannel(id, fp string) *Channel {
	return &Channel{
		id:          id,
		fingerprint: fp,
		network:     n,
		state:       channel.ConnectionStateNew,
	}
}

func (n *Network) unlink(id string) {
	n.mu.Lock()
	l := n.links[id]
	delete(n.links, id)
	n.mu.Unlock()

	if l != nil {
		l.close()
	}
}

// release forgets a closed channel and notifies its peer.
func (n *Network) release(c *Channel) {
	n.mu.Lock()
	var peer *Channel
	if n.offers[c.id] == c {
		peer = n.answers[c.id]
		delete(n.offers, c.id)
	}
	if n.answers[c.id] == c {
		peer = n.offers[c.id]
		delete(n.answers, c.id)
	}
	linked := n.links[c.id] != nil
	n.mu.Unlock()

	n.unlink(c.id)

	if linked && peer != nil {
		peer.setState(channel.ConnectionStateDisconnected)
	}
}

func (n *Network) debugf(format string, args ...interface{}) {
	if n.log != nil {
		n.log.Debugf(format, args...)
	}
}

func formatDescription(prefix, id, fp string) string {
	return prefix + ":" + id + ":" + fp
}

func parseDescription(prefix, desc string) (id, fp string, err error) {
	parts := strings.SplitN(strings.TrimSpace(desc), ":", 3)
	if len(parts) != 3 || parts[0] != prefix || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("memory: malformed %s description", prefix)
	}
	return parts[1], parts[2], nil
}

// newFingerprint returns 32 random bytes in "AB:CD:..." form.
func newFingerprint() (string, error) {
	var b [fingerprintSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("memory: fingerprint: %w", err)
	}
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString(b[i : i+1]))
	}
	return strings.Join(parts, ":"), nil
}
