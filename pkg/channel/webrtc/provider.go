// Package webrtc implements channel.Provider on pion/webrtc.
//
// Each channel is one PeerConnection carrying a single ordered data channel
// labelled "txt". Descriptions are complete SDP blobs: ICE gathering is
// finished before a description is returned, because there is no signaling
// path for trickled candidates once a token has been pasted.
//
// The fingerprint reported for a description is the DTLS certificate
// fingerprint from its a=fingerprint attribute.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/backkem/naisho/pkg/channel"
)

// DataChannelLabel is the label of the text data channel.
const DataChannelLabel = "txt"

// DefaultGatherTimeout bounds ICE gathering for one description.
const DefaultGatherTimeout = 10 * time.Second

// DefaultICEServers is used when ProviderConfig.ICEServers is nil.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// Errors.
var (
	ErrGatherTimeout  = errors.New("webrtc: ICE gathering timed out")
	ErrNoFingerprint  = errors.New("webrtc: no sha-256 fingerprint in SDP")
	ErrForeignChannel = fmt.Errorf("%w: not a webrtc channel", channel.ErrUnknownChannel)
)

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// ICEServers are STUN/TURN URLs. Nil uses DefaultICEServers; an empty
	// non-nil slice uses host candidates only.
	ICEServers []string

	// GatherTimeout bounds ICE gathering.
	// Default: DefaultGatherTimeout
	GatherTimeout time.Duration

	// SettingEngine customizes the pion API (network types, timeouts).
	// Optional.
	SettingEngine *webrtc.SettingEngine

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Provider creates WebRTC channels.
type Provider struct {
	api           *webrtc.API
	config        webrtc.Configuration
	gatherTimeout time.Duration
	log           logging.LeveledLogger
}

var _ channel.Provider = (*Provider)(nil)

// NewProvider creates a Provider.
func NewProvider(config ProviderConfig) *Provider {
	servers := config.ICEServers
	if servers == nil {
		servers = DefaultICEServers
	}

	var iceServers []webrtc.ICEServer
	if len(servers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: servers}}
	}

	var opts []func(*webrtc.API)
	if config.SettingEngine != nil {
		opts = append(opts, webrtc.WithSettingEngine(*config.SettingEngine))
	}

	p := &Provider{
		api:           webrtc.NewAPI(opts...),
		config:        webrtc.Configuration{ICEServers: iceServers},
		gatherTimeout: config.GatherTimeout,
	}
	if p.gatherTimeout <= 0 {
		p.gatherTimeout = DefaultGatherTimeout
	}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("channel-webrtc")
	}
	return p
}

// CreateOffer implements channel.Provider.
func (p *Provider) CreateOffer(ctx context.Context) (channel.Channel, channel.OfferResult, error) {
	pc, err := p.api.NewPeerConnection(p.config)
	if err != nil {
		return nil, channel.OfferResult{}, fmt.Errorf("webrtc: new peer connection: %w", err)
	}
	c := newChannel(pc, p.log)

	ordered := true
	dc, err := pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = c.Close()
		return nil, channel.OfferResult{}, fmt.Errorf("webrtc: create data channel: %w", err)
	}
	c.bindDataChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = c.Close()
		return nil, channel.OfferResult{}, fmt.Errorf("webrtc: create offer: %w", err)
	}
	sdp, fp, err := p.setLocal(ctx, pc, offer)
	if err != nil {
		_ = c.Close()
		return nil, channel.OfferResult{}, err
	}

	p.debugf("offer ready (%d bytes SDP)", len(sdp))
	return c, channel.OfferResult{Description: sdp, Fingerprint: fp}, nil
}

// CreateAnswer implements channel.Provider.
func (p *Provider) CreateAnswer(ctx context.Context, transportOffer string) (channel.Channel, channel.AnswerResult, error) {
	peerFP, err := ExtractFingerprint(transportOffer)
	if err != nil {
		return nil, channel.AnswerResult{}, err
	}
	pc, err := p.api.NewPeerConnection(p.config)
	if err != nil {
		return nil, channel.AnswerResult{}, fmt.Errorf("webrtc: new peer connection: %w", err)
	}
	c := newChannel(pc, p.log)

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			p.debugf("ignoring data channel %q", dc.Label())
			return
		}
		c.bindDataChannel(dc)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  transportOffer,
	}); err != nil {
		_ = c.Close()
		return nil, channel.AnswerResult{}, fmt.Errorf("webrtc: set remote offer: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = c.Close()
		return nil, channel.AnswerResult{}, fmt.Errorf("webrtc: create answer: %w", err)
	}
	sdp, fp, err := p.setLocal(ctx, pc, answer)
	if err != nil {
		_ = c.Close()
		return nil, channel.AnswerResult{}, err
	}

	p.debugf("answer ready (%d bytes SDP)", len(sdp))
	return c, channel.AnswerResult{Description: sdp, Fingerprint: fp, PeerFingerprint: peerFP}, nil
}

// AcceptAnswer implements channel.Provider.
func (p *Provider) AcceptAnswer(ctx context.Context, ch channel.Channel, transportAnswer string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, ok := ch.(*Channel)
	if !ok {
		return "", ErrForeignChannel
	}
	peerFP, err := ExtractFingerprint(transportAnswer)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  transportAnswer,
	}); err != nil {
		return "", fmt.Errorf("webrtc: set remote answer: %w", err)
	}
	return peerFP, nil
}

// setLocal applies desc and waits for ICE gathering to finish. It returns
// the final SDP and its fingerprint.
func (p *Provider) setLocal(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (string, string, error) {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return "", "", fmt.Errorf("webrtc: set local description: %w", err)
	}

	timer := time.NewTimer(p.gatherTimeout)
	defer timer.Stop()

	select {
	case <-gathered:
	case <-timer.C:
		return "", "", ErrGatherTimeout
	case <-ctx.Done():
		return "", "", ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		return "", "", errors.New("webrtc: no local description")
	}
	fp, err := ExtractFingerprint(local.SDP)
	if err != nil {
		return "", "", err
	}
	return local.SDP, fp, nil
}

func (p *Provider) debugf(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Debugf(format, args...)
	}
}
