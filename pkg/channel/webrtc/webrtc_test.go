package webrtc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/backkem/naisho/pkg/channel"
)

const testFingerprint = "6B:8B:F0:65:5F:78:E2:51:3B:AC:6F:F3:3F:46:1B:35:DC:B8:5F:64:1A:24:C2:43:F0:A1:58:D0:A1:2C:19:08"

func sdpWith(sessionAttrs, mediaAttrs string) string {
	return "v=0\r\n" +
		"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		sessionAttrs +
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		mediaAttrs
}

func TestExtractFingerprint(t *testing.T) {
	tests := []struct {
		name    string
		sdp     string
		want    string
		wantErr bool
	}{
		{
			name: "session level",
			sdp:  sdpWith("a=fingerprint:sha-256 "+testFingerprint+"\r\n", ""),
			want: testFingerprint,
		},
		{
			name: "media level",
			sdp:  sdpWith("", "a=mid:0\r\na=fingerprint:sha-256 "+testFingerprint+"\r\n"),
			want: testFingerprint,
		},
		{
			name: "lower case digest",
			sdp:  sdpWith("a=fingerprint:sha-256 "+strings.ToLower(testFingerprint)+"\r\n", ""),
			want: testFingerprint,
		},
		{
			name:    "other algorithm only",
			sdp:     sdpWith("a=fingerprint:sha-1 AA:BB\r\n", ""),
			wantErr: true,
		},
		{
			name:    "missing",
			sdp:     sdpWith("", "a=mid:0\r\n"),
			wantErr: true,
		},
		{
			name:    "not sdp",
			sdp:     "hello",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractFingerprint(tt.sdp)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractFingerprint() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractFingerprint() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractFingerprint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAcceptAnswerForeignChannel(t *testing.T) {
	p := NewProvider(ProviderConfig{ICEServers: []string{}})
	_, err := p.AcceptAnswer(context.Background(), foreignChannel{}, "v=0")
	if !errors.Is(err, channel.ErrUnknownChannel) {
		t.Errorf("AcceptAnswer error = %v, want ErrUnknownChannel", err)
	}
}

func TestCreateAnswerWithoutFingerprint(t *testing.T) {
	p := NewProvider(ProviderConfig{ICEServers: []string{}})
	_, _, err := p.CreateAnswer(context.Background(), sdpWith("", "a=mid:0\r\n"))
	if !errors.Is(err, ErrNoFingerprint) {
		t.Errorf("CreateAnswer error = %v, want ErrNoFingerprint", err)
	}
}

type foreignChannel struct{}

func (foreignChannel) OnStateChange(func(channel.ConnectionState)) {}
func (foreignChannel) OnMessage(func(string))                      {}
func (foreignChannel) Send(string) error                           { return nil }
func (foreignChannel) Close() error                                { return nil }

// TestLoopback connects two PeerConnections in one process using host
// candidates only.
func TestLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping WebRTC loopback in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := NewProvider(ProviderConfig{ICEServers: []string{}})

	offerer, offer, err := p.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	defer offerer.Close()

	answerer, answer, err := p.CreateAnswer(ctx, offer.Description)
	if err != nil {
		t.Fatalf("CreateAnswer failed: %v", err)
	}
	defer answerer.Close()

	if offer.Fingerprint == "" || answer.Fingerprint == "" {
		t.Fatal("empty fingerprint")
	}
	if offer.Fingerprint == answer.Fingerprint {
		t.Error("both ends report the same fingerprint")
	}
	if answer.PeerFingerprint != offer.Fingerprint {
		t.Errorf("answer PeerFingerprint = %q, want %q", answer.PeerFingerprint, offer.Fingerprint)
	}

	connected := make(chan struct{}, 2)
	received := make(chan string, 1)
	for _, ch := range []channel.Channel{offerer, answerer} {
		ch.OnStateChange(func(s channel.ConnectionState) {
			if s == channel.ConnectionStateConnected {
				connected <- struct{}{}
			}
		})
	}
	answerer.OnMessage(func(m string) { received <- m })

	if err := offerer.Send("too early"); !errors.Is(err, channel.ErrNotConnected) {
		t.Errorf("Send before connect error = %v, want ErrNotConnected", err)
	}

	peerFP, err := p.AcceptAnswer(ctx, offerer, answer.Description)
	if err != nil {
		t.Fatalf("AcceptAnswer failed: %v", err)
	}
	if peerFP != answer.Fingerprint {
		t.Errorf("AcceptAnswer peer fingerprint = %q, want %q", peerFP, answer.Fingerprint)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-connected:
		case <-ctx.Done():
			t.Fatal("timed out waiting for connection")
		}
	}

	if err := offerer.Send(`{"type":"full","seq":1,"text":"hi"}`); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case m := <-received:
		if !strings.Contains(m, `"hi"`) {
			t.Errorf("received %q", m)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}
