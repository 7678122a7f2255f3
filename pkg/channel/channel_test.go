package channel

import "testing"

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		want     string
		terminal bool
	}{
		{ConnectionStateNew, "new", false},
		{ConnectionStateConnecting, "connecting", false},
		{ConnectionStateConnected, "connected", false},
		{ConnectionStateDisconnected, "disconnected", true},
		{ConnectionStateFailed, "failed", true},
		{ConnectionStateClosed, "closed", true},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
		parsed, err := ParseConnectionState(tt.want)
		if err != nil {
			t.Errorf("ParseConnectionState(%q) failed: %v", tt.want, err)
		}
		if parsed != tt.state {
			t.Errorf("ParseConnectionState(%q) = %v, want %v", tt.want, parsed, tt.state)
		}
	}

	if got := ConnectionState(42).String(); got != "ConnectionState(42)" {
		t.Errorf("unknown String() = %q", got)
	}
	if _, err := ParseConnectionState("checking"); err == nil {
		t.Error("ParseConnectionState accepted unknown name")
	}
}
