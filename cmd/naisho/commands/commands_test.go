package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/backkem/naisho/pkg/channel"
	"github.com/backkem/naisho/pkg/channel/memory"
	"github.com/backkem/naisho/pkg/token"
)

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&app{newProvider: webrtcProvider})
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSASCommand(t *testing.T) {
	a, err := run(t, "sas", "AA:BB", "CC:DD")
	if err != nil {
		t.Fatalf("sas error = %v", err)
	}
	b, err := run(t, "sas", "CC:DD", "AA:BB")
	if err != nil {
		t.Fatalf("sas error = %v", err)
	}
	if a != b {
		t.Errorf("sas depends on argument order: %q vs %q", a, b)
	}
	if !regexp.MustCompile(`^\d{6} · (\S+ ){5}\S+\n$`).MatchString(a) {
		t.Errorf("sas output = %q", a)
	}

	if _, err := run(t, "sas", "only-one"); err == nil {
		t.Error("sas with one argument succeeded")
	}
}

func TestInspectCommand(t *testing.T) {
	offer := token.NewOffer("v=0", "AA:BB", token.DefaultPolicy(), time.Now())
	wire, err := token.Encode(offer)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out, err := run(t, "inspect", wire)
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	for _, want := range []string{"role:        initiator", "fingerprint: AA:BB", "status:      valid", "read-only:   true", "words:"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	stale := token.NewOffer("v=0", "AA:BB", token.DefaultPolicy(), time.Now().Add(-time.Hour))
	wire, err = token.Encode(stale)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err = run(t, "inspect", wire)
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	if !strings.Contains(out, "Invite token expired") {
		t.Errorf("inspect output for stale offer:\n%s", out)
	}

	if _, err := run(t, "inspect", "apple banana cherry dog elephant fig grape house"); err == nil {
		t.Error("inspect accepted display words")
	}
}

func TestWordsCommand(t *testing.T) {
	out, err := run(t, "words", "00ff10", "--count", "3")
	if err != nil {
		t.Fatalf("words error = %v", err)
	}
	if got := len(strings.Fields(out)); got != 3 {
		t.Errorf("words output = %q, want 3 words", out)
	}

	if _, err := run(t, "words", "zz"); err == nil {
		t.Error("words accepted invalid hex")
	}
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "naisho.toml")
	if err := os.WriteFile(path, []byte(`log_level = "loud"`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", path, "sas", "a", "b"); err == nil {
		t.Error("invalid config accepted")
	}
	if _, err := run(t, "--config", path, "--log-level", "info", "sas", "a", "b"); err == nil {
		t.Error("invalid config file accepted when a flag overrides the key")
	}
	if _, err := run(t, "--log-level", "loud", "sas", "a", "b"); err == nil {
		t.Error("invalid --log-level accepted")
	}
}

// terminal is one side of an interactive command.
type terminal struct {
	in   *io.PipeWriter
	out  *syncBuffer
	done chan error
}

func startTerminal(ctx context.Context, provider channel.Provider, args ...string) *terminal {
	inR, inW := io.Pipe()
	term := &terminal{in: inW, out: &syncBuffer{}, done: make(chan error, 1)}

	root := newRootCmd(&app{newProvider: func(*app) channel.Provider { return provider }})
	root.SetArgs(args)
	root.SetIn(inR)
	root.SetOut(term.out)
	root.SetErr(io.Discard)

	go func() { term.done <- root.ExecuteContext(ctx) }()
	return term
}

func (term *terminal) expect(t *testing.T, re *regexp.Regexp) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if m := re.FindStringSubmatch(term.out.String()); m != nil {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("output never matched %s:\n%s", re, term.out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (term *terminal) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(term.in, line+"\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}
}

func TestShareReceive(t *testing.T) {
	network := memory.NewNetwork(memory.NetworkConfig{})
	defer network.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sharer := startTerminal(ctx, network, "share", "--ttl", "1m")
	receiver := startTerminal(ctx, network, "receive")

	offer := sharer.expect(t, regexp.MustCompile(`Offer token: (\S+)\n`))[1]
	receiver.send(t, offer)

	answer := receiver.expect(t, regexp.MustCompile(`Answer token: (\S+)\n`))[1]
	sharer.send(t, answer)

	sasLine := regexp.MustCompile(`SAS: ([^\n]+)\n`)
	a := sharer.expect(t, sasLine)[1]
	b := receiver.expect(t, sasLine)[1]
	if a != b {
		t.Fatalf("SAS differs: %q vs %q", a, b)
	}

	sharer.send(t, "yes")
	receiver.send(t, "yes")
	sharer.expect(t, regexp.MustCompile(`Connected\.`))
	receiver.expect(t, regexp.MustCompile(`Connected\.`))

	sharer.send(t, "hello over the wire")
	receiver.expect(t, regexp.MustCompile(`--- 1\nhello over the wire\n`))

	decoded, err := token.DecodeOffer(offer)
	if err != nil {
		t.Fatalf("DecodeOffer() error = %v", err)
	}
	if decoded.Policy.TTLSeconds != 60 {
		t.Errorf("TTLSeconds = %d, want 60", decoded.Policy.TTLSeconds)
	}

	cancel()
	for name, term := range map[string]*terminal{"share": sharer, "receive": receiver} {
		select {
		case err := <-term.done:
			if err != nil {
				t.Errorf("%s returned %v", name, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s did not exit", name)
		}
	}
}

// pairTerminals runs share and receive up to the data phase.
func pairTerminals(t *testing.T, sharer, receiver *terminal) {
	t.Helper()
	receiver.send(t, sharer.expect(t, regexp.MustCompile(`Offer token: (\S+)\n`))[1])
	sharer.send(t, receiver.expect(t, regexp.MustCompile(`Answer token: (\S+)\n`))[1])
	sharer.expect(t, regexp.MustCompile(`SAS: `))
	receiver.expect(t, regexp.MustCompile(`SAS: `))
	sharer.send(t, "yes")
	receiver.send(t, "yes")
	sharer.expect(t, regexp.MustCompile(`Connected\.`))
	receiver.expect(t, regexp.MustCompile(`Connected\.`))
}

func TestShareFlushesOnEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "naisho.toml")
	if err := os.WriteFile(path, []byte(`debounce = "0s"`), 0o600); err != nil {
		t.Fatal(err)
	}

	network := memory.NewNetwork(memory.NetworkConfig{})
	defer network.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sharer := startTerminal(ctx, network, "--config", path, "share")
	receiver := startTerminal(ctx, network, "--config", path, "receive")
	pairTerminals(t, sharer, receiver)

	sharer.send(t, "last line")
	sharer.in.Close()

	select {
	case err := <-sharer.done:
		if err != nil {
			t.Fatalf("share returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("share did not exit")
	}
	receiver.expect(t, regexp.MustCompile(`--- 1\nlast line\n`))
}

func TestReceiveRejectsUnconfirmedSAS(t *testing.T) {
	network := memory.NewNetwork(memory.NetworkConfig{})
	defer network.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sharer := startTerminal(ctx, network, "share")
	receiver := startTerminal(ctx, network, "receive")

	receiver.send(t, sharer.expect(t, regexp.MustCompile(`Offer token: (\S+)\n`))[1])
	receiver.expect(t, regexp.MustCompile(`SAS: `))
	receiver.send(t, "no")

	select {
	case err := <-receiver.done:
		if err == nil || !strings.Contains(err.Error(), errNotConfirmed.Error()) {
			t.Fatalf("receive returned %v, want %v", err, errNotConfirmed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not exit")
	}
}
