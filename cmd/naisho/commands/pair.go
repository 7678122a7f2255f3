package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/backkem/naisho/pkg/diceword"
	"github.com/backkem/naisho/pkg/session"
	"github.com/backkem/naisho/pkg/textsync"
	"github.com/backkem/naisho/pkg/token"
)

// maxLine bounds one pasted token.
const maxLine = 1 << 20

var errNotConfirmed = errors.New("SAS not confirmed")

// share: initiator side.
func shareCmd(a *app) *cobra.Command {
	var (
		ttl         time.Duration
		allowEdits  bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Start a pairing and send each input line as the shared text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("ttl") {
				a.cfg.TTL = ttl
			}
			if cmd.Flags().Changed("allow-edits") {
				a.cfg.PeerReadOnly = !allowEdits
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			p, err := newPairing(cmd, a, token.RoleInitiator, metricsAddr)
			if err != nil {
				return err
			}
			defer p.close()
			return ignoreCanceled(p.share(cmd.Context()))
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", token.DefaultTTL, "offer lifetime")
	cmd.Flags().BoolVar(&allowEdits, "allow-edits", false, "advertise that the peer may edit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// receive: responder side.
func receiveCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Answer a pairing and print the shared text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPairing(cmd, a, token.RoleResponder, metricsAddr)
			if err != nil {
				return err
			}
			defer p.close()
			return ignoreCanceled(p.receive(cmd.Context()))
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// pairing drives one session from a terminal.
type pairing struct {
	s        *session.Session
	out      io.Writer
	lines    chan string
	debounce time.Duration
	stop     func()
}

func newPairing(cmd *cobra.Command, a *app, role token.Role, metricsAddr string) (*pairing, error) {
	var metrics *session.Metrics
	stop := func() {}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = session.NewMetrics(reg)
		var err error
		if stop, err = serveMetrics(metricsAddr, reg); err != nil {
			return nil, err
		}
	}

	s, err := session.New(session.Config{
		Role:           role,
		Provider:       a.newProvider(a),
		Dictionary:     diceword.Default(),
		TTL:            a.cfg.TTL,
		AllowPeerEdits: !a.cfg.PeerReadOnly,
		Debounce:       a.cfg.Debounce,
		LoggerFactory:  a.loggerFactory,
		Metrics:        metrics,
	})
	if err != nil {
		stop()
		return nil, err
	}

	debounce := a.cfg.Debounce
	if debounce <= 0 {
		debounce = textsync.DefaultDebounce
	}
	p := &pairing{
		s:        s,
		out:      cmd.OutOrStdout(),
		lines:    make(chan string),
		debounce: debounce,
		stop:     stop,
	}
	go p.scan(cmd.InOrStdin())
	return p, nil
}

func (p *pairing) close() {
	_ = p.s.Close()
	p.stop()
}

func (p *pairing) scan(r io.Reader) {
	defer close(p.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}

func (p *pairing) readLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *pairing) share(ctx context.Context) error {
	offer, err := p.s.GenerateOffer(ctx)
	if err != nil {
		return err
	}
	words, err := p.s.DisplayWords(ctx, offer)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Offer token: %s\n", offer)
	fmt.Fprintf(p.out, "Words: %s\n", strings.Join(words, " "))
	fmt.Fprintln(p.out, "Paste the answer token:")

	answer, err := p.readLine(ctx)
	if err != nil {
		return err
	}
	if err := p.s.SubmitPeerAnswer(ctx, answer); err != nil {
		return err
	}
	if err := p.confirm(ctx); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Connected. Each line replaces the shared text.")

	for {
		line, err := p.readLine(ctx)
		if errors.Is(err, io.EOF) {
			// Let the last edit leave before the channel closes.
			select {
			case <-time.After(2 * p.debounce):
			case <-ctx.Done():
			}
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.s.EditText(line); err != nil {
			return p.failure(err)
		}
	}
}

func (p *pairing) receive(ctx context.Context) error {
	fmt.Fprintln(p.out, "Paste the offer token:")
	offer, err := p.readLine(ctx)
	if err != nil {
		return err
	}
	answer, err := p.s.SubmitPeerOffer(ctx, offer)
	if err != nil {
		return err
	}
	words, err := p.s.DisplayWords(ctx, answer)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Answer token: %s\n", answer)
	fmt.Fprintf(p.out, "Words: %s\n", strings.Join(words, " "))

	if err := p.confirm(ctx); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Connected. Waiting for text.")

	updates := make(chan struct{}, 1)
	unsubscribe := p.s.Subscribe(func(session.Transition) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var last int64 = -1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap := p.s.Snapshot()
		if snap.State == session.StateError {
			return p.failure(nil)
		}
		if seq := snap.Context.LastAppliedReceiveSequence; seq > last {
			last = seq
			fmt.Fprintf(p.out, "--- %d\n%s\n", seq, snap.Context.Text)
		}
		select {
		case <-updates:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// confirm shows the SAS, asks the operator and waits for the data phase.
func (p *pairing) confirm(ctx context.Context) error {
	fmt.Fprintf(p.out, "SAS: %s\n", p.s.Snapshot().Context.SAS)
	fmt.Fprintln(p.out, "Type yes if the peer shows the same code:")

	line, err := p.readLine(ctx)
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(line), "yes") {
		return errNotConfirmed
	}
	if err := p.s.ConfirmSAS(); err != nil {
		return err
	}
	return p.waitState(ctx, session.StateTextarea)
}

func (p *pairing) waitState(ctx context.Context, want session.State) error {
	changed := make(chan struct{}, 1)
	unsubscribe := p.s.Subscribe(func(session.Transition) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch p.s.Snapshot().State {
		case want:
			return nil
		case session.StateError:
			return p.failure(nil)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// failure returns the session's recorded failure, falling back to err.
func (p *pairing) failure(err error) error {
	snap := p.s.Snapshot()
	if snap.State != session.StateError {
		return err
	}
	if snap.Err != nil {
		return snap.Err
	}
	return errors.New(snap.Context.Error)
}

func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return func() { _ = srv.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
