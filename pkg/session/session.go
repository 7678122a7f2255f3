package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/backkem/naisho/pkg/channel"
	"github.com/backkem/naisho/pkg/diceword"
	"github.com/backkem/naisho/pkg/sas"
	"github.com/backkem/naisho/pkg/textsync"
	"github.com/backkem/naisho/pkg/token"
)

// Config configures a Session.
type Config struct {
	// Role is fixed for the session's lifetime. Required.
	Role token.Role

	// Provider creates the transport channel. Required.
	Provider channel.Provider

	// Dictionary supplies display and SAS words.
	// Default: diceword.Default()
	Dictionary *diceword.Cache

	// Clock is used for token timestamps, expiry and debouncing.
	// Default: wall clock
	Clock clock.Clock

	// TTL is the lifetime of generated offers, in whole seconds.
	// Default: token.DefaultTTL
	TTL time.Duration

	// AllowPeerEdits clears the read-only flag in generated offers.
	AllowPeerEdits bool

	// Debounce is the quiet period before a local edit is sent.
	// Default: textsync.DefaultDebounce
	Debounce time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// Metrics records transitions and failures. Optional.
	Metrics *Metrics
}

// Snapshot is a consistent view of a Session.
type Snapshot struct {
	ID      string
	State   State
	Context Context

	// Err is the failure behind StateError, if it is known.
	Err error
}

// Session orchestrates one pairing.
type Session struct {
	id       string
	role     token.Role
	provider channel.Provider
	dict     *diceword.Cache
	clock    clock.Clock
	policy   token.Policy
	log      logging.LeveledLogger
	metrics  *Metrics

	machine     *Machine
	debouncer   *textsync.Debouncer
	unsubscribe func()

	mu         sync.Mutex
	ch         channel.Channel // owned; closed on retry and Close
	localFP    string
	lastErr    error
	lastErrGen uint64
	startedAt  time.Time
	closed     bool
}

// New creates a Session in the token state.
func New(config Config) (*Session, error) {
	if config.Role != token.RoleInitiator && config.Role != token.RoleResponder {
		return nil, fmt.Errorf("session: invalid role %d", config.Role)
	}
	if config.Provider == nil {
		return nil, errors.New("session: provider is required")
	}

	ttl := config.TTL
	if ttl == 0 {
		ttl = token.DefaultTTL
	}
	if ttl < time.Second || ttl/time.Second > math.MaxUint32 {
		return nil, fmt.Errorf("session: ttl %v out of range", ttl)
	}

	s := &Session{
		id:       uuid.NewString(),
		role:     config.Role,
		provider: config.Provider,
		dict:     config.Dictionary,
		clock:    config.Clock,
		policy: token.Policy{
			PeerReadOnly: !config.AllowPeerEdits,
			TTLSeconds:   uint32(ttl / time.Second),
		},
		metrics: config.Metrics,
		machine: NewMachine(config.Role),
	}
	if s.dict == nil {
		s.dict = diceword.Default()
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("session")
	}

	s.debouncer = textsync.NewDebouncer(s.clock, config.Debounce, s.flush)
	s.unsubscribe = s.machine.Subscribe(s.observe)

	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Role returns the session role.
func (s *Session) Role() token.Role { return s.role }

// Snapshot returns the current state and context.
func (s *Session) Snapshot() Snapshot {
	state, ctx := s.machine.Snapshot()

	snap := Snapshot{ID: s.id, State: state, Context: ctx}
	if state == StateError {
		s.mu.Lock()
		if s.lastErrGen == ctx.Generation {
			snap.Err = s.lastErr
		}
		s.mu.Unlock()
	}
	return snap
}

// Subscribe registers f for every processed event. Handlers must not call
// back into the Session synchronously. The returned function removes f.
func (s *Session) Subscribe(f func(Transition)) func() {
	return s.machine.Subscribe(f)
}

// DisplayWords returns the words shown next to a wire token.
func (s *Session) DisplayWords(ctx context.Context, wire string) ([]string, error) {
	return token.DisplayWordsFromWire(ctx, s.dict, wire)
}

// GenerateOffer creates the transport offer and returns the offer token.
// Initiator only.
func (s *Session) GenerateOffer(ctx context.Context) (string, error) {
	if s.role != token.RoleInitiator {
		return "", fmt.Errorf("%w: only the initiator generates offers", ErrRoleMismatch)
	}
	gen, err := s.begin(Event{Kind: EventGeneratingOffer}, func(st State, c Context) error {
		if c.GeneratingOffer {
			return ErrBusy
		}
		if st != StateToken || c.OfferToken != "" {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.markStart()

	ch, res, err := s.provider.CreateOffer(ctx)
	if err != nil {
		return "", s.fail(gen, fmt.Errorf("%w: create offer: %w", ErrTransportFailure, err))
	}

	offer := token.NewOffer(res.Description, res.Fingerprint, s.policy, s.clock.Now())
	wire, err := token.Encode(offer)
	if err != nil {
		_ = ch.Close()
		return "", s.fail(gen, err)
	}

	if err := s.bind(gen, ch, res.Fingerprint); err != nil {
		return "", err
	}
	if err := s.dispatch(gen, Event{Kind: EventGeneratedOffer, Token: wire}); err != nil {
		return "", err
	}

	s.debugf("offer generated, %d chars, expires %s", len(wire), offer.ExpiresAt().Format(time.RFC3339))
	return wire, nil
}

// SubmitPeerAnswer accepts the responder's answer token, connects the
// channel and computes the SAS. Initiator only.
func (s *Session) SubmitPeerAnswer(ctx context.Context, wire string) error {
	if s.role != token.RoleInitiator {
		return fmt.Errorf("%w: only the initiator accepts answers", ErrRoleMismatch)
	}
	var offerWire string
	gen, err := s.begin(Event{Kind: EventAcceptingAnswer}, func(st State, c Context) error {
		if c.AcceptingAnswer {
			return ErrBusy
		}
		if st != StateToken || c.OfferToken == "" {
			return ErrInvalidState
		}
		offerWire = c.OfferToken
		return nil
	})
	if err != nil {
		return err
	}

	answer, err := token.DecodeAnswer(wire)
	if err != nil {
		return s.fail(gen, roleError(err))
	}
	if !answer.Acknowledges(offerWire) {
		return s.fail(gen, ErrOfferMismatch)
	}

	s.mu.Lock()
	ch, localFP := s.ch, s.localFP
	s.mu.Unlock()
	if ch == nil {
		return s.fail(gen, fmt.Errorf("%w: no channel for offer", ErrInvalidState))
	}

	peerFP, err := s.provider.AcceptAnswer(ctx, ch, answer.TransportAnswer)
	if err != nil {
		return s.fail(gen, fmt.Errorf("%w: accept answer: %w", ErrTransportFailure, err))
	}
	if err := checkFingerprint(answer.Fingerprint(), peerFP); err != nil {
		return s.fail(gen, err)
	}

	result, err := sas.Compute(ctx, s.dict, localFP, answer.Fingerprint())
	if err != nil {
		return s.fail(gen, err)
	}

	for _, ev := range []Event{
		{Kind: EventGotAnswer, Token: strings.TrimSpace(wire)},
		{Kind: EventConnecting, Channel: ch},
		{Kind: EventSASComputed, SAS: result},
	} {
		if err := s.dispatch(gen, ev); err != nil {
			return err
		}
	}

	s.debugf("answer accepted")
	return nil
}

// SubmitPeerOffer accepts the initiator's offer token, creates the answer
// and computes the SAS. It returns the answer token. Responder only.
func (s *Session) SubmitPeerOffer(ctx context.Context, wire string) (string, error) {
	if s.role != token.RoleResponder {
		return "", fmt.Errorf("%w: only the responder accepts offers", ErrRoleMismatch)
	}
	wire = strings.TrimSpace(wire)
	gen, err := s.begin(Event{Kind: EventPastedOffer, Token: wire}, func(st State, c Context) error {
		if c.CreatingAnswer || (st == StateToken && c.OfferToken != "") {
			return ErrBusy
		}
		if st != StateToken || c.AnswerToken != "" {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.markStart()

	offer, err := token.DecodeOffer(wire)
	if err != nil {
		return "", s.fail(gen, roleError(err))
	}
	if err := token.CheckExpiry(offer, s.clock.Now()); err != nil {
		return "", s.fail(gen, err)
	}

	if err := s.dispatch(gen, Event{Kind: EventCreatingAnswer}); err != nil {
		return "", err
	}

	ch, res, err := s.provider.CreateAnswer(ctx, offer.TransportOffer)
	if err != nil {
		return "", s.fail(gen, fmt.Errorf("%w: create answer: %w", ErrTransportFailure, err))
	}
	if err := checkFingerprint(offer.Fingerprint(), res.PeerFingerprint); err != nil {
		_ = ch.Close()
		return "", s.fail(gen, err)
	}

	answer := token.NewAnswer(res.Description, res.Fingerprint, wire, s.clock.Now())
	answerWire, err := token.Encode(answer)
	if err != nil {
		_ = ch.Close()
		return "", s.fail(gen, err)
	}

	if err := s.bind(gen, ch, res.Fingerprint); err != nil {
		return "", err
	}

	result, err := sas.Compute(ctx, s.dict, offer.Fingerprint(), res.Fingerprint)
	if err != nil {
		return "", s.fail(gen, err)
	}

	for _, ev := range []Event{
		{Kind: EventCreatedAnswer, Token: answerWire},
		{Kind: EventConnecting, Channel: ch},
		{Kind: EventSASComputed, SAS: result},
	} {
		if err := s.dispatch(gen, ev); err != nil {
			return "", err
		}
	}

	s.debugf("answer created, %d chars", len(answerWire))
	return answerWire, nil
}

// ConfirmSAS records that the operator compared the SAS with the peer.
func (s *Session) ConfirmSAS() error {
	_, err := s.machine.SendIf(Event{Kind: EventSASConfirmed}, func(st State, c Context) error {
		if st != StateConnection || c.SAS.IsZero() || c.SASConfirmed {
			return ErrInvalidState
		}
		return nil
	})
	return err
}

// EditText replaces the shared text and schedules sending it.
// Initiator only.
func (s *Session) EditText(text string) error {
	if s.role != token.RoleInitiator {
		return fmt.Errorf("%w: the responder is read-only", ErrRoleMismatch)
	}
	_, err := s.machine.SendIf(Event{Kind: EventTextChanged, Text: text}, func(st State, _ Context) error {
		if st != StateTextarea {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.debouncer.Trigger()
	return nil
}

// Retry resets a failed session to the token state. The current channel is
// closed and in-flight operations become stale.
func (s *Session) Retry() error {
	_, err := s.machine.SendIf(Event{Kind: EventRetry}, func(st State, _ Context) error {
		if st != StateError {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.debouncer.Cancel()

	s.mu.Lock()
	ch := s.ch
	s.ch = nil
	s.localFP = ""
	s.lastErr = nil
	s.startedAt = time.Time{}
	s.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	s.debugf("retry")
	return nil
}

// Close releases the channel. The session cannot be used afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	s.debouncer.Stop()
	s.unsubscribe()

	if ch != nil {
		return ch.Close()
	}
	return nil
}

// checkFingerprint verifies that the fingerprint a token claims is the one
// its transport description carries.
func checkFingerprint(claimed, transport string) error {
	if transport == "" || !strings.EqualFold(claimed, transport) {
		return fmt.Errorf("%w: token names %s, transport uses %s", ErrFingerprintMismatch, claimed, transport)
	}
	return nil
}

// begin atomically checks and applies the event that starts an operation.
// It returns the generation the operation belongs to.
func (s *Session) begin(ev Event, check func(State, Context) error) (uint64, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	var gen uint64
	_, err := s.machine.SendIf(ev, func(st State, c Context) error {
		if err := check(st, c); err != nil {
			return err
		}
		gen = c.Generation
		return nil
	})
	return gen, err
}

// dispatch applies ev if the session is still in generation gen.
func (s *Session) dispatch(gen uint64, ev Event) error {
	_, err := s.machine.SendIf(ev, sameGeneration(gen))
	return err
}

func sameGeneration(gen uint64) func(State, Context) error {
	return func(_ State, c Context) error {
		if c.Generation != gen {
			return ErrStale
		}
		return nil
	}
}

// fail moves the session to the error state with err and returns err.
func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.lastErrGen = gen
	s.mu.Unlock()

	if derr := s.dispatch(gen, Event{Kind: EventError, Error: err.Error()}); derr != nil {
		s.debugf("failure not recorded (%v): %v", derr, err)
		return err
	}
	s.metrics.recordError(errorKind(err))
	s.warnf("%v", err)
	return err
}

// bind takes ownership of ch for generation gen. If the session moved on,
// ch is closed and ErrStale returned.
func (s *Session) bind(gen uint64, ch channel.Channel, localFP string) error {
	s.mu.Lock()
	if s.closed || s.machine.Context().Generation != gen {
		s.mu.Unlock()
		_ = ch.Close()
		return ErrStale
	}
	old := s.ch
	s.ch = ch
	s.localFP = localFP
	s.mu.Unlock()

	if old != nil && old != ch {
		_ = old.Close()
	}

	ch.OnStateChange(func(cs channel.ConnectionState) {
		s.debugf("channel %s", cs)
		_ = s.dispatch(gen, Event{Kind: EventConnectionStateChanged, ConnectionState: cs})
	})
	ch.OnMessage(func(frame string) {
		msg, err := textsync.Unmarshal([]byte(frame))
		if err != nil {
			s.debugf("dropping frame: %v", err)
			return
		}
		_ = s.dispatch(gen, Event{Kind: EventMessageReceived, Message: msg})
	})
	return nil
}

// flush sends the current text. It runs when the debounce window closes.
func (s *Session) flush() {
	st, c := s.machine.Snapshot()
	if st != StateTextarea || c.ConnectionState != channel.ConnectionStateConnected {
		s.debugf("not sending text in %s/%s", st, c.ConnectionState)
		return
	}

	frame, err := textsync.Marshal(textsync.Full(c.SendSequence, c.Text))
	if err != nil {
		s.warnf("encode text: %v", err)
		return
	}

	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Send(string(frame)); err != nil {
		s.warnf("send text seq %d: %v", c.SendSequence, err)
		return
	}
	if s.log != nil {
		s.log.Tracef("sent text seq %d", c.SendSequence)
	}
}

// observe follows every transition for metrics and side effects.
func (s *Session) observe(tr Transition) {
	s.metrics.recordTransition(tr)

	switch {
	case tr.From == StateTextarea && tr.To == StateError:
		s.debouncer.Cancel()
		if tr.Event == EventConnectionStateChanged {
			s.mu.Lock()
			s.lastErr = ErrConnectionLost
			s.lastErrGen = tr.Context.Generation
			s.mu.Unlock()
			s.metrics.recordError(kindConnectionLost)
			s.warnf("connection lost (%s)", tr.Context.ConnectionState)
		}

	case tr.From == StateConnection && tr.To == StateTextarea:
		s.mu.Lock()
		started := s.startedAt
		s.mu.Unlock()
		if !started.IsZero() {
			s.metrics.recordPairing(s.role.String(), s.clock.Since(started))
		}
		if s.log != nil {
			s.log.Infof("session %s paired", s.id)
		}
	}
}

func (s *Session) markStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		s.startedAt = s.clock.Now()
	}
}

func roleError(err error) error {
	if errors.Is(err, token.ErrUnexpectedRole) {
		return fmt.Errorf("%w: %w", ErrRoleMismatch, err)
	}
	return err
}

func (s *Session) debugf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Debugf("[%s] "+format, append([]interface{}{s.id[:8]}, args...)...)
	}
}

func (s *Session) warnf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Warnf("[%s] "+format, append([]interface{}{s.id[:8]}, args...)...)
	}
}
