package session

import (
	"sync"

	"github.com/backkem/naisho/pkg/channel"
	"github.com/backkem/naisho/pkg/sas"
	"github.com/backkem/naisho/pkg/textsync"
	"github.com/backkem/naisho/pkg/token"
)

// ConnectionLostMessage is the error text set when the transport drops
// after text exchange began.
const ConnectionLostMessage = "Connection lost"

// State is a top-level session state.
type State int

const (
	// StateToken is the handshake phase: tokens are produced and consumed.
	StateToken State = iota

	// StateConnection waits for the transport and the operator's SAS check.
	StateConnection

	// StateTextarea is the data phase.
	StateTextarea

	// StateError holds a failure until the operator retries.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateToken:
		return "token"
	case StateConnection:
		return "connection"
	case StateTextarea:
		return "textarea"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind identifies an Event.
type EventKind int

const (
	EventGeneratingOffer        EventKind = iota // initiator: offer creation started
	EventGeneratedOffer                          // initiator: offer token ready
	EventAcceptingAnswer                         // initiator: answer processing started
	EventGotAnswer                               // initiator: answer accepted
	EventPastedOffer                             // responder: offer token received
	EventCreatingAnswer                          // responder: answer creation started
	EventCreatedAnswer                           // responder: answer token ready
	EventProceedToConnection                     // skip to the connection phase
	EventConnecting                              // channel handle bound
	EventConnectionStateChanged                  // transport state update
	EventConnected                               // transport connected
	EventSASComputed                             // SAS available
	EventSASConfirmed                            // operator verified the SAS
	EventTextChanged                             // local edit
	EventMessageReceived                         // inbound text message
	EventError                                   // failure
	EventRetry                                   // operator reset
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventGeneratingOffer:
		return "GeneratingOffer"
	case EventGeneratedOffer:
		return "GeneratedOffer"
	case EventAcceptingAnswer:
		return "AcceptingAnswer"
	case EventGotAnswer:
		return "GotAnswer"
	case EventPastedOffer:
		return "PastedOffer"
	case EventCreatingAnswer:
		return "CreatingAnswer"
	case EventCreatedAnswer:
		return "CreatedAnswer"
	case EventProceedToConnection:
		return "ProceedToConnection"
	case EventConnecting:
		return "Connecting"
	case EventConnectionStateChanged:
		return "ConnectionStateChanged"
	case EventConnected:
		return "Connected"
	case EventSASComputed:
		return "SASComputed"
	case EventSASConfirmed:
		return "SASConfirmed"
	case EventTextChanged:
		return "TextChanged"
	case EventMessageReceived:
		return "MessageReceived"
	case EventError:
		return "Error"
	case EventRetry:
		return "Retry"
	default:
		return "Unknown"
	}
}

// Event is one input to the Machine. Only the fields relevant to Kind are
// read.
type Event struct {
	Kind EventKind

	// Token is the wire token for GeneratedOffer, GotAnswer, PastedOffer
	// and CreatedAnswer.
	Token string

	// Channel is the handle for Connecting.
	Channel channel.Channel

	// ConnectionState is the new state for ConnectionStateChanged.
	ConnectionState channel.ConnectionState

	// SAS is the result for SASComputed.
	SAS sas.Result

	// Text is the new buffer for TextChanged.
	Text string

	// Message is the inbound message for MessageReceived.
	Message textsync.Message

	// Error is the failure message for Error.
	Error string
}

// Context is all mutable session data.
type Context struct {
	Role token.Role

	OfferToken  string
	AnswerToken string

	// Channel is borrowed from the provider; the Session owns its release.
	Channel channel.Channel

	SAS             sas.Result
	SASConfirmed    bool
	ConnectionState channel.ConnectionState

	Error string

	Text                       string
	SendSequence               uint64
	LastAppliedReceiveSequence int64

	GeneratingOffer bool
	CreatingAnswer  bool
	AcceptingAnswer bool

	// Generation increases on every retry. Completions of operations
	// started in an older generation are discarded.
	Generation uint64
}

func initialContext(role token.Role, generation uint64) Context {
	return Context{
		Role:                       role,
		ConnectionState:            channel.ConnectionStateNew,
		LastAppliedReceiveSequence: -1,
		Generation:                 generation,
	}
}

// Transition describes one processed event.
type Transition struct {
	From    State
	To      State
	Event   EventKind
	Context Context
}

type transition struct {
	guard  func(*Context, Event) bool
	target State
	action func(*Context, Event)
}

// transitions is keyed by state, then event. Candidates are tried in order;
// the first whose guard passes (a nil guard always passes) is taken.
var transitions = map[State]map[EventKind][]transition{
	StateToken: {
		EventGeneratingOffer: {{target: StateToken, action: func(c *Context, _ Event) {
			c.GeneratingOffer = true
		}}},
		EventGeneratedOffer: {{target: StateToken, action: func(c *Context, e Event) {
			c.OfferToken = e.Token
			c.GeneratingOffer = false
		}}},
		EventAcceptingAnswer: {{target: StateToken, action: func(c *Context, _ Event) {
			c.AcceptingAnswer = true
		}}},
		EventGotAnswer: {{target: StateConnection, action: func(c *Context, e Event) {
			c.AnswerToken = e.Token
			c.GeneratingOffer = false
			c.CreatingAnswer = false
			c.AcceptingAnswer = false
		}}},
		EventPastedOffer: {{target: StateToken, action: func(c *Context, e Event) {
			c.OfferToken = e.Token
		}}},
		EventCreatingAnswer: {{target: StateToken, action: func(c *Context, _ Event) {
			c.CreatingAnswer = true
		}}},
		EventCreatedAnswer: {{target: StateConnection, action: func(c *Context, e Event) {
			c.AnswerToken = e.Token
			c.CreatingAnswer = false
		}}},
		EventProceedToConnection: {{target: StateConnection}},
		// The transport may report progress before the answer is processed.
		EventConnectionStateChanged: {{target: StateToken, action: setConnectionState}},
		EventError:                  {{target: StateError, action: setError}},
	},
	StateConnection: {
		EventConnecting: {{target: StateConnection, action: func(c *Context, e Event) {
			c.Channel = e.Channel
		}}},
		EventConnectionStateChanged: {
			{target: StateTextarea, guard: becomesReady, action: setConnectionState},
			{target: StateConnection, action: setConnectionState},
		},
		EventSASComputed: {{target: StateConnection, action: func(c *Context, e Event) {
			c.SAS = e.SAS
		}}},
		EventSASConfirmed: {
			{target: StateTextarea, guard: isConnected, action: confirmSAS},
			{target: StateConnection, action: confirmSAS},
		},
		EventConnected: {
			{target: StateTextarea, guard: isConfirmed, action: markConnected},
			{target: StateConnection, action: markConnected},
		},
		// Text sent before the local confirmation is held until textarea.
		EventMessageReceived: {{target: StateConnection, action: applyMessage}},
		EventError:           {{target: StateError, action: setError}},
	},
	StateTextarea: {
		EventTextChanged: {{target: StateTextarea, action: func(c *Context, e Event) {
			c.Text = e.Text
			c.SendSequence++
		}}},
		EventMessageReceived: {{target: StateTextarea, action: applyMessage}},
		EventConnectionStateChanged: {
			{target: StateError, guard: isTerminal, action: func(c *Context, e Event) {
				c.ConnectionState = e.ConnectionState
				c.Error = ConnectionLostMessage
			}},
			{target: StateTextarea, action: setConnectionState},
		},
		EventError: {{target: StateError, action: setError}},
	},
	StateError: {
		EventRetry: {{target: StateToken, action: func(c *Context, _ Event) {
			*c = initialContext(c.Role, c.Generation+1)
		}}},
	},
}

func isConnected(c *Context, _ Event) bool {
	return c.ConnectionState == channel.ConnectionStateConnected
}

func isConfirmed(c *Context, _ Event) bool {
	return c.SASConfirmed
}

func becomesReady(c *Context, e Event) bool {
	return e.ConnectionState == channel.ConnectionStateConnected && c.SASConfirmed
}

func isTerminal(_ *Context, e Event) bool {
	return e.ConnectionState.Terminal()
}

func setConnectionState(c *Context, e Event) {
	c.ConnectionState = e.ConnectionState
}

func markConnected(c *Context, _ Event) {
	c.ConnectionState = channel.ConnectionStateConnected
}

func confirmSAS(c *Context, _ Event) {
	c.SASConfirmed = true
}

func setError(c *Context, e Event) {
	c.Error = e.Error
}

func applyMessage(c *Context, e Event) {
	g := textsync.NewGateAt(c.Text, c.LastAppliedReceiveSequence)
	if g.Apply(e.Message) {
		c.Text = g.Text()
		c.LastAppliedReceiveSequence = g.LastApplied()
	}
}

// Machine is the session state machine.
//
// Events are processed one at a time in the order Send is called. Machine
// is safe for concurrent use. Subscribers run after the event is applied,
// outside the Machine's lock.
type Machine struct {
	mu    sync.Mutex
	state State
	ctx   Context

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Transition)
}

// NewMachine creates a Machine in StateToken for role.
func NewMachine(role token.Role) *Machine {
	return &Machine{
		state: StateToken,
		ctx:   initialContext(role, 0),
		subs:  make(map[int]func(Transition)),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Context returns a copy of the current context.
func (m *Machine) Context() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// Snapshot returns the state and a copy of the context together.
func (m *Machine) Snapshot() (State, Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.ctx
}

// Subscribe registers f for every processed event. The returned function
// removes it.
func (m *Machine) Subscribe(f func(Transition)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = f

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

// Send processes ev. It returns the resulting state and whether the event
// was handled; unhandled events leave the machine unchanged.
func (m *Machine) Send(ev Event) (State, bool) {
	state, err := m.SendIf(ev, nil)
	return state, err == nil
}

// SendIf processes ev only if check accepts the current state and context.
// It returns check's error, or ErrInvalidState if no transition handles ev
// in the current state.
func (m *Machine) SendIf(ev Event, check func(State, Context) error) (State, error) {
	m.mu.Lock()

	if check != nil {
		if err := check(m.state, m.ctx); err != nil {
			state := m.state
			m.mu.Unlock()
			return state, err
		}
	}

	t, ok := m.lookup(ev)
	if !ok {
		state := m.state
		m.mu.Unlock()
		return state, ErrInvalidState
	}

	from := m.state
	if t.action != nil {
		t.action(&m.ctx, ev)
	}
	m.state = t.target
	tr := Transition{From: from, To: m.state, Event: ev.Kind, Context: m.ctx}
	m.mu.Unlock()

	m.notify(tr)
	return tr.To, nil
}

func (m *Machine) lookup(ev Event) (transition, bool) {
	for _, t := range transitions[m.state][ev.Kind] {
		if t.guard == nil || t.guard(&m.ctx, ev) {
			return t, true
		}
	}
	return transition{}, false
}

func (m *Machine) notify(tr Transition) {
	m.subMu.Lock()
	subs := make([]func(Transition), 0, len(m.subs))
	for _, f := range m.subs {
		subs = append(subs, f)
	}
	m.subMu.Unlock()

	for _, f := range subs {
		f(tr)
	}
}
