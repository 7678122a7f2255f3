// Package session sequences a manual-token pairing between two peers.
//
// A Session drives a channel.Provider through the handshake, produces and
// consumes the two tokens, derives the SAS and then carries the shared text.
// All state lives in a Machine, a transition table keyed by (state, event)
// with guard functions.
//
// # States
//
//	token ──▶ connection ──▶ textarea
//	  │           │              │
//	  └───────────┴──────────────┴──▶ error ──retry──▶ token
//
// The data phase (textarea) is entered only when the transport is connected
// and the operator has confirmed the SAS, in either order. A transport drop
// in the data phase is fatal ("Connection lost"); earlier it is only
// recorded.
//
// # Initiator
//
//	s, _ := session.New(session.Config{Role: token.RoleInitiator, Provider: p})
//	offer, _ := s.GenerateOffer(ctx)     // hand to the peer
//	_ = s.SubmitPeerAnswer(ctx, answer)  // pasted back by the peer
//	// compare Snapshot().Context.SAS out-of-band
//	_ = s.ConfirmSAS()
//	_ = s.EditText("hello")
//
// # Responder
//
//	s, _ := session.New(session.Config{Role: token.RoleResponder, Provider: p})
//	answer, _ := s.SubmitPeerOffer(ctx, offer)
//	_ = s.ConfirmSAS()
//	// Snapshot().Context.Text follows the initiator's edits
//
// # Failures
//
// Any failure of the provider, the token codec or the SAS engine moves the
// session to the error state with the failure's message. Nothing is retried
// automatically; Retry resets the session completely and bumps its
// generation, so completions of operations started before the reset are
// discarded and the channels they produced are closed.
package session
