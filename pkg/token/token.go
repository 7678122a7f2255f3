// Package token implements the handshake tokens two peers exchange by hand.
//
// A pairing needs exactly two tokens: the initiator's Offer and the
// responder's Answer. Each carries the peer's opaque transport description and
// its channel fingerprint. Tokens are copy-pasted between people, so the wire
// form is short, URL-safe and detects accidental corruption.
//
// # Wire Format
//
//	record ──canonical bytes──▶ zlib ──▶ base64url (no padding)
//
// Canonical bytes are length-prefixed fields in a fixed order:
//
//	Offer:  0x01 | version u8 | u24 transportOffer | u16 fingerprint |
//	        flags u8 (bit0 peerReadOnly) | ttl u32 | createdAtMs u64
//	Answer: 0x02 | version u8 | u24 transportAnswer | u16 fingerprint |
//	        u8 ackOfferDigest | createdAtMs u64
//
// The zlib framing ends with an Adler-32 checksum, so a mangled paste fails
// decompression instead of decoding to a different record.
//
// # Expiry
//
// Offers carry a TTL and expire TTL seconds after creation. Answers never
// expire; they are consumed as soon as they arrive.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Protocol constants.
const (
	// Version is the wire format revision produced and accepted.
	Version = 1

	// DefaultTTL is the offer lifetime when none is configured.
	DefaultTTL = 180 * time.Second

	// DisplayWordCount is the number of words shown for a token.
	DisplayWordCount = 8
)

// Errors.
var (
	ErrInvalidTokenFormat = errors.New("token: invalid token format")
	ErrTokenExpired       = errors.New("token: expired")
	ErrUnexpectedRole     = errors.New("token: unexpected role")

	// ErrMnemonicInput is returned when the display words were pasted
	// instead of the token itself.
	ErrMnemonicInput = fmt.Errorf("%w: input looks like display words, paste the token itself", ErrInvalidTokenFormat)

	// ErrCorrupt is returned when the token cannot be base64-decoded or
	// decompressed.
	ErrCorrupt = fmt.Errorf("%w: token data is corrupt", ErrInvalidTokenFormat)
)

// FieldError describes a record that decoded but does not match either
// token shape.
type FieldError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidTokenFormat, e.Field, e.Reason)
}

// Unwrap returns ErrInvalidTokenFormat.
func (e *FieldError) Unwrap() error {
	return ErrInvalidTokenFormat
}

// Role identifies which side of the handshake produced a token.
type Role uint8

const (
	// RoleInitiator produces the Offer and writes the shared text.
	RoleInitiator Role = iota + 1
	// RoleResponder produces the Answer and reads the shared text.
	RoleResponder
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Token is either an *Offer or an *Answer.
type Token interface {
	// Role returns the role of the token's author.
	Role() Role

	// Fingerprint returns the author's channel fingerprint.
	Fingerprint() string

	// Created returns the creation time.
	Created() time.Time

	isToken()
}

// Policy is the initiator's session policy carried in the Offer.
type Policy struct {
	// PeerReadOnly forbids the responder from editing the shared text.
	PeerReadOnly bool

	// TTLSeconds is the offer lifetime.
	TTLSeconds uint32
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		PeerReadOnly: true,
		TTLSeconds:   uint32(DefaultTTL / time.Second),
	}
}

// Offer is the initiator's handshake token.
type Offer struct {
	Version        uint8
	TransportOffer string
	FP             string
	Policy         Policy
	CreatedAtMs    uint64
}

// NewOffer creates an Offer stamped with now.
func NewOffer(transportOffer, fingerprint string, policy Policy, now time.Time) *Offer {
	return &Offer{
		Version:        Version,
		TransportOffer: transportOffer,
		FP:             fingerprint,
		Policy:         policy,
		CreatedAtMs:    uint64(now.UnixMilli()),
	}
}

// Role implements Token.
func (o *Offer) Role() Role { return RoleInitiator }

// Fingerprint implements Token.
func (o *Offer) Fingerprint() string { return o.FP }

// Created implements Token.
func (o *Offer) Created() time.Time { return time.UnixMilli(int64(o.CreatedAtMs)) }

// ExpiresAt returns the instant after which the offer is expired.
func (o *Offer) ExpiresAt() time.Time {
	return o.Created().Add(time.Duration(o.Policy.TTLSeconds) * time.Second)
}

func (o *Offer) isToken() {}

// Answer is the responder's handshake token.
type Answer struct {
	Version         uint8
	TransportAnswer string
	FP              string
	// AckOfferDigest is OfferDigest of the offer wire string being answered.
	AckOfferDigest  string
	CreatedAtMs     uint64
}

// NewAnswer creates an Answer acknowledging offerWire, stamped with now.
func NewAnswer(transportAnswer, fingerprint, offerWire string, now time.Time) *Answer {
	return &Answer{
		Version:         Version,
		TransportAnswer: transportAnswer,
		FP:              fingerprint,
		AckOfferDigest:  OfferDigest(offerWire),
		CreatedAtMs:     uint64(now.UnixMilli()),
	}
}

// Role implements Token.
func (a *Answer) Role() Role { return RoleResponder }

// Fingerprint implements Token.
func (a *Answer) Fingerprint() string { return a.FP }

// Created implements Token.
func (a *Answer) Created() time.Time { return time.UnixMilli(int64(a.CreatedAtMs)) }

// Acknowledges reports whether the answer was produced for offerWire.
func (a *Answer) Acknowledges(offerWire string) bool {
	return a.AckOfferDigest == OfferDigest(offerWire)
}

func (a *Answer) isToken() {}

// OfferDigest hashes the wire bytes of an offer token.
//
// Whitespace introduced by copy-paste is removed first, so both peers hash
// the same characters; any other difference changes the digest.
func OfferDigest(offerWire string) string {
	sum := sha256.Sum256([]byte(normalizeWire(offerWire)))
	return hex.EncodeToString(sum[:])
}

// Validate checks that t is a well-formed token of either shape.
func Validate(t Token) error {
	switch v := t.(type) {
	case *Offer:
		if v == nil {
			return &FieldError{Field: "token", Reason: "nil offer"}
		}
		if v.Version != Version {
			return &FieldError{Field: "version", Reason: fmt.Sprintf("unsupported version %d", v.Version)}
		}
		if v.FP == "" {
			return &FieldError{Field: "fingerprint", Reason: "must not be empty"}
		}
	case *Answer:
		if v == nil {
			return &FieldError{Field: "token", Reason: "nil answer"}
		}
		if v.Version != Version {
			return &FieldError{Field: "version", Reason: fmt.Sprintf("unsupported version %d", v.Version)}
		}
		if v.FP == "" {
			return &FieldError{Field: "fingerprint", Reason: "must not be empty"}
		}
		if v.AckOfferDigest == "" {
			return &FieldError{Field: "ackOfferDigest", Reason: "must not be empty"}
		}
	default:
		return &FieldError{Field: "token", Reason: fmt.Sprintf("unknown token type %T", t)}
	}
	return nil
}
