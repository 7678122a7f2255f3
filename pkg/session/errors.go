package session

import (
	"errors"

	"github.com/backkem/naisho/pkg/diceword"
	"github.com/backkem/naisho/pkg/token"
)

// Session errors.
var (
	ErrInvalidState        = errors.New("session: operation not allowed in current state")
	ErrBusy                = errors.New("session: operation already in progress")
	ErrRoleMismatch        = errors.New("session: role mismatch")
	ErrTransportFailure    = errors.New("session: transport failure")
	ErrConnectionLost      = errors.New("session: connection lost")
	ErrOfferMismatch       = errors.New("session: answer was created for a different offer")
	ErrFingerprintMismatch = errors.New("session: token fingerprint does not match its transport")
	ErrStale               = errors.New("session: superseded by retry")
	ErrClosed              = errors.New("session: closed")
)

// Error kinds used as metric labels.
const (
	kindDictionary     = "dictionary_unavailable"
	kindTokenFormat    = "invalid_token_format"
	kindTokenExpired   = "token_expired"
	kindRoleMismatch   = "role_mismatch"
	kindOfferMismatch  = "offer_mismatch"
	kindFingerprint    = "fingerprint_mismatch"
	kindTransport      = "transport_failure"
	kindConnectionLost = "connection_lost"
	kindOther          = "other"
)

// errorKind classifies err into the session error taxonomy.
func errorKind(err error) string {
	switch {
	case errors.Is(err, diceword.ErrDictionaryUnavailable):
		return kindDictionary
	case errors.Is(err, token.ErrTokenExpired):
		return kindTokenExpired
	case errors.Is(err, ErrRoleMismatch), errors.Is(err, token.ErrUnexpectedRole):
		return kindRoleMismatch
	case errors.Is(err, token.ErrInvalidTokenFormat):
		return kindTokenFormat
	case errors.Is(err, ErrOfferMismatch):
		return kindOfferMismatch
	case errors.Is(err, ErrFingerprintMismatch):
		return kindFingerprint
	case errors.Is(err, ErrTransportFailure):
		return kindTransport
	case errors.Is(err, ErrConnectionLost):
		return kindConnectionLost
	default:
		return kindOther
	}
}
