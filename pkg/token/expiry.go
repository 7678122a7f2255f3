package token

import (
	"fmt"
	"time"
)

// ExpiredError reports an offer used after its TTL.
type ExpiredError struct {
	// ExpiredFor is how long ago the offer expired.
	ExpiredFor time.Duration
}

// Error returns the operator-facing expiration message.
func (e *ExpiredError) Error() string {
	return fmt.Sprintf("Invite token expired %d seconds ago. Please generate a new invite token.", expiredSeconds(e.ExpiredFor))
}

// Unwrap returns ErrTokenExpired.
func (e *ExpiredError) Unwrap() error {
	return ErrTokenExpired
}

// IsExpired reports whether t is an offer whose TTL has elapsed at now.
// Answers never expire.
func IsExpired(t Token, now time.Time) bool {
	_, expired := expiredFor(t, now)
	return expired
}

// ExpirationMessage returns the operator-facing message for an expired
// token, or false if t has not expired.
func ExpirationMessage(t Token, now time.Time) (string, bool) {
	err := CheckExpiry(t, now)
	if err == nil {
		return "", false
	}
	return err.Error(), true
}

// CheckExpiry returns an *ExpiredError if t has expired at now.
func CheckExpiry(t Token, now time.Time) error {
	d, expired := expiredFor(t, now)
	if !expired {
		return nil
	}
	return &ExpiredError{ExpiredFor: d}
}

func expiredFor(t Token, now time.Time) (time.Duration, bool) {
	o, ok := t.(*Offer)
	if !ok || o == nil {
		return 0, false
	}
	deadline := int64(o.CreatedAtMs) + int64(o.Policy.TTLSeconds)*1000
	nowMs := now.UnixMilli()
	if nowMs <= deadline {
		return 0, false
	}
	return time.Duration(nowMs-deadline) * time.Millisecond, true
}

// expiredSeconds rounds up so an expired token never reports zero seconds.
func expiredSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
