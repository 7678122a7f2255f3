// Package sas derives the Short Authentication String two peers compare
// out-of-band after pairing.
//
// Both peers hold the same two channel fingerprints once the handshake is
// done. Each computes the SAS locally; if a third party relayed the
// handshake, the fingerprints differ and so do the codes. The SAS is never
// sent over the channel.
//
// # Derivation
//
//	h      = SHA-256(min(fpA, fpB) + ":" + max(fpA, fpB))
//	digits = uint24(h[0:3]) mod 1_000_000, zero padded to 6
//	words  = dict[uint16(h[3+2i:5+2i]) mod len(dict)] for i in 0..5
//
// Sorting makes the result independent of argument order.
package sas

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/backkem/naisho/pkg/diceword"
)

// Separator joins the sorted fingerprints before hashing.
const Separator = ":"

const (
	// DigitCount is the length of Result.Digits.
	DigitCount = 6

	// WordCount is the length of Result.Words.
	WordCount = 6

	digitBytes   = 3
	digitModulus = 1_000_000
)

// Result is a computed SAS.
type Result struct {
	// Digits is a 6-character zero-padded decimal code.
	Digits string

	// Words are six dictionary words derived from the same hash.
	Words []string
}

// Equal reports whether r and other carry the same code and words.
func (r Result) Equal(other Result) bool {
	if r.Digits != other.Digits || len(r.Words) != len(other.Words) {
		return false
	}
	for i := range r.Words {
		if r.Words[i] != other.Words[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether r has not been computed.
func (r Result) IsZero() bool {
	return r.Digits == "" && len(r.Words) == 0
}

// String formats the result for display.
func (r Result) String() string {
	return r.Digits + " · " + strings.Join(r.Words, " ")
}

// Compute derives the SAS for two fingerprints using the cached dictionary.
func Compute(ctx context.Context, cache *diceword.Cache, fingerprintA, fingerprintB string) (Result, error) {
	dict, err := cache.Dictionary(ctx)
	if err != nil {
		return Result{}, err
	}
	return ComputeWith(dict, fingerprintA, fingerprintB), nil
}

// ComputeWith derives the SAS for two fingerprints using dict.
func ComputeWith(dict *diceword.Dictionary, fingerprintA, fingerprintB string) Result {
	h := digest(fingerprintA, fingerprintB)

	n := uint32(h[0])<<16 | uint32(h[1])<<8 | uint32(h[2])
	digits := fmt.Sprintf("%0*d", DigitCount, n%digitModulus)

	words := make([]string, WordCount)
	for i := range words {
		off := digitBytes + 2*i
		words[i] = dict.Index16(binary.BigEndian.Uint16(h[off : off+2]))
	}

	return Result{Digits: digits, Words: words}
}

func digest(a, b string) [sha256.Size]byte {
	if b < a {
		a, b = b, a
	}
	return sha256.Sum256([]byte(a + Separator + b))
}
