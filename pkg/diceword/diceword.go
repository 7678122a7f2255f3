// Package diceword renders opaque byte strings as sequences of dictionary words.
//
// The mapping is display-only: every pair of input bytes selects one word, so
// two different inputs almost always read differently aloud, but the words
// cannot be turned back into the original bytes.
//
// # Algorithm
//
// For word i in [0, count), bytes 2i and 2i+1 of the input are combined
// big-endian into a 16-bit value (missing bytes read as zero) and reduced
// modulo the dictionary size:
//
//	index_i = (data[2i] << 8 | data[2i+1]) mod len(dictionary)
//
// # Dictionary loading
//
// The dictionary is a newline-separated word list. It is loaded lazily by a
// Cache, at most once per process on success. Concurrent first callers share
// one in-flight load; a failed load is not cached and the next call retries.
//
//	words, err := diceword.Default().WordsFromBytes(ctx, data, 8)
package diceword

import "errors"

// Errors.
var (
	// ErrDictionaryUnavailable indicates the word list could not be fetched
	// or contained no usable entries.
	ErrDictionaryUnavailable = errors.New("diceword: dictionary unavailable")
)

// bytesPerWord is the number of input bytes consumed per output word.
const bytesPerWord = 2
