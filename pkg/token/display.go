package token

import (
	"context"

	"github.com/backkem/naisho/pkg/diceword"
)

// DisplayWords returns the DisplayWordCount words shown next to t.
//
// The words are derived from the compressed wire bytes, so two tokens that
// differ anywhere on the wire are very likely to show different words. They
// are for reading aloud only and cannot be turned back into a token.
func DisplayWords(ctx context.Context, cache *diceword.Cache, t Token) ([]string, error) {
	compressed, err := compressedBytes(t)
	if err != nil {
		return nil, err
	}
	return cache.WordsFromBytes(ctx, compressed, DisplayWordCount)
}

// DisplayWordsFromWire is DisplayWords for an already encoded token.
func DisplayWordsFromWire(ctx context.Context, cache *diceword.Cache, wire string) ([]string, error) {
	compressed, err := CompressedBytes(wire)
	if err != nil {
		return nil, err
	}
	return cache.WordsFromBytes(ctx, compressed, DisplayWordCount)
}
