package diceword

import (
	"bytes"
	"fmt"
)

// Dictionary is an immutable, ordered list of distinct words.
type Dictionary struct {
	words []string
	index map[string]int
}

// Parse builds a Dictionary from a newline-separated word list.
//
// Surrounding whitespace on each line is ignored, as are blank lines. A word
// that appears more than once keeps the position of its first occurrence.
// A list with no usable entries returns ErrDictionaryUnavailable.
func Parse(raw []byte) (*Dictionary, error) {
	d := &Dictionary{
		index: make(map[string]int),
	}

	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		word := string(bytes.TrimSpace(line))
		if word == "" {
			continue
		}
		if _, dup := d.index[word]; dup {
			continue
		}
		d.index[word] = len(d.words)
		d.words = append(d.words, word)
	}

	if len(d.words) == 0 {
		return nil, fmt.Errorf("%w: word list is empty", ErrDictionaryUnavailable)
	}

	return d, nil
}

// Len returns the number of words in the dictionary.
func (d *Dictionary) Len() int {
	return len(d.words)
}

// Word returns the word at index i.
func (d *Dictionary) Word(i int) string {
	return d.words[i]
}

// Words returns a copy of the word list.
func (d *Dictionary) Words() []string {
	out := make([]string, len(d.words))
	copy(out, d.words)
	return out
}

// Contains reports whether word is in the dictionary.
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.index[word]
	return ok
}

// WordsFromBytes maps data onto count dictionary words.
//
// Bytes past the end of data read as zero, so a short input still yields
// exactly count words.
func (d *Dictionary) WordsFromBytes(data []byte, count int) []string {
	if count <= 0 {
		return []string{}
	}

	n := uint32(len(d.words))
	result := make([]string, count)
	for i := 0; i < count; i++ {
		hi := byteAt(data, i*bytesPerWord)
		lo := byteAt(data, i*bytesPerWord+1)
		value := uint32(hi)<<8 | uint32(lo)
		result[i] = d.words[value%n]
	}
	return result
}

// Index16 maps a 16-bit value onto a word.
func (d *Dictionary) Index16(value uint16) string {
	return d.words[uint32(value)%uint32(len(d.words))]
}

// ValidateWords reports whether every word is in the dictionary.
// An empty list is valid.
func (d *Dictionary) ValidateWords(words []string) bool {
	for _, w := range words {
		if !d.Contains(w) {
			return false
		}
	}
	return true
}

func byteAt(data []byte, i int) byte {
	if i < len(data) {
		return data[i]
	}
	return 0
}
