// Package textsync keeps a single-writer text buffer in step across a data
// channel.
//
// The writer sends its whole buffer as a Full message, tagged with a
// per-sender sequence number that only grows. The receiver runs every
// inbound message through a Gate, which applies it only if its sequence is
// newer than the last one applied. Duplicated, reordered and malformed
// messages are dropped, so the buffer never moves backwards.
//
// Outbound edits are coalesced by a Debouncer before they are sent.
package textsync

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// Message types.
const (
	TypeFull  = "full"
	TypePatch = "patch"
)

// Errors.
var (
	ErrUnknownType = errors.New("textsync: unknown message type")
	ErrMalformed   = errors.New("textsync: malformed message")
)

// Message is one text update frame.
//
// Optional fields are pointers so that a missing field can be told apart
// from a zero value; a Patch with any of them missing is dropped.
type Message struct {
	Type string  `json:"type"`
	Seq  uint64  `json:"seq"`
	Text *string `json:"text,omitempty"`
	From *uint64 `json:"from,omitempty"`
	To   *uint64 `json:"to,omitempty"`
}

// Full returns a message that replaces the receiver's buffer with text.
func Full(seq uint64, text string) Message {
	return Message{Type: TypeFull, Seq: seq, Text: &text}
}

// Patch returns a message that replaces the runes [from, to) with text.
func Patch(seq, from, to uint64, text string) Message {
	return Message{Type: TypePatch, Seq: seq, Text: &text, From: &from, To: &to}
}

// Marshal encodes m as a UTF-8 JSON frame.
func Marshal(m Message) ([]byte, error) {
	if m.Type != TypeFull && m.Type != TypePatch {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return json.Marshal(m)
}

// Unmarshal decodes a frame produced by Marshal.
//
// Frames of an unknown type are rejected. A patch missing some of its
// fields decodes successfully; the Gate decides whether it applies.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Type != TypeFull && m.Type != TypePatch {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return m, nil
}
