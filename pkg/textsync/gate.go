package textsync

// Gate applies inbound messages to a text buffer in sequence order.
//
// A Gate is not safe for concurrent use; the session serializes access.
type Gate struct {
	text string
	last int64
}

// NewGate returns a Gate with an empty buffer that accepts any sequence.
func NewGate() *Gate {
	return &Gate{last: -1}
}

// NewGateAt returns a Gate holding text with last as the last applied
// sequence. A negative last accepts any sequence.
func NewGateAt(text string, last int64) *Gate {
	if last < -1 {
		last = -1
	}
	return &Gate{text: text, last: last}
}

// Text returns the current buffer.
func (g *Gate) Text() string {
	return g.text
}

// LastApplied returns the sequence of the last applied message, or -1.
func (g *Gate) LastApplied() int64 {
	return g.last
}

// Reset empties the buffer and forgets the last sequence.
func (g *Gate) Reset() {
	g.text = ""
	g.last = -1
}

// Apply applies m if it is newer than the last applied message and
// well-formed. It reports whether the buffer was updated.
func (g *Gate) Apply(m Message) bool {
	if !g.newer(m.Seq) {
		return false
	}

	switch m.Type {
	case TypeFull:
		if m.Text == nil {
			return false
		}
		g.text = *m.Text

	case TypePatch:
		next, ok := applyPatch(g.text, m)
		if !ok {
			return false
		}
		g.text = next

	default:
		return false
	}

	g.last = int64(m.Seq)
	return true
}

func (g *Gate) newer(seq uint64) bool {
	// Sequences beyond int64 cannot be ordered against last.
	if seq > 1<<63-1 {
		return false
	}
	return int64(seq) > g.last
}

// applyPatch replaces runes [from, to) of text. Out-of-range offsets make
// the patch malformed.
func applyPatch(text string, m Message) (string, bool) {
	if m.From == nil || m.To == nil || m.Text == nil {
		return "", false
	}
	runes := []rune(text)
	from, to := *m.From, *m.To
	if from > to || to > uint64(len(runes)) {
		return "", false
	}
	return string(runes[:from]) + *m.Text + string(runes[to:]), true
}
