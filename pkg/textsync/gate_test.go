package textsync

import "testing"

func ptr[T any](v T) *T { return &v }

// gateAt returns a gate holding text with last applied sequence seq.
func gateAt(t *testing.T, seq uint64, text string) *Gate {
	t.Helper()
	g := NewGate()
	if !g.Apply(Full(seq, text)) {
		t.Fatalf("priming gate at seq %d failed", seq)
	}
	return g
}

func TestNewGate(t *testing.T) {
	g := NewGate()
	if g.LastApplied() != -1 {
		t.Errorf("LastApplied() = %d, want -1", g.LastApplied())
	}
	if g.Text() != "" {
		t.Errorf("Text() = %q, want empty", g.Text())
	}
	if !g.Apply(Full(0, "first")) {
		t.Error("seq 0 not applied to a fresh gate")
	}
}

func TestGateSequence(t *testing.T) {
	g := gateAt(t, 5, "hello")

	if g.Apply(Full(3, "stale")) {
		t.Error("seq 3 applied after 5")
	}
	if g.Text() != "hello" || g.LastApplied() != 5 {
		t.Errorf("after stale message: text %q seq %d", g.Text(), g.LastApplied())
	}

	if !g.Apply(Full(6, "world")) {
		t.Fatal("seq 6 not applied")
	}
	if g.Text() != "world" || g.LastApplied() != 6 {
		t.Errorf("after seq 6: text %q seq %d", g.Text(), g.LastApplied())
	}

	if !g.Apply(Patch(7, 0, 0, "X")) {
		t.Fatal("patch seq 7 not applied")
	}
	if g.Text() != "Xworld" || g.LastApplied() != 7 {
		t.Errorf("after patch: text %q seq %d", g.Text(), g.LastApplied())
	}

	if g.Apply(Full(7, "duplicate")) {
		t.Error("duplicate seq 7 applied")
	}
	if g.Text() != "Xworld" {
		t.Errorf("duplicate changed text to %q", g.Text())
	}
}

func TestGatePatch(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		msg     Message
		want    string
		applied bool
	}{
		{name: "prepend", text: "abc", msg: Patch(2, 0, 0, "X"), want: "Xabc", applied: true},
		{name: "append", text: "abc", msg: Patch(2, 3, 3, "X"), want: "abcX", applied: true},
		{name: "replace middle", text: "abcdef", msg: Patch(2, 2, 4, "XY"), want: "abXYef", applied: true},
		{name: "delete", text: "abcdef", msg: Patch(2, 1, 5, ""), want: "af", applied: true},
		{name: "rune offsets", text: "héllo", msg: Patch(2, 1, 2, "e"), want: "hello", applied: true},
		{name: "to past end", text: "abc", msg: Patch(2, 1, 9, "X"), want: "abc"},
		{name: "from after to", text: "abc", msg: Patch(2, 2, 1, "X"), want: "abc"},
		{name: "missing from", text: "abc", msg: Message{Type: TypePatch, Seq: 2, To: ptr[uint64](1), Text: ptr("X")}, want: "abc"},
		{name: "missing to", text: "abc", msg: Message{Type: TypePatch, Seq: 2, From: ptr[uint64](1), Text: ptr("X")}, want: "abc"},
		{name: "missing text", text: "abc", msg: Message{Type: TypePatch, Seq: 2, From: ptr[uint64](0), To: ptr[uint64](1)}, want: "abc"},
		{name: "stale", text: "abc", msg: Patch(1, 0, 0, "X"), want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gateAt(t, 1, tt.text)
			if got := g.Apply(tt.msg); got != tt.applied {
				t.Errorf("Apply() = %v, want %v", got, tt.applied)
			}
			if g.Text() != tt.want {
				t.Errorf("Text() = %q, want %q", g.Text(), tt.want)
			}
			wantSeq := int64(1)
			if tt.applied {
				wantSeq = int64(tt.msg.Seq)
			}
			if g.LastApplied() != wantSeq {
				t.Errorf("LastApplied() = %d, want %d", g.LastApplied(), wantSeq)
			}
		})
	}
}

func TestGateRejectsMalformedFull(t *testing.T) {
	g := NewGate()
	if g.Apply(Message{Type: TypeFull, Seq: 1}) {
		t.Error("full message without text applied")
	}
	if g.Apply(Message{Type: "other", Seq: 1, Text: ptr("x")}) {
		t.Error("unknown type applied")
	}
	if g.Apply(Full(1<<63, "overflow")) {
		t.Error("sequence beyond int64 applied")
	}
	if g.LastApplied() != -1 {
		t.Errorf("LastApplied() = %d, want -1", g.LastApplied())
	}
}

func TestNewGateAt(t *testing.T) {
	g := NewGateAt("hello", 5)
	if g.Apply(Full(5, "same seq")) {
		t.Error("seq 5 applied to gate at 5")
	}
	if !g.Apply(Patch(6, 5, 5, "!")) {
		t.Fatal("patch seq 6 not applied")
	}
	if g.Text() != "hello!" {
		t.Errorf("Text() = %q, want hello!", g.Text())
	}

	if NewGateAt("", -7).LastApplied() != -1 {
		t.Error("negative last not clamped to -1")
	}
}

func TestGateReset(t *testing.T) {
	g := gateAt(t, 9, "text")
	g.Reset()
	if g.Text() != "" || g.LastApplied() != -1 {
		t.Errorf("after Reset: text %q seq %d", g.Text(), g.LastApplied())
	}
}
