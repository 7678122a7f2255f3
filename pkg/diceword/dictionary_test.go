package diceword

import (
	"errors"
	"reflect"
	"testing"
)

const testWordList = "apple\nbanana\ncherry\ndog\nelephant\nforest\ngarden\nhouse\nice\njuice"

func mustParse(t *testing.T, raw string) *Dictionary {
	t.Helper()
	d, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return d
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr error
	}{
		{
			name: "plain",
			raw:  "alpha\nbravo\ncharlie",
			want: []string{"alpha", "bravo", "charlie"},
		},
		{
			name: "whitespace and blank lines",
			raw:  "  alpha  \n\n\tbravo\r\n   \ncharlie\n",
			want: []string{"alpha", "bravo", "charlie"},
		},
		{
			name: "duplicates keep first position",
			raw:  "alpha\nbravo\nalpha\ncharlie",
			want: []string{"alpha", "bravo", "charlie"},
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: ErrDictionaryUnavailable,
		},
		{
			name:    "only whitespace",
			raw:     "   \n  \n  ",
			wantErr: ErrDictionaryUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(d.Words(), tt.want) {
				t.Errorf("Words() = %v, want %v", d.Words(), tt.want)
			}
			if d.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", d.Len(), len(tt.want))
			}
		})
	}
}

func TestWordsFromBytes(t *testing.T) {
	d := mustParse(t, testWordList)

	tests := []struct {
		name  string
		data  []byte
		count int
		want  []string
	}{
		{
			name:  "big-endian pairs",
			data:  []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03},
			count: 3,
			want:  []string{"banana", "cherry", "dog"},
		},
		{
			name:  "modulo dictionary size",
			data:  []byte{0x01, 0x00}, // 256 % 10 = 6
			count: 1,
			want:  []string{"garden"},
		},
		{
			name:  "missing bytes read as zero",
			data:  []byte{0x00, 0x09, 0x00},
			count: 3,
			want:  []string{"juice", "apple", "apple"},
		},
		{
			name:  "odd trailing byte is high byte",
			data:  []byte{0x00, 0x00, 0x01},
			count: 2,
			want:  []string{"apple", "garden"},
		},
		{
			name:  "empty input",
			data:  nil,
			count: 2,
			want:  []string{"apple", "apple"},
		},
		{
			name:  "zero count",
			data:  []byte{1, 2, 3, 4},
			count: 0,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.WordsFromBytes(tt.data, tt.count)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WordsFromBytes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWordsFromBytesDeterministic(t *testing.T) {
	d := mustParse(t, string(embeddedWordList))
	data := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}

	a := d.WordsFromBytes(data, 4)
	b := d.WordsFromBytes(data, 4)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("WordsFromBytes not deterministic: %v vs %v", a, b)
	}
}

func TestWordsFromBytesDiffer(t *testing.T) {
	d := mustParse(t, string(embeddedWordList))

	pairs := [][2][]byte{
		{[]byte{1, 2, 3, 4}, []byte{5, 6, 7, 8}},
		{[]byte("offer-token-a"), []byte("offer-token-b")},
		{[]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}, []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x61}},
	}

	for i, p := range pairs {
		a := d.WordsFromBytes(p[0], 8)
		b := d.WordsFromBytes(p[1], 8)
		if reflect.DeepEqual(a, b) {
			t.Errorf("pair %d: expected different words, both %v", i, a)
		}
	}
}

func TestValidateWords(t *testing.T) {
	d := mustParse(t, testWordList)

	if !d.ValidateWords([]string{"apple", "banana", "cherry"}) {
		t.Error("expected known words to validate")
	}
	if d.ValidateWords([]string{"apple", "nonexistent", "cherry"}) {
		t.Error("expected unknown word to fail validation")
	}
	if !d.ValidateWords(nil) {
		t.Error("expected empty list to validate")
	}
}

func TestEmbeddedWordList(t *testing.T) {
	d := mustParse(t, string(embeddedWordList))
	if d.Len() < 256 {
		t.Errorf("embedded list has %d words, want at least 256", d.Len())
	}
	for _, w := range d.Words() {
		for _, r := range w {
			if r < 'a' || r > 'z' {
				t.Fatalf("embedded word %q is not lowercase alphabetic", w)
			}
		}
	}
}
