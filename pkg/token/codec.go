package token

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/cryptobyte"
)

// Record tags.
const (
	tagOffer  = 0x01
	tagAnswer = 0x02
)

const (
	flagPeerReadOnly = 0x01

	// maxRecordSize bounds decompressed output.
	maxRecordSize = 1 << 20
)

var wireEncoding = base64.RawURLEncoding

// mnemonicPattern matches 6 to 8 alphabetic words separated by whitespace.
var mnemonicPattern = regexp.MustCompile(`^[A-Za-z]+(\s+[A-Za-z]+){5,7}$`)

// mnemonicWord matches one display word, hyphenated dictionary entries
// included.
var mnemonicWord = regexp.MustCompile(`^[A-Za-z-]+$`)

// Encode serializes t to its wire form.
func Encode(t Token) (string, error) {
	compressed, err := compressedBytes(t)
	if err != nil {
		return "", err
	}
	return wireEncoding.EncodeToString(compressed), nil
}

// Decode parses a wire token.
//
// The result is either an *Offer or an *Answer. All failures wrap
// ErrInvalidTokenFormat; pasted display words fail early with
// ErrMnemonicInput and undecodable data with ErrCorrupt.
func Decode(wire string) (Token, error) {
	compressed, err := wireBytes(wire)
	if err != nil {
		return nil, err
	}

	raw, err := decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	t, err := unmarshalRecord(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// DecodeOffer decodes wire and requires an initiator token.
func DecodeOffer(wire string) (*Offer, error) {
	t, err := Decode(wire)
	if err != nil {
		return nil, err
	}
	o, ok := t.(*Offer)
	if !ok {
		return nil, fmt.Errorf("%w: expected %s token (invite), got %s token", ErrUnexpectedRole, RoleInitiator, t.Role())
	}
	return o, nil
}

// DecodeAnswer decodes wire and requires a responder token.
func DecodeAnswer(wire string) (*Answer, error) {
	t, err := Decode(wire)
	if err != nil {
		return nil, err
	}
	a, ok := t.(*Answer)
	if !ok {
		return nil, fmt.Errorf("%w: expected %s token, got %s token", ErrUnexpectedRole, RoleResponder, t.Role())
	}
	return a, nil
}

// CompressedBytes returns the compressed bytes carried by a wire token,
// without decompressing them.
func CompressedBytes(wire string) ([]byte, error) {
	return wireBytes(wire)
}

func compressedBytes(t Token) ([]byte, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}
	raw, err := marshalRecord(t)
	if err != nil {
		return nil, err
	}
	return compress(raw)
}

// wireBytes undoes the base64url layer after the mnemonic check.
func wireBytes(wire string) ([]byte, error) {
	clean := strings.TrimSpace(wire)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidTokenFormat)
	}
	if looksLikeMnemonic(clean) {
		return nil, ErrMnemonicInput
	}

	data, err := wireEncoding.DecodeString(strings.TrimRight(normalizeWire(clean), "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return data, nil
}

// looksLikeMnemonic is a best-effort check for pasted display words.
func looksLikeMnemonic(s string) bool {
	if mnemonicPattern.MatchString(s) {
		return true
	}
	fields := strings.Fields(s)
	if len(fields) != DisplayWordCount {
		return false
	}
	for _, f := range fields {
		if !mnemonicWord.MatchString(f) {
			return false
		}
	}
	return true
}

// normalizeWire drops whitespace a paste may have introduced.
func normalizeWire(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, maxRecordSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxRecordSize {
		return nil, fmt.Errorf("record exceeds %d bytes", maxRecordSize)
	}
	return raw, nil
}

func marshalRecord(t Token) ([]byte, error) {
	var b cryptobyte.Builder

	switch v := t.(type) {
	case *Offer:
		var flags uint8
		if v.Policy.PeerReadOnly {
			flags |= flagPeerReadOnly
		}
		b.AddUint8(tagOffer)
		b.AddUint8(v.Version)
		addString24(&b, v.TransportOffer)
		addString16(&b, v.FP)
		b.AddUint8(flags)
		b.AddUint32(v.Policy.TTLSeconds)
		b.AddUint64(v.CreatedAtMs)

	case *Answer:
		b.AddUint8(tagAnswer)
		b.AddUint8(v.Version)
		addString24(&b, v.TransportAnswer)
		addString16(&b, v.FP)
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes([]byte(v.AckOfferDigest))
		})
		b.AddUint64(v.CreatedAtMs)

	default:
		return nil, &FieldError{Field: "token", Reason: fmt.Sprintf("unknown token type %T", t)}
	}

	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("token: encode record: %w", err)
	}
	return out, nil
}

func unmarshalRecord(raw []byte) (Token, error) {
	s := cryptobyte.String(raw)

	var tag, version uint8
	if !s.ReadUint8(&tag) {
		return nil, &FieldError{Field: "role", Reason: "missing record tag"}
	}
	if !s.ReadUint8(&version) {
		return nil, &FieldError{Field: "version", Reason: "truncated"}
	}

	var t Token
	switch tag {
	case tagOffer:
		o := &Offer{Version: version}
		var flags uint8
		if !readString24(&s, &o.TransportOffer) {
			return nil, &FieldError{Field: "transportOffer", Reason: "truncated"}
		}
		if !readString16(&s, &o.FP) {
			return nil, &FieldError{Field: "fingerprint", Reason: "truncated"}
		}
		if !s.ReadUint8(&flags) {
			return nil, &FieldError{Field: "policy.peerReadOnly", Reason: "truncated"}
		}
		if flags&^flagPeerReadOnly != 0 {
			return nil, &FieldError{Field: "policy", Reason: fmt.Sprintf("unknown flags 0x%02x", flags)}
		}
		o.Policy.PeerReadOnly = flags&flagPeerReadOnly != 0
		if !s.ReadUint32(&o.Policy.TTLSeconds) {
			return nil, &FieldError{Field: "policy.ttlSeconds", Reason: "truncated"}
		}
		if !s.ReadUint64(&o.CreatedAtMs) {
			return nil, &FieldError{Field: "createdAtMs", Reason: "truncated"}
		}
		t = o

	case tagAnswer:
		a := &Answer{Version: version}
		var digest cryptobyte.String
		if !readString24(&s, &a.TransportAnswer) {
			return nil, &FieldError{Field: "transportAnswer", Reason: "truncated"}
		}
		if !readString16(&s, &a.FP) {
			return nil, &FieldError{Field: "fingerprint", Reason: "truncated"}
		}
		if !s.ReadUint8LengthPrefixed(&digest) {
			return nil, &FieldError{Field: "ackOfferDigest", Reason: "truncated"}
		}
		a.AckOfferDigest = string(digest)
		if !s.ReadUint64(&a.CreatedAtMs) {
			return nil, &FieldError{Field: "createdAtMs", Reason: "truncated"}
		}
		t = a

	default:
		return nil, &FieldError{Field: "role", Reason: fmt.Sprintf("unknown record tag 0x%02x", tag)}
	}

	if !s.Empty() {
		return nil, &FieldError{Field: "token", Reason: fmt.Sprintf("%d trailing bytes", len(s))}
	}
	return t, nil
}

func addString24(b *cryptobyte.Builder, v string) {
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(v))
	})
}

func addString16(b *cryptobyte.Builder, v string) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(v))
	})
}

func readString24(s *cryptobyte.String, out *string) bool {
	var v cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&v) {
		return false
	}
	*out = string(v)
	return true
}

func readString16(s *cryptobyte.String, out *string) bool {
	var v cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&v) {
		return false
	}
	*out = string(v)
	return true
}
