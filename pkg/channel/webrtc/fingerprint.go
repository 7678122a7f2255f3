package webrtc

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

const fingerprintAlgorithm = "sha-256"

// ExtractFingerprint returns the sha-256 DTLS fingerprint of an SDP blob.
//
// The session-level attribute is preferred; otherwise the first media
// section that carries one is used. The result is the colon-separated hex
// digest without the algorithm name.
func ExtractFingerprint(raw string) (string, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return "", fmt.Errorf("webrtc: parse SDP: %w", err)
	}

	if v, ok := desc.Attribute("fingerprint"); ok {
		if fp, ok := parseFingerprint(v); ok {
			return fp, nil
		}
	}
	for _, m := range desc.MediaDescriptions {
		if v, ok := m.Attribute("fingerprint"); ok {
			if fp, ok := parseFingerprint(v); ok {
				return fp, nil
			}
		}
	}
	return "", ErrNoFingerprint
}

// parseFingerprint splits "sha-256 AB:CD:..." and keeps the digest.
func parseFingerprint(value string) (string, bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 || !strings.EqualFold(fields[0], fingerprintAlgorithm) {
		return "", false
	}
	return strings.ToUpper(fields[1]), true
}
