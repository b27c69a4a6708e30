// Package signature verifies provider webhook payloads signed with a shared
// secret (X-Hub-Signature-256: sha256=<hex>).
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// Header carries the payload signature on every POST event.
	Header = "X-Hub-Signature-256"
	prefix = "sha256="
)

var (
	ErrMissingSignature = errors.New("signature header missing")
	ErrMalformed        = errors.New("signature header malformed")
	ErrNoSecret         = errors.New("tenant has no signing secret configured")
	ErrMismatch         = errors.New("signature mismatch")
)

// Sign returns the header value a provider would send for body.
func Sign(body []byte, secret string) string {
	return prefix + hex.EncodeToString(digest(body, secret))
}

// Verify checks header against an HMAC-SHA256 of the exact raw body bytes.
// Any missing or malformed input is a rejection.
func Verify(body []byte, header, secret string) error {
	if secret == "" {
		return ErrNoSecret
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(header, prefix) {
		return ErrMalformed
	}

	got, err := hex.DecodeString(header[len(prefix):])
	if err != nil || len(got) != sha256.Size {
		return ErrMalformed
	}

	if !hmac.Equal(got, digest(body, secret)) {
		return ErrMismatch
	}
	return nil
}

// VerifyToken compares the handshake verify token in constant time.
// An unconfigured token never matches.
func VerifyToken(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func digest(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
