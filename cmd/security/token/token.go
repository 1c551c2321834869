package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MinHMACKeyBytes is the shortest accepted HMAC key.
const MinHMACKeyBytes = 32

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher digests tokens. The zero value hashes with SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher from a raw key string.
//
// A blank key yields a SHA-256 Hasher unless requireHMAC is set, in which
// case ErrHMACKeyMissing is returned. A non-blank key shorter than
// MinHMACKeyBytes is always rejected.
func NewHasher(rawKey string, requireHMAC bool) (Hasher, error) {
	raw := strings.TrimSpace(rawKey)
	if raw == "" {
		if requireHMAC {
			return Hasher{}, ErrHMACKeyMissing
		}
		return Hasher{}, nil
	}
	if len(raw) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{key: []byte(raw)}, nil
}

// Keyed reports whether h uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the storage digest of tok.
func (h Hasher) Hash(tok string) string {
	if !h.Keyed() {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}
