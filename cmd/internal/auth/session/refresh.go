package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"eucl/cmd/security/token"
)

// maxRefreshTokenLen bounds presented tokens before hashing.
const maxRefreshTokenLen = 4096

// RefreshCredential is an opaque, single-use refresh token bound to an identity.
// Token is the plaintext given to the client; stores keep only its hash.
type RefreshCredential struct {
	Token      string
	IdentityID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the credential is expired at now.
func (c RefreshCredential) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// RefreshStore persists refresh credentials.
//
// Rotate must be atomic: of any number of concurrent rotations of the same
// credential exactly one succeeds and the rest get ErrRefreshNotFound.
type RefreshStore interface {
	Create(ctx context.Context, identityID string, now time.Time) (RefreshCredential, error)
	// Validate returns ErrRefreshNotFound or ErrRefreshExpired. An expired
	// row is deleted before returning.
	Validate(ctx context.Context, token string, now time.Time) (RefreshCredential, error)
	Rotate(ctx context.Context, old RefreshCredential, now time.Time) (RefreshCredential, error)
	// Delete is idempotent.
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// refreshMinter generates tokens and their storage digests.
type refreshMinter struct {
	ttl    time.Duration
	nBytes int
	hasher token.Hasher
}

func newRefreshMinter(cfg Config, hasher token.Hasher) refreshMinter {
	m := refreshMinter{ttl: cfg.RefreshTokenTTL, nBytes: cfg.RefreshTokenBytes, hasher: hasher}
	if m.ttl <= 0 {
		m.ttl = DefaultConfig().RefreshTokenTTL
	}
	if m.nBytes < 32 {
		m.nBytes = 32
	}
	return m
}

func (m refreshMinter) mint(identityID string, now time.Time) (RefreshCredential, string, error) {
	b := make([]byte, m.nBytes)
	if _, err := rand.Read(b); err != nil {
		return RefreshCredential{}, "", err
	}
	// URL-safe, no padding.
	plain := base64.RawURLEncoding.EncodeToString(b)

	return RefreshCredential{
		Token:      plain,
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}, m.hasher.Hash(plain), nil
}

// digest hashes a presented token, rejecting blank or oversized input.
func (m refreshMinter) digest(tok string) (string, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxRefreshTokenLen {
		return "", false
	}
	return m.hasher.Hash(tok), true
}
