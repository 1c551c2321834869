package session

import (
	"time"

	"eucl/cmd/identity"
)

// AccessCredential is a freshly minted access token with its metadata.
type AccessCredential struct {
	Token      string
	ID         string
	IdentityID string
	Subject    string
	Roles      identity.RoleSet
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// AccessClaims is what a verified access token asserts.
type AccessClaims struct {
	CredentialID string
	IdentityID   string
	Subject      string
	Issuer       string
	Roles        identity.RoleSet
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// HasRole reports whether the claims grant r.
func (c AccessClaims) HasRole(r identity.Role) bool { return c.Roles.Has(r) }

// Signer mints and verifies access tokens. It holds no mutable state.
type Signer interface {
	Mint(u identity.User, now time.Time) (AccessCredential, error)
	// Verify returns ErrTokenExpired, ErrTokenMalformed or
	// ErrTokenSignatureInvalid on failure.
	Verify(token string, now time.Time) (AccessClaims, error)
	// Leeway is how long past its embedded expiry Verify still accepts a token.
	Leeway() time.Duration
}
