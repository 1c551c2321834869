package app

import (
	"fmt"

	"eucl/cmd/internal/auth/session"
	"eucl/cmd/security/token"
)

// ValidateSecurityConfig enforces eucl's security policy at startup.
// A missing signing key surfaces as session.ErrSigningKeyUnavailable and
// the process must not start.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	if err := cfg.Session().Validate(); err != nil {
		return token.Hasher{}, fmt.Errorf("security policy: %w", err)
	}
	// Building a signer checks the key material as well as its presence.
	if _, err := session.NewJWTSigner(cfg.Session()); err != nil {
		return token.Hasher{}, fmt.Errorf("security policy: %w", err)
	}

	hasher, err := token.NewHasher(cfg.Token.HMACKey, cfg.Token.RequireHMAC)
	if err != nil {
		return token.Hasher{}, fmt.Errorf("security policy: token hashing: %w", err)
	}
	// Extra hard assertion: the hasher must be keyed when policy demands it.
	if cfg.Token.RequireHMAC && !hasher.Keyed() {
		return token.Hasher{}, fmt.Errorf("security policy: token hmac required but hasher is not keyed")
	}

	switch cfg.Auth.RevocationBackend {
	case RevocationMemory:
	case RevocationPostgres:
		if !cfg.dbEnabled() {
			return token.Hasher{}, fmt.Errorf("%w: auth.revocation_backend=postgres requires database.url", errConfig)
		}
	default:
		return token.Hasher{}, fmt.Errorf("%w: unknown auth.revocation_backend %q", errConfig, cfg.Auth.RevocationBackend)
	}

	if cfg.Admin.Email != "" && cfg.Admin.Password == "" {
		return token.Hasher{}, fmt.Errorf("%w: admin.email is set but admin.password is empty", errConfig)
	}
	return hasher, nil
}
