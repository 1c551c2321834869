package session

import (
	"fmt"
	"strings"
	"time"
)

// Signing algorithms accepted in Config.SigningAlgorithm.
const (
	AlgHS256 = "HS256"
	AlgEdDSA = "EdDSA"
)

// Config is the runtime configuration of the session subsystem.
type Config struct {
	// Issuer is written to and required in the "iss" claim.
	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew is tolerated past an access credential's expiry.
	// Zero means a credential is expired exactly at its embedded expiry.
	ClockSkew time.Duration

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int

	// SigningAlgorithm is AlgHS256 or AlgEdDSA.
	SigningAlgorithm string

	// SigningKey is the raw HS256 secret (>= 32 bytes) or a hex Ed25519
	// seed (32 bytes) or private key (64 bytes).
	SigningKey string

	// SweepInterval is how often expired revocations and refresh rows are pruned.
	SweepInterval time.Duration
}

// DefaultConfig returns production defaults without a signing key.
func DefaultConfig() Config {
	return Config{
		Issuer:            "eucl",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		RefreshTokenBytes: 32,
		SigningAlgorithm:  AlgHS256,
		SweepInterval:     time.Minute,
	}
}

// Validate returns ErrSigningKeyUnavailable when no key is set and ErrConfig
// for any other invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return ErrSigningKeyUnavailable
	}
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("%w: access token ttl must be positive", ErrConfig)
	case c.RefreshTokenTTL <= 0:
		return fmt.Errorf("%w: refresh token ttl must be positive", ErrConfig)
	case c.RefreshTokenTTL < c.AccessTokenTTL:
		return fmt.Errorf("%w: refresh token ttl shorter than access token ttl", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	case c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 64:
		return fmt.Errorf("%w: refresh token bytes must be in [32..64]", ErrConfig)
	case c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep interval must be positive", ErrConfig)
	}
	switch c.SigningAlgorithm {
	case AlgHS256, AlgEdDSA:
	default:
		return fmt.Errorf("%w: unsupported signing algorithm %q", ErrConfig, c.SigningAlgorithm)
	}
	return nil
}
