package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eucl/cmd/internal/auth/session"
)

func secureConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv(EnvConfigFile, "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.Auth.SigningKey = strings.Repeat("k", 32)
	return cfg
}

func TestValidateSecurityConfig_MissingSigningKeyIsFatal(t *testing.T) {
	cfg := secureConfig(t)
	cfg.Auth.SigningKey = ""

	_, err := ValidateSecurityConfig(cfg)
	require.ErrorIs(t, err, session.ErrSigningKeyUnavailable)
}

func TestValidateSecurityConfig(t *testing.T) {
	h, err := ValidateSecurityConfig(secureConfig(t))
	require.NoError(t, err)
	assert.False(t, h.Keyed())

	cfg := secureConfig(t)
	cfg.Token.HMACKey = strings.Repeat("h", 32)
	cfg.Token.RequireHMAC = true
	h, err = ValidateSecurityConfig(cfg)
	require.NoError(t, err)
	assert.True(t, h.Keyed())

	cases := map[string]func(*Config){
		"hmac required but missing": func(c *Config) { c.Token.RequireHMAC = true },
		"postgres revocations without db": func(c *Config) {
			c.Auth.RevocationBackend = RevocationPostgres
		},
		"unknown revocation backend": func(c *Config) { c.Auth.RevocationBackend = "redis" },
		"admin without password":     func(c *Config) { c.Admin.Email = "ops@eucl.rw" },
		"short hs256 key":            func(c *Config) { c.Auth.SigningKey = "short" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := secureConfig(t)
			mutate(&cfg)
			_, err := ValidateSecurityConfig(cfg)
			assert.Error(t, err)
		})
	}
}
