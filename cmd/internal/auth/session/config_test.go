package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.SigningKey = strings.Repeat("s", 32)
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Zero(t, cfg.ClockSkew)
	assert.Equal(t, AlgHS256, cfg.SigningAlgorithm)
}

func TestConfig_ValidateMissingKeyIsFatal(t *testing.T) {
	err := DefaultConfig().Validate()
	require.ErrorIs(t, err, ErrSigningKeyUnavailable)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(*Config){
		"issuer":        func(c *Config) { c.Issuer = " " },
		"access ttl":    func(c *Config) { c.AccessTokenTTL = 0 },
		"refresh ttl":   func(c *Config) { c.RefreshTokenTTL = -time.Hour },
		"ttl order":     func(c *Config) { c.RefreshTokenTTL = time.Minute },
		"skew":          func(c *Config) { c.ClockSkew = -time.Second },
		"refresh bytes": func(c *Config) { c.RefreshTokenBytes = 16 },
		"sweep":         func(c *Config) { c.SweepInterval = 0 },
		"alg":           func(c *Config) { c.SigningAlgorithm = "none" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfig)
		})
	}
}
