package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Check(t *testing.T) {
	require.NoError(t, DefaultConfig().Check())
}

func TestConfig_CheckRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"memory":      func(c *Config) { c.Params.MemoryKiB = 0 },
		"iterations":  func(c *Config) { c.Params.Iterations = 0 },
		"parallelism": func(c *Config) { c.Params.Parallelism = 0 },
		"salt":        func(c *Config) { c.Params.SaltLength = 4 },
		"key":         func(c *Config) { c.Params.KeyLength = 8 },
		"min max":     func(c *Config) { c.Policy.MinLength, c.Policy.MaxLength = 20, 10 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Check(), ErrInvalidConfig)
		})
	}
}
