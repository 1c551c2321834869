package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.EqualValues(t, 1<<20, cfg.MaxBodyBytes)
	assert.Equal(t, 5*time.Minute, cfg.LoginIPWindow)
	assert.Zero(t, cfg.LoginIPMax)

	cfg = Config{MaxBodyBytes: 512, LoginIPWindow: time.Minute, LoginIPMax: 3}.withDefaults()
	assert.EqualValues(t, 512, cfg.MaxBodyBytes)
	assert.Equal(t, time.Minute, cfg.LoginIPWindow)
	assert.Equal(t, 3, cfg.LoginIPMax)
}
