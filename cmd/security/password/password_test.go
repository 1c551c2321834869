package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps argon2 fast in tests.
func cheap() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	cfg := cheap()

	h, err := cfg.Hash("meter-reading 4471!")
	require.NoError(t, err)
	assert.Contains(t, h, "$argon2id$v=19$m=8192,t=1,p=1$")

	ok, err := cfg.Verify(h, "meter-reading 4471!")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cfg.Verify(h, "meter-reading 4472!")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash_SaltsDiffer(t *testing.T) {
	cfg := cheap()
	a, err := cfg.Hash("same password here")
	require.NoError(t, err)
	b, err := cfg.Hash("same password here")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := cheap()
	for _, h := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := cfg.Verify(h, "whatever")
		assert.ErrorIs(t, err, ErrInvalidHash, h)
		assert.False(t, ok)
	}
}

func TestVerify_RefusesExpensiveHash(t *testing.T) {
	strong := cheap()
	strong.Params.Iterations = 5
	h, err := strong.Hash("meter-reading 4471!")
	require.NoError(t, err)

	ok, err := cheap().Verify(h, "meter-reading 4471!")
	assert.ErrorIs(t, err, ErrInvalidHash)
	assert.False(t, ok)
}

func TestNeedsRehash(t *testing.T) {
	cfg := cheap()
	h, err := cfg.Hash("meter-reading 4471!")
	require.NoError(t, err)
	assert.False(t, cfg.NeedsRehash(h))

	next := cfg
	next.Params.Iterations = 2
	assert.True(t, next.NeedsRehash(h))
	assert.True(t, cfg.NeedsRehash("garbage"))
}

func TestValidate_Policy(t *testing.T) {
	cfg := cheap()
	cfg.Policy.MaxLength = 16

	assert.ErrorIs(t, cfg.Validate("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, cfg.Validate("this password is definitely too long"), ErrPasswordTooLong)
	assert.ErrorIs(t, cfg.Validate("password"), ErrWeakPassword)
	assert.ErrorIs(t, cfg.Validate("11111111"), ErrWeakPassword)
	assert.ErrorIs(t, cfg.Validate("12345670"), ErrWeakPassword)
	assert.NoError(t, cfg.Validate("goodpassw0rd!"))

	cfg.Policy.RejectVeryWeak = false
	assert.NoError(t, cfg.Validate("password"))
}
