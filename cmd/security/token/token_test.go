package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("k", MinHMACKeyBytes)

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("", false)
	require.NoError(t, err)
	assert.False(t, h.Keyed())

	_, err = NewHasher("  ", true)
	assert.ErrorIs(t, err, ErrHMACKeyMissing)

	_, err = NewHasher("short", false)
	assert.ErrorIs(t, err, ErrHMACKeyTooShort)

	h, err = NewHasher(" "+testKey+" ", true)
	require.NoError(t, err)
	assert.True(t, h.Keyed())
}

func TestHasher_Hash(t *testing.T) {
	var plain Hasher
	assert.Equal(t, HashSHA256Hex("abc"), plain.Hash("abc"))
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		plain.Hash("abc"))

	keyed, err := NewHasher(testKey, true)
	require.NoError(t, err)
	got := keyed.Hash("abc")
	assert.Len(t, got, 64)
	assert.Equal(t, HashHMACSHA256Hex("abc", []byte(testKey)), got)
	assert.NotEqual(t, plain.Hash("abc"), got)
	assert.Equal(t, got, keyed.Hash("abc"))
}
