package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eucl/cmd/security/token"
)

const testIdentityID = "2f1c6a0e-8d4b-4b7a-9a51-3f0c2e9b7d11"

func newMemoryRefresh(t *testing.T) *MemoryRefreshStore {
	t.Helper()
	h, err := token.NewHasher("", false)
	require.NoError(t, err)
	return NewMemoryRefreshStore(validConfig(), h)
}

func TestMemoryRefreshStore_CreateValidate(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	cred, err := s.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)
	assert.Len(t, cred.Token, 43) // 32 bytes, base64url without padding
	assert.Equal(t, testIdentityID, cred.IdentityID)
	assert.True(t, t0.Add(7*24*time.Hour).Equal(cred.ExpiresAt))

	got, err := s.Validate(ctx, cred.Token, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, testIdentityID, got.IdentityID)
	assert.True(t, cred.ExpiresAt.Equal(got.ExpiresAt))

	other, err := s.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)
	assert.NotEqual(t, cred.Token, other.Token)
}

func TestMemoryRefreshStore_ValidateUnknown(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	for _, tok := range []string{"", "   ", "does-not-exist", string(make([]byte, maxRefreshTokenLen+1))} {
		_, err := s.Validate(ctx, tok, t0)
		assert.ErrorIs(t, err, ErrRefreshNotFound)
	}
}

func TestMemoryRefreshStore_ValidateExpiredDeletesRow(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	cred, err := s.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)

	_, err = s.Validate(ctx, cred.Token, cred.ExpiresAt)
	require.ErrorIs(t, err, ErrRefreshExpired)
	assert.Equal(t, 0, s.Len())

	_, err = s.Validate(ctx, cred.Token, t0)
	assert.ErrorIs(t, err, ErrRefreshNotFound)
}

func TestMemoryRefreshStore_Rotate(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	old, err := s.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)

	now := t0.Add(time.Hour)
	next, err := s.Rotate(ctx, old, now)
	require.NoError(t, err)
	assert.NotEqual(t, old.Token, next.Token)
	assert.Equal(t, testIdentityID, next.IdentityID)
	assert.True(t, now.Add(7*24*time.Hour).Equal(next.ExpiresAt))

	_, err = s.Validate(ctx, old.Token, now)
	assert.ErrorIs(t, err, ErrRefreshNotFound)
	_, err = s.Validate(ctx, next.Token, now)
	assert.NoError(t, err)

	_, err = s.Rotate(ctx, old, now)
	assert.ErrorIs(t, err, ErrRefreshNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryRefreshStore_RotateExpired(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	old, err := s.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)

	_, err = s.Rotate(ctx, old, old.ExpiresAt.Add(time.Second))
	require.ErrorIs(t, err, ErrRefreshExpired)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryRefreshStore_ConcurrentRotateSingleWinner(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	old, err := s.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)

	const n = 32
	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		notFound atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Rotate(ctx, old, t0.Add(time.Minute))
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, ErrRefreshNotFound):
				notFound.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, n-1, notFound.Load())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryRefreshStore_DeleteIsIdempotent(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	cred, err := s.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, cred.Token))
	require.NoError(t, s.Delete(ctx, cred.Token))
	require.NoError(t, s.Delete(ctx, ""))

	_, err = s.Validate(ctx, cred.Token, t0)
	assert.ErrorIs(t, err, ErrRefreshNotFound)
}

func TestMemoryRefreshStore_DeleteExpired(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, testIdentityID, t0)
		require.NoError(t, err)
	}
	live, err := s.Create(ctx, testIdentityID, t0.Add(24*time.Hour))
	require.NoError(t, err)

	n, err := s.DeleteExpired(ctx, t0.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, 1, s.Len())

	_, err = s.Validate(ctx, live.Token, t0.Add(7*24*time.Hour))
	assert.NoError(t, err)
}

func TestMemoryRefreshStore_CreateRejectsEmptyIdentity(t *testing.T) {
	s := newMemoryRefresh(t)
	_, err := s.Create(context.Background(), "", t0)
	assert.Error(t, err)
}

func TestMemoryRefreshStore_HonorsContext(t *testing.T) {
	s := newMemoryRefresh(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, testIdentityID, t0)
	assert.ErrorIs(t, err, context.Canceled)
}
