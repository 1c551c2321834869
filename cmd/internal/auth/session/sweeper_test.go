package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	refresh := newMemoryRefresh(t)
	revocations := NewMemoryRevocationRegistry(WithRevocationClock(func() time.Time { return t0 }))
	m := NewMetrics(prometheus.NewRegistry())

	_, err := refresh.Create(ctx, testIdentityID, t0)
	require.NoError(t, err)
	_, err = refresh.Create(ctx, testIdentityID, t0.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, revocations.Revoke(ctx, "a", t0.Add(time.Minute)))
	require.NoError(t, revocations.Revoke(ctx, "b", t0.Add(time.Hour)))

	s := NewSweeper(refresh, revocations, time.Minute, discardLogger(), m)
	s.SweepOnce(ctx, t0.Add(7*24*time.Hour))

	assert.Equal(t, 1, refresh.Len())
	assert.Zero(t, revocations.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.swept.WithLabelValues("refresh")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.swept.WithLabelValues("revocation")))
	assert.Zero(t, testutil.ToFloat64(m.revocations))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	refresh := newMemoryRefresh(t)
	revocations := NewMemoryRevocationRegistry()

	_, err := refresh.Create(context.Background(), testIdentityID, time.Now().UTC().Add(-8*24*time.Hour))
	require.NoError(t, err)

	s := NewSweeper(refresh, revocations, 5*time.Millisecond, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return refresh.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(nil, nil, 0, nil, nil)
	assert.Equal(t, DefaultConfig().SweepInterval, s.interval)
	assert.NotNil(t, s.log)
	s.SweepOnce(context.Background(), t0)
}
