package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eucl/cmd/internal/pgtest"
)

func TestLogAuditor_Record(t *testing.T) {
	var buf bytes.Buffer
	a := LogAuditor{Log: slog.New(slog.NewJSONHandler(&buf, nil))}

	a.Record(context.Background(), AuditEvent{
		Action: ActionLoginFailed,
		IP:     net.ParseIP("203.0.113.9"),
		Meta:   map[string]any{"identifier": "aline@example.rw"},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, ActionLoginFailed, line["action"])
	assert.Equal(t, "203.0.113.9", line["ip"])
	assert.Equal(t, "aline@example.rw", line["identifier"])
	assert.NotContains(t, line, "user_id")
}

func TestAuditors_FanOut(t *testing.T) {
	a, b := &recordingAuditor{}, &recordingAuditor{}
	Auditors{a, nil, b}.Record(context.Background(), AuditEvent{Action: ActionLogout})
	assert.Equal(t, []string{ActionLogout}, a.actions())
	assert.Equal(t, []string{ActionLogout}, b.actions())
}

func TestPostgresAuditor_RecordAndCount(t *testing.T) {
	t.Parallel()
	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool)

	a, err := NewPostgresAuditor(pool, nil, schema)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ip := net.ParseIP("198.51.100.4")
	since := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		a.Record(ctx, AuditEvent{Action: ActionLoginFailed, IP: ip, UserAgent: "curl/8", Meta: map[string]any{"identifier": "x@y.rw"}})
	}
	a.Record(ctx, AuditEvent{Action: ActionLoginSuccess, IP: ip})
	a.Record(ctx, AuditEvent{Action: ActionLoginFailed, IP: net.ParseIP("198.51.100.5")})

	n, err := a.CountLoginFailures(ctx, ip, since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = a.CountLoginFailures(ctx, nil, since)
	require.NoError(t, err)
	assert.Zero(t, n)
}
