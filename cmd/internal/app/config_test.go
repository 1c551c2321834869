package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Database.URL)
	assert.True(t, cfg.Database.Migrate)
	assert.EqualValues(t, 10, cfg.Database.MaxConns)

	assert.Equal(t, "eucl", cfg.Auth.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Zero(t, cfg.Auth.ClockSkew)
	assert.Equal(t, 32, cfg.Auth.RefreshTokenBytes)
	assert.Equal(t, "HS256", cfg.Auth.SigningAlg)
	assert.Equal(t, time.Minute, cfg.Auth.SweepInterval)
	assert.Equal(t, RevocationMemory, cfg.Auth.RevocationBackend)
	assert.EqualValues(t, 1<<20, cfg.Auth.MaxBodyBytes)
	assert.Empty(t, cfg.Auth.SigningKey)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("EUCL_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("EUCL_AUTH_ACCESS_TTL", "5m")
	t.Setenv("EUCL_AUTH_SIGNING_KEY", "env-signing-key-env-signing-key-!")
	t.Setenv("EUCL_AUTH_REVOCATION_BACKEND", " Postgres ")
	t.Setenv("EUCL_DATABASE_MAX_CONNS", "4")
	t.Setenv("EUCL_PASSWORD_PARALLELISM", "2")
	t.Setenv("EUCL_TOKEN_REQUIRE_HMAC", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, "env-signing-key-env-signing-key-!", cfg.Auth.SigningKey)
	assert.Equal(t, RevocationPostgres, cfg.Auth.RevocationBackend)
	assert.EqualValues(t, 4, cfg.Database.MaxConns)
	assert.EqualValues(t, 2, cfg.Password.Parallelism)
	assert.True(t, cfg.Token.RequireHMAC)

	sess := cfg.Session()
	assert.Equal(t, 5*time.Minute, sess.AccessTokenTTL)
	assert.Equal(t, cfg.Auth.SigningKey, sess.SigningKey)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eucl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: "127.0.0.1:7000"
auth:
  refresh_ttl: 24h
  signing_key: file-signing-key-file-signing-key
admin:
  email: ops@eucl.rw
`), 0o600))

	t.Setenv(EnvConfigFile, path)
	t.Setenv("EUCL_HTTP_ADDR", "127.0.0.1:7001")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.HTTP.Addr, "env overrides file")
	assert.Equal(t, 24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "file-signing-key-file-signing-key", cfg.Auth.SigningKey)
	assert.Equal(t, "ops@eucl.rw", cfg.Admin.Email)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfig_Passwords(t *testing.T) {
	cfg := Config{Password: PasswordConfig{MemoryKiB: 16 * 1024, Iterations: 2, Parallelism: 1, MinLength: 10}}
	pw, err := cfg.Passwords()
	require.NoError(t, err)
	assert.EqualValues(t, 16*1024, pw.Params.MemoryKiB)
	assert.EqualValues(t, 2, pw.Params.Iterations)
	assert.EqualValues(t, 1, pw.Params.Parallelism)
	assert.Equal(t, 10, pw.Policy.MinLength)
}
