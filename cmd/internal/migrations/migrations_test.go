package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_ContainsInit(t *testing.T) {
	raw, err := FS.ReadFile("00001_init.sql")
	require.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, "-- +goose Up")
	assert.Contains(t, s, "-- +goose Down")
	assert.Contains(t, s, "eucl.refresh_tokens")
	assert.Contains(t, s, "eucl.revoked_credentials")
}

func TestUpSQL_RenamesSchemaAndDropsDown(t *testing.T) {
	sql, err := UpSQL("eucl_it_01abc")
	require.NoError(t, err)

	assert.Contains(t, sql, "CREATE SCHEMA IF NOT EXISTS eucl_it_01abc;")
	assert.Contains(t, sql, "eucl_it_01abc.users")
	assert.Contains(t, sql, "REFERENCES eucl_it_01abc.users(id)")
	assert.NotContains(t, sql, "DROP TABLE")
	assert.NotContains(t, sql, " eucl.")
	assert.False(t, strings.Contains(sql, "(eucl."))
}
