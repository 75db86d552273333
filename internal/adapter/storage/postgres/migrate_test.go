package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var schema strings.Builder
	for _, e := range entries {
		body, err := fs.ReadFile(migrations, migrationsDir+"/"+e.Name())
		require.NoError(t, err)
		text := string(body)
		assert.Contains(t, text, "-- +goose Up", e.Name())
		assert.Contains(t, text, "-- +goose Down", e.Name())
		schema.WriteString(text)
	}

	for _, table := range []string{
		"sellers", "products", "wallets", "wallet_movements",
		"orders", "payment_transactions", "webhook_events", "audit_logs",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE "+table+" (", table)
	}
	assert.Contains(t, schema.String(), "dedup_key              TEXT        NOT NULL UNIQUE")
	assert.Contains(t, schema.String(), "idempotency_key       TEXT UNIQUE")
	assert.Contains(t, schema.String(), "ADD COLUMN seq BIGSERIAL")
}
