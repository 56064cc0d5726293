package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/identity-service/config"
	"github.com/duynhne/identity-service/internal/core/migrations"
)

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverMemory})
	require.NoError(t, err)

	assert.NoError(t, store.Migrate(ctx))
	assert.NoError(t, store.Pinger.Ping(ctx))
	assert.NoError(t, store.Close(ctx))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "00001_create_users.sql")
	assert.Contains(t, names, "00002_create_sessions.sql")
	assert.Contains(t, names, "00003_create_password_resets.sql")
}
