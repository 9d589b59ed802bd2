package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipv6-provision-backend/config"
)

func TestInit_SQLite(t *testing.T) {
	gdb, err := Init(&config.DatabaseConfig{Driver: "sqlite", DSN: "file:dbtest?mode=memory&cache=shared"})
	require.NoError(t, err)

	for _, m := range Models {
		assert.True(t, gdb.Migrator().HasTable(m))
	}
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
