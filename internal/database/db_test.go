package database_test

import (
	"context"
	"testing"

	"github.com/aristath/adaptivetrader/internal/database"
	testingpkg "github.com/aristath/adaptivetrader/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck_HealthyDatabase(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "registry")
	defer cleanup()

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestHealthCheck_CorruptDatabase(t *testing.T) {
	db := testingpkg.NewCorruptTestDB(t)

	// A ping only proves the file opens
	require.NoError(t, db.QuickCheck(context.Background()))
	assert.Error(t, db.HealthCheck(context.Background()))
}

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "registry")
	defer cleanup()

	require.NoError(t, db.Migrate())

	var rows int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM registry_state").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestNew_LedgerProfile(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    t.TempDir() + "/ledger.db",
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	defer db.Close()

	var sync int
	require.NoError(t, db.Conn().QueryRow("PRAGMA synchronous").Scan(&sync))
	// FULL
	assert.Equal(t, 2, sync)
	assert.Equal(t, 1, db.Conn().Stats().MaxOpenConnections)
}
