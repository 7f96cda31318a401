package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
	"github.com/warp/retail-ledger/account/storetest"
	"github.com/warp/retail-ledger/store/postgres"
)

// Set LEDGER_TEST_DATABASE_URL to a disposable database to run these.
func openTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := postgres.New(ctx, url, postgres.PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func truncate(t *testing.T, store *postgres.Store) {
	t.Helper()
	require.NoError(t, store.Truncate(context.Background()))
}

func TestPostgres_Contract(t *testing.T) {
	store := openTestStore(t)
	storetest.Run(t, func(t *testing.T) account.Store {
		truncate(t, store)
		return store
	})
}

func TestPostgres_MigrateIsRepeatable(t *testing.T) {
	// GIVEN: A migrated database
	store := openTestStore(t)
	ctx := context.Background()

	// WHEN: Migrating again
	err := store.Migrate(ctx)

	// THEN: Nothing fails and the schema version is set
	require.NoError(t, err)
	version, err := store.Version(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(1))
}
