package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/api"
	"github.com/warp/retail-ledger/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LEDGER_DATABASE_PATH", filepath.Join(dir, "ledger.db"))

	c, err := config.Load("")
	require.NoError(t, err)
	return c
}

func TestOpenApp_SQLite(t *testing.T) {
	// GIVEN: Default config pointing at a temp SQLite file
	c := testConfig(t)
	ctx := context.Background()

	// WHEN: Opening the app and loading a scenario through its service
	a, err := openApp(ctx, c, zerolog.Nop(), appOptions{withMetrics: true})
	require.NoError(t, err)
	defer a.close()
	require.NoError(t, api.LoadScenario(ctx, a.service, "pos-sale"))

	// THEN: The store answers pings and the ledger is consistent
	assert.NoError(t, a.ping(ctx))
	assert.NotNil(t, a.metrics)
	drifts, err := a.service.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.False(t, drifts[0].Repaired)
}

func TestSeedCommand_ListsScenarios(t *testing.T) {
	testConfig(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"seed"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	for _, s := range api.Scenarios() {
		assert.Contains(t, out.String(), s.ID)
	}
}

func TestSeedAndReconcileCommands(t *testing.T) {
	// GIVEN: A fresh database
	testConfig(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	// WHEN: Seeding two scenarios and reconciling
	rootCmd.SetArgs([]string{"seed", "--scenario", "partial-payments", "--scenario", "overdue"})
	require.NoError(t, rootCmd.Execute())
	seedScenarios = nil

	rootCmd.SetArgs([]string{"reconcile"})
	require.NoError(t, rootCmd.Execute())

	// THEN: Both customers were checked and none needed repair
	assert.Contains(t, out.String(), "checked 2, repaired 0")
}
