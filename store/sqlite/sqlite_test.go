package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
	"github.com/warp/retail-ledger/account/storetest"
	"github.com/warp/retail-ledger/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLite_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) account.Store { return newTestStore(t) })
}

func TestSQLite_SubSecondTimestampsRoundTrip(t *testing.T) {
	// GIVEN: A movement created with nanosecond precision
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, time.March, 1, 9, 0, 0, 123456789, time.UTC)

	m, err := account.NewMovement(account.MovementInput{
		CustomerID:  "c-1",
		Kind:        account.KindDebitNote,
		Amount:      decimal.RequireFromString("0.01"),
		Description: "rounding fix",
	}, at)
	require.NoError(t, err)
	require.NoError(t, store.Movements().Save(ctx, m))

	// WHEN: Reading it back
	got, err := store.Movements().FindByID(ctx, m.ID)
	require.NoError(t, err)

	// THEN: Nothing is lost
	assert.True(t, at.Equal(got.CreatedAt))
	assert.Equal(t, "0.01", got.Amount.String())
}

func TestSQLite_ServiceRoundTrip(t *testing.T) {
	// GIVEN: The ledger service running on SQLite
	store := newTestStore(t)
	ctx := context.Background()
	clock := account.NewFixedClock(account.Date(2025, time.March, 1))
	svc := account.NewService(store, account.WithClock(clock))

	c, err := svc.CreateCustomer(ctx, account.CustomerInput{Name: "Ana", NationalID: "20-1", HasCurrentAccount: true})
	require.NoError(t, err)

	// WHEN: Charging and reversing a sale
	sale := account.NewSaleRef("sale-1", "T-1", clock.Now(), decimal.NewFromInt(250))
	clock.Advance(time.Minute)
	_, err = svc.ChargeSale(ctx, sale, "20-1", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.ReverseSale(ctx, sale, "")
	require.NoError(t, err)

	// THEN: Debt is zero and both movements are linked to the sale
	st, err := svc.Statement(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, st.TotalDebt.IsZero())
	assert.Len(t, st.Lines, 2)

	linked, err := store.Movements().FindBySourceDocument(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, linked, 2)
}
