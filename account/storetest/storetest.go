/*
Package storetest is the contract every account.Store implementation must
satisfy. Each backend calls Run from its own tests:

	func TestContract(t *testing.T) {
	    storetest.Run(t, func(t *testing.T) account.Store { return newStore(t) })
	}

Times use whole seconds so that backends with microsecond precision
compare equal.
*/
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) account.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("Customers", func(t *testing.T) { testCustomers(t, newStore(t)) })
	t.Run("CustomerSearch", func(t *testing.T) { testCustomerSearch(t, newStore(t)) })
	t.Run("Invoices", func(t *testing.T) { testInvoices(t, newStore(t)) })
	t.Run("InvoiceQueries", func(t *testing.T) { testInvoiceQueries(t, newStore(t)) })
	t.Run("MovementsAppendOnly", func(t *testing.T) { testMovementsAppendOnly(t, newStore(t)) })
	t.Run("MovementOrderAndLatestBalance", func(t *testing.T) { testMovementOrder(t, newStore(t)) })
	t.Run("MovementLookups", func(t *testing.T) { testMovementLookups(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
}

// =============================================================================
// HELPERS
// =============================================================================

var base = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, dec(want).String(), got.String(), msgAndArgs...)
}

func saveCustomer(t *testing.T, st account.Store, name, nationalID string) *account.Customer {
	t.Helper()
	c, err := account.NewCustomer(account.CustomerInput{
		Name:              name,
		NationalID:        nationalID,
		HasCurrentAccount: true,
	}, base)
	require.NoError(t, err)
	require.NoError(t, st.Customers().Save(context.Background(), c))
	require.NotEmpty(t, c.ID, "save must assign an id")
	return c
}

func saveInvoice(t *testing.T, st account.Store, customerID account.CustomerID, number string, issue, due time.Time, total string) *account.Invoice {
	t.Helper()
	inv, err := account.NewInvoice(account.InvoiceInput{
		Number:     number,
		CustomerID: customerID,
		IssueDate:  issue,
		DueDate:    due,
		Total:      dec(total),
	}, base)
	require.NoError(t, err)
	require.NoError(t, st.Invoices().Save(context.Background(), inv))
	require.NotEmpty(t, inv.ID)
	return inv
}

func newMovement(t *testing.T, customerID account.CustomerID, kind account.Kind, amount, prev string, at time.Time) *account.Movement {
	t.Helper()
	m, err := account.NewMovement(account.MovementInput{
		CustomerID:      customerID,
		Kind:            kind,
		Amount:          dec(amount),
		Description:     string(kind),
		PreviousBalance: dec(prev),
	}, at)
	require.NoError(t, err)
	return m
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func testCustomers(t *testing.T, st account.Store) {
	ctx := context.Background()
	c := saveCustomer(t, st, "Ana Gomez", "20-11111111-1")

	got, err := st.Customers().FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana Gomez", got.Name)
	assert.True(t, got.HasCurrentAccount)
	assertDecimal(t, "0", got.Balance)
	assert.True(t, base.Equal(got.CreatedAt))

	// Save on an existing id updates in place.
	got.IncreaseDebt(dec("150.25"), base.Add(time.Hour))
	require.NoError(t, st.Customers().Save(ctx, got))
	again, err := st.Customers().FindByID(ctx, c.ID)
	require.NoError(t, err)
	assertDecimal(t, "150.25", again.Balance)

	byNID, err := st.Customers().FindByNationalID(ctx, "20-11111111-1")
	require.NoError(t, err)
	require.NotNil(t, byNID)
	assert.Equal(t, c.ID, byNID.ID)

	missing, err := st.Customers().FindByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing, "absent customers are (nil, nil)")

	missing, err = st.Customers().FindByNationalID(ctx, "99-99999999-9")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, st.Customers().Delete(ctx, c.ID))
	gone, err := st.Customers().FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	err = st.Customers().Delete(ctx, c.ID)
	assert.True(t, account.IsNotFound(err), "deleting twice reports not found, got %v", err)
}

func testCustomerSearch(t *testing.T, st account.Store) {
	ctx := context.Background()
	saveCustomer(t, st, "Bruno Diaz", "20-22222222-2")
	saveCustomer(t, st, "Ana Gomez", "27-33333333-3")
	saveCustomer(t, st, "Carla Bruni", "")

	all, err := st.Customers().FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Ana Gomez", all[0].Name, "customers are listed by name")

	found, err := st.Customers().Search(ctx, "bru")
	require.NoError(t, err)
	assert.Len(t, found, 2, "search is case-insensitive on name")

	found, err = st.Customers().Search(ctx, "33333333")
	require.NoError(t, err)
	require.Len(t, found, 1, "search matches national id")
	assert.Equal(t, "Ana Gomez", found[0].Name)

	found, err = st.Customers().Search(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, found)
}

// =============================================================================
// INVOICES
// =============================================================================

func testInvoices(t *testing.T, st account.Store) {
	ctx := context.Background()
	c := saveCustomer(t, st, "Ana Gomez", "")
	inv := saveInvoice(t, st, c.ID, "A-0001", base, base.AddDate(0, 0, 10), "1000")

	got, err := st.Invoices().FindByID(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A-0001", got.Number)
	assert.Equal(t, c.ID, got.CustomerID)
	assertDecimal(t, "1000", got.Total)
	assertDecimal(t, "0", got.AmountPaid)
	assert.True(t, base.AddDate(0, 0, 10).Equal(got.DueDate))

	require.NoError(t, got.ApplyPayment(dec("400"), base.Add(time.Hour)))
	require.NoError(t, st.Invoices().Save(ctx, got))
	again, err := st.Invoices().FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assertDecimal(t, "400", again.AmountPaid)
	assertDecimal(t, "600", again.RemainingBalance())

	missing, err := st.Invoices().FindByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testInvoiceQueries(t *testing.T, st account.Store) {
	ctx := context.Background()
	ana := saveCustomer(t, st, "Ana Gomez", "")
	bruno := saveCustomer(t, st, "Bruno Diaz", "")
	asOf := base.AddDate(0, 1, 0)

	overdue := saveInvoice(t, st, ana.ID, "A-1", base, asOf.AddDate(0, 0, -3), "100")
	dueSoon := saveInvoice(t, st, ana.ID, "A-2", base, asOf.AddDate(0, 0, 2), "200")
	later := saveInvoice(t, st, ana.ID, "A-3", base, asOf.AddDate(0, 0, 30), "300")
	paid := saveInvoice(t, st, ana.ID, "A-4", base, asOf.AddDate(0, 0, 1), "50")
	other := saveInvoice(t, st, bruno.ID, "B-1", base, asOf.AddDate(0, 0, -1), "70")

	require.NoError(t, paid.ApplyPayment(dec("50"), base))
	require.NoError(t, st.Invoices().Save(ctx, paid))

	byCustomer, err := st.Invoices().FindByCustomer(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 4)

	pending, err := st.Invoices().FindPending(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []account.InvoiceID{overdue.ID, dueSoon.ID, later.ID}, invoiceIDs(pending), "pending excludes paid, ordered by due date")

	pendingAll, err := st.Invoices().FindPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, pendingAll, 4, "empty customer id means every customer")

	soon, err := st.Invoices().FindDueWithin(ctx, 5, asOf, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []account.InvoiceID{dueSoon.ID}, invoiceIDs(soon))

	late, err := st.Invoices().FindOverdue(ctx, asOf, "")
	require.NoError(t, err)
	assert.Equal(t, []account.InvoiceID{overdue.ID, other.ID}, invoiceIDs(late))

	all, err := st.Invoices().FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func invoiceIDs(invs []account.Invoice) []account.InvoiceID {
	ids := make([]account.InvoiceID, 0, len(invs))
	for _, inv := range invs {
		ids = append(ids, inv.ID)
	}
	return ids
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func testMovementsAppendOnly(t *testing.T, st account.Store) {
	ctx := context.Background()
	c := saveCustomer(t, st, "Ana Gomez", "")

	m := newMovement(t, c.ID, account.KindSaleCharge, "250", "0", base)
	m.IdempotencyKey = "sale-charge:S-1"
	require.NoError(t, st.Movements().Save(ctx, m))
	require.NotEmpty(t, m.ID)

	// Same id again
	dup := *m
	dup.IdempotencyKey = ""
	err := st.Movements().Save(ctx, &dup)
	assert.True(t, errors.Is(err, account.ErrMovementExists), "re-saving an id must fail, got %v", err)

	// Same idempotency key, new id
	again := newMovement(t, c.ID, account.KindSaleCharge, "250", "250", base.Add(time.Minute))
	again.IdempotencyKey = "sale-charge:S-1"
	err = st.Movements().Save(ctx, again)
	assert.True(t, errors.Is(err, account.ErrDuplicateIdempotencyKey), "reused key must fail, got %v", err)

	all, err := st.Movements().FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed saves leave nothing behind")
}

func testMovementOrder(t *testing.T, st account.Store) {
	ctx := context.Background()
	c := saveCustomer(t, st, "Ana Gomez", "")
	other := saveCustomer(t, st, "Bruno Diaz", "")

	latest, err := st.Movements().LatestBalance(ctx, c.ID)
	require.NoError(t, err)
	assertDecimal(t, "0", latest, "no movements means zero")

	first := newMovement(t, c.ID, account.KindInvoiceCharge, "1000", "0", base)
	second := newMovement(t, c.ID, account.KindPartialPayment, "400", "1000", base.Add(time.Hour))
	third := newMovement(t, other.ID, account.KindInvoiceCharge, "70", "0", base.Add(2*time.Hour))
	for _, m := range []*account.Movement{first, second, third} {
		require.NoError(t, st.Movements().Save(ctx, m))
	}

	got, err := st.Movements().FindByCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	assert.Equal(t, account.KindPartialPayment, got[1].Kind)
	assertDecimal(t, "1000", got[1].PreviousBalance)
	assertDecimal(t, "600", got[1].CurrentBalance)
	assert.True(t, base.Add(time.Hour).Equal(got[1].CreatedAt))

	latest, err = st.Movements().LatestBalance(ctx, c.ID)
	require.NoError(t, err)
	assertDecimal(t, "600", latest)

	latest, err = st.Movements().LatestBalance(ctx, other.ID)
	require.NoError(t, err)
	assertDecimal(t, "70", latest)

	// An imported row with an older CreatedAt still becomes the latest.
	imported := newMovement(t, c.ID, account.KindDebitNote, "15", "600", base.Add(-time.Hour))
	require.NoError(t, st.Movements().Save(ctx, imported))
	latest, err = st.Movements().LatestBalance(ctx, c.ID)
	require.NoError(t, err)
	assertDecimal(t, "615", latest)
}

func testMovementLookups(t *testing.T, st account.Store) {
	ctx := context.Background()
	c := saveCustomer(t, st, "Ana Gomez", "")

	charge := newMovement(t, c.ID, account.KindSaleCharge, "250", "0", base)
	charge.Source = &account.SourceDocument{ID: "sale-1", Number: "T-0001"}
	charge.IdempotencyKey = "sale-charge:sale-1"
	charge.UserID = "cashier-7"
	charge.Notes = "counter 2"
	require.NoError(t, st.Movements().Save(ctx, charge))

	reversal := newMovement(t, c.ID, account.KindReversal, "250", "250", base.Add(time.Hour))
	reversal.Source = &account.SourceDocument{ID: "sale-1", Number: "T-0001"}
	reversal.ReversalOf = charge.ID
	require.NoError(t, st.Movements().Save(ctx, reversal))

	unrelated := newMovement(t, c.ID, account.KindDebitNote, "10", "0", base.Add(2*time.Hour))
	require.NoError(t, st.Movements().Save(ctx, unrelated))

	byID, err := st.Movements().FindByID(ctx, charge.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.NotNil(t, byID.Source)
	assert.Equal(t, "T-0001", byID.Source.Number)
	assert.Equal(t, "cashier-7", byID.UserID)
	assert.Equal(t, "counter 2", byID.Notes)
	assert.True(t, base.Equal(byID.Date))

	bySource, err := st.Movements().FindBySourceDocument(ctx, "sale-1")
	require.NoError(t, err)
	require.Len(t, bySource, 2)
	assert.Equal(t, charge.ID, bySource[1].ReversalOf)

	byKey, err := st.Movements().FindByIdempotencyKey(ctx, "sale-charge:sale-1")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, charge.ID, byKey.ID)

	none, err := st.Movements().FindByIdempotencyKey(ctx, "sale-charge:nope")
	require.NoError(t, err)
	assert.Nil(t, none)

	none, err = st.Movements().FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, none)

	noSource, err := st.Movements().FindByID(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Nil(t, noSource.Source, "movements without a source keep a nil link")
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func testTxRollback(t *testing.T, st account.Store) {
	txs, ok := st.(account.TxStore)
	if !ok {
		t.Skip("store has no transactions")
	}
	ctx := context.Background()
	c := saveCustomer(t, st, "Ana Gomez", "")
	boom := errors.New("boom")

	err := txs.WithTx(ctx, func(tx account.Store) error {
		got, err := tx.Customers().FindByID(ctx, c.ID)
		require.NoError(t, err)
		got.IncreaseDebt(dec("100"), base)
		require.NoError(t, tx.Customers().Save(ctx, got))
		require.NoError(t, tx.Movements().Save(ctx, newMovement(t, c.ID, account.KindDebitNote, "100", "0", base)))

		// Reads inside the transaction see its own writes.
		latest, err := tx.Movements().LatestBalance(ctx, c.ID)
		require.NoError(t, err)
		assertDecimal(t, "100", latest)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := st.Customers().FindByID(ctx, c.ID)
	require.NoError(t, err)
	assertDecimal(t, "0", got.Balance, "customer update rolled back")
	ms, err := st.Movements().FindByCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, ms, "movement insert rolled back")
}

func testTxCommit(t *testing.T, st account.Store) {
	txs, ok := st.(account.TxStore)
	if !ok {
		t.Skip("store has no transactions")
	}
	ctx := context.Background()
	c := saveCustomer(t, st, "Ana Gomez", "")

	err := txs.WithTx(ctx, func(tx account.Store) error {
		return tx.Movements().Save(ctx, newMovement(t, c.ID, account.KindDebitNote, "30", "0", base))
	})
	require.NoError(t, err)

	latest, err := st.Movements().LatestBalance(ctx, c.ID)
	require.NoError(t, err)
	assertDecimal(t, "30", latest)
}
