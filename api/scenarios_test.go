/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the ledger in the expected state, so
	they can double as integration tests of the workflows.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
)

func loadScenario(t *testing.T, ts *testServer, id string) *account.Customer {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, LoadScenario(ctx, ts.service, id))

	customers, err := ts.service.Customers(ctx, "")
	require.NoError(t, err)
	require.Len(t, customers, 1)
	return &customers[0]
}

func statementOf(t *testing.T, ts *testServer, id account.CustomerID) *account.Statement {
	t.Helper()
	st, err := ts.service.Statement(context.Background(), id)
	require.NoError(t, err)
	return st
}

func TestScenario_WalkIn(t *testing.T) {
	ts := newTestServer(t)

	c := loadScenario(t, ts, "walk-in")

	assert.False(t, c.HasCurrentAccount)
	assert.True(t, statementOf(t, ts, c.ID).TotalDebt.IsZero())
}

func TestScenario_PartialPayments(t *testing.T) {
	ts := newTestServer(t)

	c := loadScenario(t, ts, "partial-payments")

	// 1000 fully paid, 750.50 with 250.50 paid
	st := statementOf(t, ts, c.ID)
	assert.Equal(t, "500", st.TotalDebt.String())
	assert.Equal(t, "500", st.StoredBalance.String())
	require.Len(t, st.Invoices, 1)
	assert.Equal(t, "A-0002", st.Invoices[0].Invoice.Number)

	kinds := make([]account.Kind, len(st.Lines))
	for i, l := range st.Lines {
		kinds[i] = l.Movement.Kind
		assert.False(t, l.Corrected)
	}
	assert.Equal(t, []account.Kind{
		account.KindInvoiceCharge,
		account.KindPartialPayment,
		account.KindFullPayment,
		account.KindInvoiceCharge,
		account.KindPartialPayment,
	}, kinds)
}

func TestScenario_POSSale(t *testing.T) {
	ts := newTestServer(t)

	c := loadScenario(t, ts, "pos-sale")

	// only the 120 sale stays charged
	st := statementOf(t, ts, c.ID)
	assert.Equal(t, "120", st.TotalDebt.String())
	linked, err := ts.service.Movements(context.Background(), account.MovementFilter{SourceID: "demo-sale-0002"})
	require.NoError(t, err)
	assert.Len(t, linked, 2)
}

func TestScenario_Overdue(t *testing.T) {
	ts := newTestServer(t)

	c := loadScenario(t, ts, "overdue")

	st := statementOf(t, ts, c.ID)
	assert.Equal(t, "4640", st.TotalDebt.String())
	require.Len(t, st.Invoices, 3)

	byNumber := map[string]account.PendingInvoice{}
	for _, p := range st.Invoices {
		byNumber[p.Invoice.Number] = p
	}
	assert.True(t, byNumber["B-0001"].Overdue)
	assert.True(t, byNumber["B-0002"].DueSoon)
	assert.False(t, byNumber["B-0002"].Overdue)
	assert.False(t, byNumber["B-0003"].Overdue)
	assert.False(t, byNumber["B-0003"].DueSoon)
}

func TestScenario_DirectPayment(t *testing.T) {
	ts := newTestServer(t)

	c := loadScenario(t, ts, "direct-payment")

	// the payment lowers the debt but leaves the invoices open
	st := statementOf(t, ts, c.ID)
	assert.Equal(t, "250", st.TotalDebt.String())
	assert.Len(t, st.Invoices, 2)
}

func TestScenario_LoadingTwiceIsRejected(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, LoadScenario(context.Background(), ts.service, "pos-sale"))

	err := LoadScenario(context.Background(), ts.service, "pos-sale")

	assert.True(t, account.IsInvalidOperation(err))
}

func TestScenario_AllScenariosLoadViaAPI(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarios))

	for _, s := range list {
		rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
		assert.Equal(t, http.StatusCreated, rec.Code, "%s: %s", s.ID, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
