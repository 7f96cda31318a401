/*
handlers_test.go - HTTP tests for the ledger API

Requests go through the full chi router against an in-memory store with a
fixed clock, so responses are deterministic.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
	"github.com/warp/retail-ledger/account/store"
	"github.com/warp/retail-ledger/metrics"
)

type testServer struct {
	router  http.Handler
	handler *Handler
	service *account.Service
	clock   *account.FixedClock
	store   *store.TxMemory
}

func newTestServer(t *testing.T, opts ...func(*RouterOptions)) *testServer {
	t.Helper()
	st := store.NewTxMemory()
	clock := account.NewFixedClock(time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
	svc := account.NewService(st, account.WithClock(clock))
	h := NewHandler(svc, zerolog.Nop())

	ro := RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}, Logger: zerolog.Nop()}
	for _, o := range opts {
		o(&ro)
	}
	return &testServer{router: NewRouter(h, ro), handler: h, service: svc, clock: clock, store: st}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createCustomer(t *testing.T, name, nationalID string, hasAccount bool) CustomerDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:              name,
		NationalID:        nationalID,
		HasCurrentAccount: hasAccount,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[CustomerDTO](t, rec)
}

func (ts *testServer) issueInvoice(t *testing.T, customerID, number, total string) IssueInvoiceResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/invoices", IssueInvoiceRequest{
		CustomerID: customerID,
		Number:     number,
		IssueDate:  "2025-03-01",
		DueDate:    "2025-03-11",
		Total:      dec(total),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[IssueInvoiceResponse](t, rec)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func TestAPI_CustomerLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: A created customer
	c := ts.createCustomer(t, "Ana Gómez", "27-1", true)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "0", c.Balance.String())

	// WHEN: Patching the email
	rec := ts.do(t, http.MethodPatch, "/api/customers/"+c.ID, map[string]string{"email": "ana@example.com"})

	// THEN: Only the email changes
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeAs[CustomerDTO](t, rec)
	assert.Equal(t, "ana@example.com", updated.Email)
	assert.Equal(t, "Ana Gómez", updated.Name)

	// AND: Search finds the customer
	rec = ts.do(t, http.MethodGet, "/api/customers?q=g%C3%B3mez", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]CustomerDTO](t, rec), 1)

	// WHEN: Deleting a customer without debt
	rec = ts.do(t, http.MethodDelete, "/api/customers/"+c.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// THEN: The customer is gone
	rec = ts.do(t, http.MethodGet, "/api/customers/"+c.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Failed to get customer", decodeAs[ErrorResponse](t, rec).Error)
}

func TestAPI_DeleteCustomerWithDebtIsConflict(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Ana", "", true)
	ts.issueInvoice(t, c.ID, "F-1", "100")

	rec := ts.do(t, http.MethodDelete, "/api/customers/"+c.ID, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_DuplicateNationalIDIsConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t, "Ana", "20-1", true)

	rec := ts.do(t, http.MethodPost, "/api/customers", CreateCustomerRequest{Name: "Other", NationalID: "20-1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// INVOICES AND PAYMENTS
// =============================================================================

func TestAPI_IssueWithoutCurrentAccountIsConflict(t *testing.T) {
	// GIVEN: A customer with no current account
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Walk-in", "", false)

	// WHEN: Issuing an invoice
	rec := ts.do(t, http.MethodPost, "/api/invoices", IssueInvoiceRequest{
		CustomerID: c.ID, Number: "F-1", IssueDate: "2025-03-01", DueDate: "2025-03-11", Total: dec("100"),
	})

	// THEN: Rejected and nothing is stored
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/invoices?customer_id="+c.ID, nil)
	assert.Empty(t, decodeAs[[]InvoiceDTO](t, rec))
}

func TestAPI_InvoicePaidInTwoInstallments(t *testing.T) {
	// GIVEN: An invoice of 1000 due in 10 days
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Ana", "", true)
	issued := ts.issueInvoice(t, c.ID, "F-1", "1000")
	assert.Equal(t, "invoice_charge", issued.Movement.Kind)
	assert.Equal(t, "1000", issued.Movement.CurrentBalance.String())

	// WHEN: Paying 400
	rec := ts.do(t, http.MethodPost, "/api/invoices/"+issued.Invoice.ID+"/payments", PaymentRequest{Amount: dec("400")})

	// THEN: 600 remain and a partial payment is recorded
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeAs[PaymentResponse](t, rec)
	assert.False(t, first.Invoice.Paid)
	assert.Equal(t, "600", first.Invoice.Remaining.String())
	assert.Equal(t, "partial_payment", first.Movement.Kind)
	assert.Equal(t, "-400", first.Movement.Signed.String())

	// WHEN: Paying the remaining 600
	rec = ts.do(t, http.MethodPost, "/api/invoices/"+issued.Invoice.ID+"/payments", PaymentRequest{Amount: dec("600")})

	// THEN: The invoice is paid with a full payment
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decodeAs[PaymentResponse](t, rec)
	assert.True(t, second.Invoice.Paid)
	assert.Equal(t, "0", second.Invoice.Remaining.String())
	assert.Equal(t, "full_payment", second.Movement.Kind)

	// AND: Any further payment is refused
	rec = ts.do(t, http.MethodPost, "/api/invoices/"+issued.Invoice.ID+"/payments", PaymentRequest{Amount: dec("1")})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: The statement shows no debt
	rec = ts.do(t, http.MethodGet, "/api/customers/"+c.ID+"/statement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeAs[StatementDTO](t, rec)
	assert.Equal(t, "0", st.TotalDebt.String())
	assert.Len(t, st.Lines, 3)
	assert.Empty(t, st.Invoices)
}

func TestAPI_DirectPayment(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Ana", "", true)
	ts.issueInvoice(t, c.ID, "F-1", "300")

	// Exceeding the debt is refused
	rec := ts.do(t, http.MethodPost, "/api/customers/"+c.ID+"/payments", PaymentRequest{Amount: dec("300.01")})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/customers/"+c.ID+"/payments", PaymentRequest{
		Amount:       dec("100"),
		Date:         "2025-02-28",
		SourceID:     "receipt-9",
		SourceNumber: "R-9",
	}, userHeader, "cashier-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paid := decodeAs[PaymentResponse](t, rec)
	assert.Nil(t, paid.Invoice)
	assert.Equal(t, "200", paid.Customer.Balance.String())
	assert.Equal(t, "partial_payment", paid.Movement.Kind)
	assert.Equal(t, "receipt-9", paid.Movement.SourceID)
	assert.Equal(t, "cashier-1", paid.Movement.UserID)
	assert.Equal(t, "2025-02-28T00:00:00Z", paid.Movement.Date)

	rec = ts.do(t, http.MethodGet, "/api/customers/"+c.ID+"/debt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200", decodeAs[DebtDTO](t, rec).TotalDebt.String())
}

func TestAPI_InvoiceFilters(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Ana", "", true)
	ts.issueInvoice(t, c.ID, "F-1", "100")

	rec := ts.do(t, http.MethodGet, "/api/invoices?status=due_soon&days=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]InvoiceDTO](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/invoices?status=overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[[]InvoiceDTO](t, rec))

	ts.clock.Advance(11 * 24 * time.Hour)
	rec = ts.do(t, http.MethodGet, "/api/invoices?status=overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overdue := decodeAs[[]InvoiceDTO](t, rec)
	require.Len(t, overdue, 1)
	assert.True(t, overdue[0].Overdue)
}

func TestAPI_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Ana", "", true)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"malformed json", http.MethodPost, "/api/customers", "{"},
		{"blank name", http.MethodPost, "/api/customers", CreateCustomerRequest{Name: " "}},
		{"zero total", http.MethodPost, "/api/invoices", IssueInvoiceRequest{CustomerID: c.ID, Number: "F-1", IssueDate: "2025-03-01", DueDate: "2025-03-02", Total: dec("0")}},
		{"bad issue date", http.MethodPost, "/api/invoices", IssueInvoiceRequest{CustomerID: c.ID, Number: "F-1", IssueDate: "01/03/2025", Total: dec("1")}},
		{"unknown status", http.MethodGet, "/api/invoices?status=lost", nil},
		{"bad days", http.MethodGet, "/api/invoices?status=due_soon&days=-1", nil},
		{"non-positive direct payment", http.MethodPost, "/api/customers/" + c.ID + "/payments", PaymentRequest{Amount: dec("0")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeAs[ErrorResponse](t, rec).Error)
		})
	}
}

func TestAPI_NotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/invoices/missing",
		"/api/customers/missing/statement",
		"/api/customers/missing/debt",
	} {
		rec := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := ts.do(t, http.MethodPost, "/api/invoices/missing/payments", PaymentRequest{Amount: dec("1")})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SALES
// =============================================================================

func TestAPI_SaleChargeAndReversal(t *testing.T) {
	// GIVEN: A customer identified by national id
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Ana", "20-1", true)
	sale := SaleRequest{Number: "T-1", Date: "2025-03-01", Total: dec("250"), NationalID: "20-1"}

	// WHEN: Charging the sale
	rec := ts.do(t, http.MethodPost, "/api/sales/sale-1/charge", sale)

	// THEN: The debt grows by 250
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	charge := decodeAs[MovementDTO](t, rec)
	assert.Equal(t, "sale_charge", charge.Kind)
	assert.Equal(t, "250", charge.CurrentBalance.String())

	// AND: Charging it again is refused
	rec = ts.do(t, http.MethodPost, "/api/sales/sale-1/charge", sale)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: Reversing twice
	rec = ts.do(t, http.MethodPost, "/api/sales/sale-1/reversal", sale)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reversal := decodeAs[MovementDTO](t, rec)
	rec = ts.do(t, http.MethodPost, "/api/sales/sale-1/reversal", sale)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Both calls return the same credit-class reversal
	assert.Equal(t, reversal.ID, decodeAs[MovementDTO](t, rec).ID)
	assert.Equal(t, "reversal", reversal.Kind)
	assert.Equal(t, "credit", reversal.Effect)
	assert.Equal(t, "250", reversal.Amount.String())
	assert.Equal(t, "-250", reversal.Signed.String())
	assert.Equal(t, charge.ID, reversal.ReversalOf)

	// AND: Exactly two movements reference the sale and the debt is back to zero
	rec = ts.do(t, http.MethodGet, "/api/movements?source_id=sale-1", nil)
	assert.Len(t, decodeAs[[]MovementDTO](t, rec), 2)
	rec = ts.do(t, http.MethodGet, "/api/customers/"+c.ID+"/debt", nil)
	assert.Equal(t, "0", decodeAs[DebtDTO](t, rec).TotalDebt.String())
}

func TestAPI_ReversingUnchargedSaleIsNoContent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sales/never/reversal", SaleRequest{Number: "T-9"})

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPI_ChargeUnknownNationalIDIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sales/sale-1/charge", SaleRequest{Number: "T-1", Total: dec("10"), NationalID: "nobody"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ADMIN AND INFRASTRUCTURE
// =============================================================================

func TestAPI_ReconcileRepairsDriftedBalance(t *testing.T) {
	// GIVEN: A customer whose stored balance drifted from the ledger
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Ana", "", true)
	ts.issueInvoice(t, c.ID, "F-1", "100")

	ctx := context.Background()
	stored, err := ts.store.Customers().FindByID(ctx, account.CustomerID(c.ID))
	require.NoError(t, err)
	stored.Balance = dec("999")
	require.NoError(t, ts.store.Customers().Save(ctx, stored))

	// WHEN: Running reconciliation for everyone
	rec := ts.do(t, http.MethodPost, "/api/reconciliation/run", nil)

	// THEN: The drift is reported and repaired
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeAs[ReconciliationRunDTO](t, rec)
	assert.Equal(t, 1, run.Checked)
	require.Len(t, run.Repaired, 1)
	assert.Equal(t, "999", run.Repaired[0].Stored.String())
	assert.Equal(t, "100", run.Repaired[0].Replayed.String())
	assert.Equal(t, "899", run.Repaired[0].Delta.String())

	rec = ts.do(t, http.MethodGet, "/api/customers/"+c.ID, nil)
	assert.Equal(t, "100", decodeAs[CustomerDTO](t, rec).Balance.String())

	// AND: A second, per-customer pass finds nothing to do
	rec = ts.do(t, http.MethodPost, "/api/customers/"+c.ID+"/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeAs[DriftDTO](t, rec).Repaired)

	rec = ts.do(t, http.MethodGet, "/api/reconciliation/runs", nil)
	assert.Len(t, decodeAs[[]ReconciliationRunDTO](t, rec), 1)
}

func TestAPI_HealthzAndMetrics(t *testing.T) {
	m := metrics.New(false)
	healthy := true
	ts := newTestServer(t, func(o *RouterOptions) {
		o.Metrics = m
		o.Health = func(context.Context) error {
			if !healthy {
				return errors.New("database is locked")
			}
			return nil
		}
	})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil).Code)
	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/healthz", nil).Code)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ledger_http_requests_total{method="GET",route="/healthz",status="503"} 1`)
}

func TestAPI_InternalErrorsAreNotLeaked(t *testing.T) {
	// GIVEN: A store whose customer listing fails
	st := &failingCustomers{Memory: store.NewMemory()}
	svc := account.NewService(st)
	router := NewRouter(NewHandler(svc, zerolog.Nop()), RouterOptions{Logger: zerolog.Nop()})

	// WHEN: Listing customers
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers", nil))

	// THEN: 500 without the driver message
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "internal error", resp.Details)
	assert.NotContains(t, rec.Body.String(), "disk I/O")
}

type failingCustomers struct {
	*store.Memory
}

func (f *failingCustomers) Customers() account.CustomerRepository {
	return failingCustomerRepo{f.Memory.Customers()}
}

type failingCustomerRepo struct {
	account.CustomerRepository
}

func (failingCustomerRepo) FindAll(context.Context) ([]account.Customer, error) {
	return nil, errors.New("disk I/O error")
}
