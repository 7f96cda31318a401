package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
	"github.com/warp/retail-ledger/account/store"
)

func TestMetrics_WorkflowOutcomes(t *testing.T) {
	m := New(false)

	m.WorkflowFinished("pay invoice", nil, 10*time.Millisecond)
	m.WorkflowFinished("pay invoice", &account.ValidationError{Field: "amount", Message: "must be positive"}, time.Millisecond)
	m.WorkflowFinished("pay invoice", errors.New("connection reset"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflows.WithLabelValues("pay invoice", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflows.WithLabelValues("pay invoice", OutcomeClientError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflows.WithLabelValues("pay invoice", OutcomeError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.workflowDuration))
}

func TestMetrics_ObservesServiceMovements(t *testing.T) {
	// GIVEN: A service reporting to the metrics observer
	m := New(false)
	ctx := context.Background()
	clock := account.NewFixedClock(account.Date(2025, time.March, 1))
	svc := account.NewService(store.NewTxMemory(), account.WithClock(clock), account.WithObserver(m))

	c, err := svc.CreateCustomer(ctx, account.CustomerInput{Name: "Ana", NationalID: "20-1", HasCurrentAccount: true})
	require.NoError(t, err)

	// WHEN: A sale is charged and reversed
	sale := account.NewSaleRef("sale-1", "T-1", clock.Now(), decimal.NewFromInt(250))
	_, err = svc.ChargeSale(ctx, sale, "20-1", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.ReverseSale(ctx, sale, "")
	require.NoError(t, err)

	// THEN: One debit and one credit of 250 were counted
	assert.Equal(t, 1.0, testutil.ToFloat64(m.movements.WithLabelValues("sale_charge", "debit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.movements.WithLabelValues("reversal", "credit")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.movementAmount.WithLabelValues("debit")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.movementAmount.WithLabelValues("credit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflows.WithLabelValues("charge sale", OutcomeOK)))
	assert.NotEmpty(t, c.ID)
}

func TestMetrics_MiddlewareLabelsRoutePattern(t *testing.T) {
	// GIVEN: A chi router instrumented by the middleware
	m := New(false)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// WHEN: Two different ids are requested
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	// THEN: Both land on the same route label
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/customers/{id}", "404")))
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := New(false)
	m.WorkflowFinished("issue invoice", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ledger_workflow_total{op="issue invoice",outcome="ok"} 1`)
}
