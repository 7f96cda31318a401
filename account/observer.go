package account

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Observer receives workflow events. The metrics package implements it.
type Observer interface {
	MovementAppended(m *Movement)
	WorkflowFinished(op string, err error, elapsed time.Duration)
}

// BalanceCache holds replayed totals so that reads of a customer's debt
// don't have to walk the whole ledger. Entries are dropped whenever a
// workflow writes for the customer.
//
// Every Invalidate advances the customer's generation. A reader takes the
// generation before replaying and passes it to SetDebt, which stores the
// total only if no invalidation happened in between.
type BalanceCache interface {
	GetDebt(ctx context.Context, id CustomerID) (decimal.Decimal, bool, error)
	Generation(ctx context.Context, id CustomerID) (int64, error)
	SetDebt(ctx context.Context, id CustomerID, total decimal.Decimal, gen int64) error
	Invalidate(ctx context.Context, id CustomerID) error
}

type nopObserver struct{}

func (nopObserver) MovementAppended(*Movement)                  {}
func (nopObserver) WorkflowFinished(string, error, time.Duration) {}

type nopCache struct{}

func (nopCache) GetDebt(context.Context, CustomerID) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}
func (nopCache) Generation(context.Context, CustomerID) (int64, error) { return 0, nil }
func (nopCache) SetDebt(context.Context, CustomerID, decimal.Decimal, int64) error {
	return nil
}
func (nopCache) Invalidate(context.Context, CustomerID) error { return nil }
