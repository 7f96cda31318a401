/*
statement.go - Balance reconstruction (the trusted read path)

PURPOSE:
  Stored PreviousBalance/CurrentBalance snapshots cannot be trusted: a past
  defect wrote wrong values into some rows, and concurrent writers can race
  on LatestBalance. Every total shown to a user is therefore recomputed by
  replaying the customer's movements from zero.

ALGORITHM:
  1. Stable sort by CreatedAt (the audit timestamp). Date is the business
     date and may be backdated, so it never orders the replay.
  2. Start at 0. Debit kinds add |amount|, credit kinds subtract |amount|.
     Unknown kinds leave the balance unchanged.
  3. The running balance is not clamped, so a credit recorded before the
     charge it pays still counts. A line may show a negative balance.
  4. The final running balance, floored at zero, is the customer's debt.

  Replay is a pure function: same movements in, same lines out, whatever
  the stored snapshots say. Nothing here writes.
*/
package account

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StatementLine is a movement with balances recomputed by Replay.
type StatementLine struct {
	Movement       Movement // PreviousBalance/CurrentBalance hold replayed values
	StoredPrevious decimal.Decimal
	StoredCurrent  decimal.Decimal
	Corrected      bool // stored snapshot differed from the replay
}

// PendingInvoice is an invoice with a remaining balance, annotated for
// display.
type PendingInvoice struct {
	Invoice   Invoice
	Remaining decimal.Decimal
	Overdue   bool
	DueSoon   bool
}

type Statement struct {
	Customer      Customer
	TotalDebt     decimal.Decimal
	StoredBalance decimal.Decimal // Customer.Balance as stored, for comparison
	Invoices      []PendingInvoice
	Lines         []StatementLine
	AsOf          time.Time
}

// Replay recomputes running balances over movements. The input slice is
// not modified.
func Replay(movements []Movement) ([]StatementLine, decimal.Decimal) {
	sorted := make([]Movement, len(movements))
	copy(sorted, movements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	running := decimal.Zero
	lines := make([]StatementLine, 0, len(sorted))
	for _, m := range sorted {
		line := StatementLine{
			StoredPrevious: m.PreviousBalance,
			StoredCurrent:  m.CurrentBalance,
		}
		next := apply(running, m.Kind, m.Amount)
		m.PreviousBalance = running
		m.CurrentBalance = next
		line.Movement = m
		line.Corrected = !line.StoredPrevious.Equal(running) || !line.StoredCurrent.Equal(next)
		lines = append(lines, line)
		running = next
	}
	if running.IsNegative() {
		return lines, decimal.Zero
	}
	return lines, running
}

// Statement reconstructs a customer's account.
func (s *Service) Statement(ctx context.Context, id CustomerID) (*Statement, error) {
	customer, err := s.store.Customers().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, notFound("customer", string(id))
	}

	now := s.now()
	pending, err := s.store.Invoices().FindPending(ctx, id)
	if err != nil {
		return nil, err
	}
	invoices := make([]PendingInvoice, 0, len(pending))
	for _, inv := range pending {
		invoices = append(invoices, PendingInvoice{
			Invoice:   inv,
			Remaining: inv.RemainingBalance(),
			Overdue:   inv.IsOverdue(now),
			DueSoon:   inv.IsDueSoon(now, s.dueSoonDays),
		})
	}

	gen, cacheable := s.cacheGeneration(ctx, id)
	movements, err := s.store.Movements().FindByCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, total := Replay(movements)
	if cacheable {
		s.cacheDebt(ctx, id, total, gen)
	}

	return &Statement{
		Customer:      *customer,
		TotalDebt:     total,
		StoredBalance: customer.Balance,
		Invoices:      invoices,
		Lines:         lines,
		AsOf:          now,
	}, nil
}

// TotalDebt returns the replayed debt of a customer, served from the
// balance cache when it holds an entry.
func (s *Service) TotalDebt(ctx context.Context, id CustomerID) (decimal.Decimal, error) {
	if total, ok, err := s.cache.GetDebt(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("customer_id", string(id)).Msg("balance cache read failed")
	} else if ok {
		return total, nil
	}

	gen, cacheable := s.cacheGeneration(ctx, id)
	total, err := s.replayDebt(ctx, s.store, id)
	if err != nil {
		return decimal.Zero, err
	}
	if cacheable {
		s.cacheDebt(ctx, id, total, gen)
	}
	return total, nil
}

// cacheGeneration must be called before the movements are read.
func (s *Service) cacheGeneration(ctx context.Context, id CustomerID) (int64, bool) {
	gen, err := s.cache.Generation(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("customer_id", string(id)).Msg("balance cache generation read failed")
		return 0, false
	}
	return gen, true
}

func (s *Service) cacheDebt(ctx context.Context, id CustomerID, total decimal.Decimal, gen int64) {
	if err := s.cache.SetDebt(ctx, id, total, gen); err != nil {
		s.log.Warn().Err(err).Str("customer_id", string(id)).Msg("balance cache write failed")
	}
}

func (s *Service) replayDebt(ctx context.Context, st Store, id CustomerID) (decimal.Decimal, error) {
	customer, err := st.Customers().FindByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if customer == nil {
		return decimal.Zero, notFound("customer", string(id))
	}
	movements, err := st.Movements().FindByCustomer(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	_, total := Replay(movements)
	return total, nil
}
