/*
ledger.go - Append-only movement log

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, a movement is never modified.
  3. IDEMPOTENT: Same idempotency key = same movement (no duplicates).

CORRECTIONS:
  A mistake is fixed by appending a compensating movement. Cancelling a
  point-of-sale charge appends a reversal that points at the charge; both
  stay in the ledger and the replay nets them out.
*/
package account

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger is the write path for movements.
type Ledger struct {
	repo MovementRepository
}

func NewLedger(repo MovementRepository) *Ledger {
	return &Ledger{repo: repo}
}

// Append persists m. Fails with ErrDuplicateIdempotencyKey if m carries a
// key that is already taken. This is the ONLY write operation.
func (l *Ledger) Append(ctx context.Context, m *Movement) error {
	if m.IdempotencyKey != "" {
		existing, err := l.repo.FindByIdempotencyKey(ctx, m.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.repo.Save(ctx, m)
}

func (l *Ledger) Movements(ctx context.Context, customerID CustomerID) ([]Movement, error) {
	return l.repo.FindByCustomer(ctx, customerID)
}

func (l *Ledger) BySource(ctx context.Context, sourceID string) ([]Movement, error) {
	return l.repo.FindBySourceDocument(ctx, sourceID)
}

func (l *Ledger) LatestBalance(ctx context.Context, customerID CustomerID) (decimal.Decimal, error) {
	return l.repo.LatestBalance(ctx, customerID)
}
