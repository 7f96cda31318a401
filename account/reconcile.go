package account

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Drift compares a customer's stored balance with the replayed debt.
type Drift struct {
	CustomerID CustomerID
	Stored     decimal.Decimal
	Replayed   decimal.Decimal
	Repaired   bool
}

func (d Drift) Delta() decimal.Decimal { return d.Stored.Sub(d.Replayed) }

// Reconcile overwrites Customer.Balance with the replayed debt when the two
// disagree. Movements are never touched.
func (s *Service) Reconcile(ctx context.Context, id CustomerID) (*Drift, error) {
	var drift *Drift
	err := s.run(ctx, "reconcile", func(u *unit) error {
		d, err := s.reconcileIn(ctx, u, id)
		drift = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return drift, nil
}

// ReconcileAll reconciles every customer, one unit of work each. It stops
// at the first failure and returns the drifts gathered so far.
func (s *Service) ReconcileAll(ctx context.Context) ([]Drift, error) {
	customers, err := s.store.Customers().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	drifts := make([]Drift, 0, len(customers))
	for _, c := range customers {
		d, err := s.Reconcile(ctx, c.ID)
		if err != nil {
			return drifts, fmt.Errorf("reconcile customer %s: %w", c.ID, err)
		}
		drifts = append(drifts, *d)
	}
	return drifts, nil
}

func (s *Service) reconcileIn(ctx context.Context, u *unit, id CustomerID) (*Drift, error) {
	total, err := s.replayDebt(ctx, u, id)
	if err != nil {
		return nil, err
	}
	customer, err := u.Customers().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, notFound("customer", string(id))
	}

	d := &Drift{CustomerID: id, Stored: customer.Balance, Replayed: total}
	if customer.Balance.Equal(total) {
		return d, nil
	}
	customer.ReconcileBalance(total, s.now())
	if err := u.Customers().Save(ctx, customer); err != nil {
		return nil, err
	}
	u.touch(id)
	d.Repaired = true
	return d, nil
}
