/*
sale.go - Point-of-sale charge to account and its reversal

ORDERING:
  The charge movement is written BEFORE the customer balance update. If
  the second write is lost the ledger still holds the charge and Replay
  reports the right debt; Reconcile repairs the balance hint.

REVERSAL:
  Cancelling a sale appends one reversal pointing at the original charge.
  Nothing is edited or deleted. Reversing twice returns the reversal that
  already exists, so a reversed sale always has exactly two movements.

IDEMPOTENCY KEYS:
  sale-charge:<saleID>    one charge per sale
  sale-reversal:<saleID>  one reversal per sale

  Rows written before the keys existed carry neither a key nor a
  ReversalOf link. Both workflows therefore also look at the movements
  already linked to the sale: any sale charge blocks a new charge, and any
  reversal of the sale counts as the reversal.
*/
package account

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is the slice of a point-of-sale record the ledger needs.
type Sale interface {
	ID() string
	Number() string
	Date() time.Time
	Total() decimal.Decimal
}

// SaleRef is a plain Sale value.
type SaleRef struct {
	id     string
	number string
	date   time.Time
	total  decimal.Decimal
}

func NewSaleRef(id, number string, date time.Time, total decimal.Decimal) SaleRef {
	return SaleRef{id: id, number: number, date: date, total: total}
}

func (s SaleRef) ID() string             { return s.id }
func (s SaleRef) Number() string         { return s.number }
func (s SaleRef) Date() time.Time        { return s.date }
func (s SaleRef) Total() decimal.Decimal { return s.total }

func saleChargeKey(saleID string) string   { return "sale-charge:" + saleID }
func saleReversalKey(saleID string) string { return "sale-reversal:" + saleID }

func saleSource(sale Sale) *SourceDocument {
	return &SourceDocument{ID: sale.ID(), Number: sale.Number()}
}

// ChargeSale charges a sale to the account of the customer identified by
// nationalID.
func (s *Service) ChargeSale(ctx context.Context, sale Sale, nationalID, userID string) (*Movement, error) {
	const op = "charge sale"
	if sale == nil || sale.ID() == "" {
		return nil, invalid("sale_id", "is required")
	}
	var charged *Movement

	err := s.run(ctx, op, func(u *unit) error {
		customer, err := u.Customers().FindByNationalID(ctx, nationalID)
		if err != nil {
			return err
		}
		if customer == nil {
			return notFound("customer", nationalID)
		}
		if !customer.HasCurrentAccount {
			return rejected(op, "customer "+customer.Name+" has no current account")
		}

		linked, err := u.ledger.BySource(ctx, sale.ID())
		if err != nil {
			return err
		}
		if findSaleCharge(linked) != nil {
			return alreadyCharged(op, sale)
		}

		prev, err := u.ledger.LatestBalance(ctx, customer.ID)
		if err != nil {
			return err
		}
		now := s.now()
		m, err := NewMovement(MovementInput{
			CustomerID:      customer.ID,
			Kind:            KindSaleCharge,
			Date:            sale.Date(),
			Amount:          sale.Total(),
			Description:     "Sale " + sale.Number() + " charged to account",
			Source:          saleSource(sale),
			PreviousBalance: prev,
			UserID:          userID,
			IdempotencyKey:  saleChargeKey(sale.ID()),
		}, now)
		if err != nil {
			return err
		}
		if err := u.append(ctx, m); err != nil {
			if errors.Is(err, ErrDuplicateIdempotencyKey) {
				return alreadyCharged(op, sale)
			}
			return err
		}

		customer.IncreaseDebt(m.Amount, now)
		if err := u.Customers().Save(ctx, customer); err != nil {
			return err
		}
		charged = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return charged, nil
}

// ReverseSale cancels the account charge of a sale. It returns (nil, nil)
// when the sale was never charged to an account.
func (s *Service) ReverseSale(ctx context.Context, sale Sale, userID string) (*Movement, error) {
	const op = "reverse sale"
	if sale == nil || sale.ID() == "" {
		return nil, invalid("sale_id", "is required")
	}
	var reversal *Movement

	err := s.run(ctx, op, func(u *unit) error {
		linked, err := u.ledger.BySource(ctx, sale.ID())
		if err != nil {
			return err
		}
		original := findSaleCharge(linked)
		if original == nil {
			return nil
		}
		if existing := findReversalOf(linked, original.ID); existing != nil {
			reversal = existing
			return nil
		}

		prev, err := u.ledger.LatestBalance(ctx, original.CustomerID)
		if err != nil {
			return err
		}
		now := s.now()
		magnitude := original.Amount.Abs()
		m, err := NewMovement(MovementInput{
			CustomerID:      original.CustomerID,
			Kind:            KindReversal,
			Date:            now,
			Amount:          magnitude,
			Description:     "Reversal of sale " + sale.Number(),
			Source:          saleSource(sale),
			ReversalOf:      original.ID,
			PreviousBalance: prev,
			UserID:          userID,
			IdempotencyKey:  saleReversalKey(sale.ID()),
		}, now)
		if err != nil {
			return err
		}
		if err := u.append(ctx, m); err != nil {
			return err
		}

		customer, err := u.Customers().FindByID(ctx, original.CustomerID)
		if err != nil {
			return err
		}
		if customer != nil {
			customer.DecreaseDebt(magnitude, now)
			if err := u.Customers().Save(ctx, customer); err != nil {
				return err
			}
		}
		reversal = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

func alreadyCharged(op string, sale Sale) error {
	return &InvalidOperationError{Op: op, Reason: "sale " + sale.Number() + " is already charged", Err: ErrDuplicateIdempotencyKey}
}

func findSaleCharge(ms []Movement) *Movement {
	for i := range ms {
		if ms[i].Kind.IsSaleCharge() {
			return &ms[i]
		}
	}
	return nil
}

// findReversalOf returns the reversal of charge id among movements linked
// to the same sale. Legacy reversals have no link and match any charge.
func findReversalOf(ms []Movement, id MovementID) *Movement {
	for i := range ms {
		if ms[i].Kind != KindReversal {
			continue
		}
		if ms[i].ReversalOf == id || ms[i].ReversalOf == "" {
			return &ms[i]
		}
	}
	return nil
}
