package account

import (
	"context"
	"strings"
)

// CreateCustomer validates and stores a new customer. National ids are
// unique when present since sales resolve customers by them.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	const op = "create customer"
	var created *Customer

	err := s.run(ctx, op, func(u *unit) error {
		c, err := NewCustomer(in, s.now())
		if err != nil {
			return err
		}
		if err := ensureNationalIDFree(ctx, u, op, c.NationalID, ""); err != nil {
			return err
		}
		if err := u.Customers().Save(ctx, c); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateCustomer applies a profile patch. Balance is not patchable.
func (s *Service) UpdateCustomer(ctx context.Context, id CustomerID, patch CustomerPatch) (*Customer, error) {
	const op = "update customer"
	var updated *Customer

	err := s.run(ctx, op, func(u *unit) error {
		c, err := u.Customers().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return notFound("customer", string(id))
		}
		if err := c.Update(patch, s.now()); err != nil {
			return err
		}
		if err := ensureNationalIDFree(ctx, u, op, c.NationalID, c.ID); err != nil {
			return err
		}
		if err := u.Customers().Save(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCustomer removes a customer that owes nothing. The ledger keeps
// its movements.
func (s *Service) DeleteCustomer(ctx context.Context, id CustomerID) error {
	const op = "delete customer"
	return s.run(ctx, op, func(u *unit) error {
		debt, err := s.replayDebt(ctx, u, id)
		if err != nil {
			return err
		}
		if !debt.IsZero() {
			return rejected(op, "customer still owes "+debt.String())
		}
		u.touch(id)
		return u.Customers().Delete(ctx, id)
	})
}

func (s *Service) Customer(ctx context.Context, id CustomerID) (*Customer, error) {
	c, err := s.store.Customers().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("customer", string(id))
	}
	return c, nil
}

// Customers lists every customer, or those matching text when it is not
// blank.
func (s *Service) Customers(ctx context.Context, text string) ([]Customer, error) {
	if text = strings.TrimSpace(text); text != "" {
		return s.store.Customers().Search(ctx, text)
	}
	return s.store.Customers().FindAll(ctx)
}

func ensureNationalIDFree(ctx context.Context, st Store, op, nationalID string, self CustomerID) error {
	if nationalID == "" {
		return nil
	}
	other, err := st.Customers().FindByNationalID(ctx, nationalID)
	if err != nil {
		return err
	}
	if other != nil && other.ID != self {
		return rejected(op, "national id "+nationalID+" belongs to customer "+other.Name)
	}
	return nil
}
