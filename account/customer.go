package account

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a client that may carry a running balance.
//
// Balance is a denormalized hint of what the customer owes. It is never
// negative. Statement/Replay is the source of truth for reporting.
type Customer struct {
	ID                CustomerID
	Name              string
	LegalName         string
	NationalID        string
	Email             string
	Phone             string
	Address           string
	HasCurrentAccount bool
	Balance           decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CustomerInput holds the fields accepted when creating a customer.
type CustomerInput struct {
	ID                CustomerID // optional, assigned on save when empty
	Name              string
	LegalName         string
	NationalID        string
	Email             string
	Phone             string
	Address           string
	HasCurrentAccount bool
	Balance           decimal.Decimal
}

// CustomerPatch is a typed partial update of profile fields.
// Nil fields are left unchanged. Identity and balance cannot be patched.
type CustomerPatch struct {
	Name              *string
	LegalName         *string
	NationalID        *string
	Email             *string
	Phone             *string
	Address           *string
	HasCurrentAccount *bool
}

// NewCustomer validates the input and builds a customer.
func NewCustomer(in CustomerInput, now time.Time) (*Customer, error) {
	c := &Customer{
		ID:                in.ID,
		Name:              strings.TrimSpace(in.Name),
		LegalName:         strings.TrimSpace(in.LegalName),
		NationalID:        strings.TrimSpace(in.NationalID),
		Email:             strings.TrimSpace(in.Email),
		Phone:             strings.TrimSpace(in.Phone),
		Address:           strings.TrimSpace(in.Address),
		HasCurrentAccount: in.HasCurrentAccount,
		Balance:           in.Balance,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Customer) validate() error {
	if c.Name == "" {
		return invalid("name", "must not be blank")
	}
	if c.Balance.IsNegative() {
		return invalid("balance", "must not be negative")
	}
	return nil
}

// IncreaseDebt adds amount to the balance.
func (c *Customer) IncreaseDebt(amount decimal.Decimal, now time.Time) {
	c.Balance = c.Balance.Add(amount)
	c.clamp()
	c.UpdatedAt = now
}

// DecreaseDebt subtracts amount from the balance, stopping at zero.
func (c *Customer) DecreaseDebt(amount decimal.Decimal, now time.Time) {
	c.Balance = c.Balance.Sub(amount)
	c.clamp()
	c.UpdatedAt = now
}

// ReconcileBalance overwrites the denormalized balance with a total
// reconstructed from the ledger.
func (c *Customer) ReconcileBalance(total decimal.Decimal, now time.Time) {
	c.Balance = total
	c.clamp()
	c.UpdatedAt = now
}

func (c *Customer) clamp() {
	if c.Balance.IsNegative() {
		c.Balance = decimal.Zero
	}
}

// Update applies a patch. The customer is left untouched if the result
// would be invalid.
func (c *Customer) Update(p CustomerPatch, now time.Time) error {
	next := *c
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.LegalName != nil {
		next.LegalName = strings.TrimSpace(*p.LegalName)
	}
	if p.NationalID != nil {
		next.NationalID = strings.TrimSpace(*p.NationalID)
	}
	if p.Email != nil {
		next.Email = strings.TrimSpace(*p.Email)
	}
	if p.Phone != nil {
		next.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Address != nil {
		next.Address = strings.TrimSpace(*p.Address)
	}
	if p.HasCurrentAccount != nil {
		next.HasCurrentAccount = *p.HasCurrentAccount
	}
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*c = next
	return nil
}
