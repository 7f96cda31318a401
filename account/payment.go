package account

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PayInvoiceInput registers a payment against one invoice.
type PayInvoiceInput struct {
	InvoiceID InvoiceID
	Amount    decimal.Decimal
	Date      time.Time // defaults to now
	Notes     string
	UserID    string
}

// PayDirectInput pays down a customer's account without naming an invoice.
type PayDirectInput struct {
	CustomerID  CustomerID
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	Notes       string
	Source      *SourceDocument
	UserID      string
}

// PaymentResult is what a payment workflow wrote. Invoice is nil for
// direct payments.
type PaymentResult struct {
	Invoice  *Invoice
	Customer *Customer
	Movement *Movement
}

// PayInvoice applies amount to an invoice, lowers the owner's balance and
// appends a partial or full payment movement.
func (s *Service) PayInvoice(ctx context.Context, in PayInvoiceInput) (*PaymentResult, error) {
	const op = "pay invoice"
	var res *PaymentResult

	err := s.run(ctx, op, func(u *unit) error {
		inv, err := u.Invoices().FindByID(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return notFound("invoice", string(in.InvoiceID))
		}

		now := s.now()
		if err := inv.ApplyPayment(in.Amount, now); err != nil {
			return err
		}
		if err := u.Invoices().Save(ctx, inv); err != nil {
			return err
		}

		// The owner may have been removed after issuing; the ledger still
		// records the payment.
		customer, err := u.Customers().FindByID(ctx, inv.CustomerID)
		if err != nil {
			return err
		}
		if customer != nil {
			customer.DecreaseDebt(in.Amount, now)
			if err := u.Customers().Save(ctx, customer); err != nil {
				return err
			}
		}

		kind := KindPartialPayment
		if inv.IsPaid() {
			kind = KindFullPayment
		}
		prev, err := u.ledger.LatestBalance(ctx, inv.CustomerID)
		if err != nil {
			return err
		}
		m, err := NewMovement(MovementInput{
			CustomerID:      inv.CustomerID,
			Kind:            kind,
			Date:            in.Date,
			Amount:          in.Amount,
			Description:     "Payment of invoice " + inv.Number,
			Source:          &SourceDocument{ID: string(inv.ID), Number: inv.Number},
			PreviousBalance: prev,
			Notes:           in.Notes,
			UserID:          in.UserID,
		}, now)
		if err != nil {
			return err
		}
		if err := u.append(ctx, m); err != nil {
			return err
		}

		res = &PaymentResult{Invoice: inv, Customer: customer, Movement: m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PayDirect pays down the account balance. The amount may not exceed what
// the ledger says is owed.
func (s *Service) PayDirect(ctx context.Context, in PayDirectInput) (*PaymentResult, error) {
	const op = "pay direct"
	var res *PaymentResult

	err := s.run(ctx, op, func(u *unit) error {
		customer, err := loadAccountCustomer(ctx, u, op, in.CustomerID)
		if err != nil {
			return err
		}
		debt, err := u.ledger.LatestBalance(ctx, customer.ID)
		if err != nil {
			return err
		}
		if !in.Amount.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}
		if in.Amount.GreaterThan(debt) {
			return rejected(op, "amount "+in.Amount.String()+" exceeds current debt "+debt.String())
		}

		now := s.now()
		customer.DecreaseDebt(in.Amount, now)
		if err := u.Customers().Save(ctx, customer); err != nil {
			return err
		}

		kind := KindPartialPayment
		if in.Amount.GreaterThanOrEqual(debt) {
			kind = KindFullPayment
		}
		desc := in.Description
		if desc == "" {
			desc = "Account payment"
		}
		m, err := NewMovement(MovementInput{
			CustomerID:      customer.ID,
			Kind:            kind,
			Date:            in.Date,
			Amount:          in.Amount,
			Description:     desc,
			Source:          in.Source,
			PreviousBalance: debt,
			Notes:           in.Notes,
			UserID:          in.UserID,
		}, now)
		if err != nil {
			return err
		}
		if err := u.append(ctx, m); err != nil {
			return err
		}

		res = &PaymentResult{Customer: customer, Movement: m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
