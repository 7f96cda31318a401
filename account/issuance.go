package account

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type IssueInvoiceInput struct {
	CustomerID  CustomerID
	Number      string
	IssueDate   time.Time
	DueDate     time.Time
	Total       decimal.Decimal
	Description string
	Notes       string
	SaleID      string
	UserID      string
}

// IssueResult is what IssueInvoice wrote.
type IssueResult struct {
	Invoice  *Invoice
	Movement *Movement
}

// IssueInvoice creates an invoice for an account customer, raises the
// customer's balance by its total and appends the invoice charge.
func (s *Service) IssueInvoice(ctx context.Context, in IssueInvoiceInput) (*IssueResult, error) {
	const op = "issue invoice"
	var res *IssueResult

	err := s.run(ctx, op, func(u *unit) error {
		customer, err := loadAccountCustomer(ctx, u, op, in.CustomerID)
		if err != nil {
			return err
		}

		now := s.now()
		inv, err := NewInvoice(InvoiceInput{
			Number:      in.Number,
			CustomerID:  customer.ID,
			IssueDate:   in.IssueDate,
			DueDate:     in.DueDate,
			Total:       in.Total,
			Description: in.Description,
			Notes:       in.Notes,
			SaleID:      in.SaleID,
		}, now)
		if err != nil {
			return err
		}
		if err := u.Invoices().Save(ctx, inv); err != nil {
			return err
		}

		customer.IncreaseDebt(inv.Total, now)
		if err := u.Customers().Save(ctx, customer); err != nil {
			return err
		}

		prev, err := u.ledger.LatestBalance(ctx, customer.ID)
		if err != nil {
			return err
		}
		desc := inv.Description
		if desc == "" {
			desc = "Invoice " + inv.Number
		}
		m, err := NewMovement(MovementInput{
			CustomerID:      customer.ID,
			Kind:            KindInvoiceCharge,
			Date:            inv.IssueDate,
			Amount:          inv.Total,
			Description:     desc,
			Source:          &SourceDocument{ID: string(inv.ID), Number: inv.Number},
			PreviousBalance: prev,
			Notes:           inv.Notes,
			UserID:          in.UserID,
		}, now)
		if err != nil {
			return err
		}
		if err := u.append(ctx, m); err != nil {
			return err
		}

		res = &IssueResult{Invoice: inv, Movement: m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
