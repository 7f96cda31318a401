package account

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is a billable document owed by a customer.
//
// INVARIANT: 0 <= AmountPaid <= Total. ApplyPayment is the only mutator.
type Invoice struct {
	ID          InvoiceID
	Number      string
	CustomerID  CustomerID
	IssueDate   time.Time
	DueDate     time.Time
	Total       decimal.Decimal
	AmountPaid  decimal.Decimal
	Description string
	Notes       string
	SaleID      string // originating sale, if any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InvoiceInput holds the fields accepted when issuing an invoice.
type InvoiceInput struct {
	ID          InvoiceID
	Number      string
	CustomerID  CustomerID
	IssueDate   time.Time
	DueDate     time.Time
	Total       decimal.Decimal
	Description string
	Notes       string
	SaleID      string
}

// NewInvoice validates the input and builds an unpaid invoice.
func NewInvoice(in InvoiceInput, now time.Time) (*Invoice, error) {
	inv := &Invoice{
		ID:          in.ID,
		Number:      strings.TrimSpace(in.Number),
		CustomerID:  in.CustomerID,
		IssueDate:   in.IssueDate,
		DueDate:     in.DueDate,
		Total:       in.Total,
		AmountPaid:  decimal.Zero,
		Description: strings.TrimSpace(in.Description),
		Notes:       in.Notes,
		SaleID:      in.SaleID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch {
	case inv.Number == "":
		return nil, invalid("number", "must not be blank")
	case inv.CustomerID == "":
		return nil, invalid("customer_id", "is required")
	case inv.IssueDate.IsZero():
		return nil, invalid("issue_date", "is required")
	case inv.DueDate.Before(inv.IssueDate):
		return nil, invalid("due_date", "must not be before issue date")
	case !inv.Total.IsPositive():
		return nil, invalid("total", "must be greater than zero")
	}
	return inv, nil
}

// RemainingBalance is what is still owed on the invoice, never negative.
func (i *Invoice) RemainingBalance() decimal.Decimal {
	r := i.Total.Sub(i.AmountPaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

func (i *Invoice) IsPaid() bool { return i.RemainingBalance().IsZero() }

func (i *Invoice) IsOverdue(now time.Time) bool { return now.After(i.DueDate) }

// IsDueSoon reports whether the due date falls in [now, now+withinDays].
func (i *Invoice) IsDueSoon(now time.Time, withinDays int) bool {
	limit := now.AddDate(0, 0, withinDays)
	return !i.DueDate.Before(now) && !i.DueDate.After(limit)
}

// ApplyPayment registers a payment. On error the invoice is unchanged.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, now time.Time) error {
	const op = "apply payment"
	if !amount.IsPositive() {
		return rejected(op, "amount must be greater than zero")
	}
	if i.IsPaid() {
		return rejected(op, "invoice "+i.Number+" is already paid")
	}
	if amount.GreaterThan(i.RemainingBalance()) {
		return rejected(op, "amount "+amount.String()+" exceeds remaining balance "+i.RemainingBalance().String())
	}
	i.AmountPaid = i.AmountPaid.Add(amount)
	i.UpdatedAt = now
	return nil
}
