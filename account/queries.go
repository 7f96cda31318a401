package account

import (
	"context"
	"fmt"
)

// InvoiceStatus selects a subset of invoices.
type InvoiceStatus string

const (
	InvoicesAll     InvoiceStatus = ""
	InvoicesPending InvoiceStatus = "pending"
	InvoicesOverdue InvoiceStatus = "overdue"
	InvoicesDueSoon InvoiceStatus = "due_soon"
)

type InvoiceFilter struct {
	CustomerID CustomerID // "" for every customer
	Status     InvoiceStatus
	Days       int // window for InvoicesDueSoon, defaults to the service setting
}

func (s *Service) Invoice(ctx context.Context, id InvoiceID) (*Invoice, error) {
	inv, err := s.store.Invoices().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, notFound("invoice", string(id))
	}
	return inv, nil
}

func (s *Service) Invoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error) {
	repo := s.store.Invoices()
	switch f.Status {
	case InvoicesPending:
		return repo.FindPending(ctx, f.CustomerID)
	case InvoicesOverdue:
		return repo.FindOverdue(ctx, s.now(), f.CustomerID)
	case InvoicesDueSoon:
		days := f.Days
		if days <= 0 {
			days = s.dueSoonDays
		}
		return repo.FindDueWithin(ctx, days, s.now(), f.CustomerID)
	case InvoicesAll:
		if f.CustomerID != "" {
			return repo.FindByCustomer(ctx, f.CustomerID)
		}
		return repo.FindAll(ctx)
	default:
		return nil, invalid("status", fmt.Sprintf("unknown invoice status %q", f.Status))
	}
}

// MovementFilter narrows a movement listing. SourceID wins over CustomerID.
type MovementFilter struct {
	CustomerID CustomerID
	SourceID   string
}

// Movements lists stored movements as written. Use Statement for
// replayed balances.
func (s *Service) Movements(ctx context.Context, f MovementFilter) ([]Movement, error) {
	repo := s.store.Movements()
	switch {
	case f.SourceID != "":
		return repo.FindBySourceDocument(ctx, f.SourceID)
	case f.CustomerID != "":
		return repo.FindByCustomer(ctx, f.CustomerID)
	default:
		return repo.FindAll(ctx)
	}
}
