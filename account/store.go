/*
store.go - Persistence contracts for customers, invoices and movements

PURPOSE:
  Defines the boundary between the ledger workflows and the database.
  Implementations exist for memory (tests/dev), SQLite and PostgreSQL.

KEY INTERFACES:
  CustomerRepository: Customer records (mutable profile + balance hint)
  InvoiceRepository:  Invoices and their payment progress
  MovementRepository: Ledger movements (INSERT-ONLY)
  Store:              The three repositories together
  TxStore:            Store with a unit of work

APPEND-ONLY CONTRACT:
  MovementRepository has no update and no delete. Save inserts; saving an
  existing id fails with ErrMovementExists and a reused idempotency key
  fails with ErrDuplicateIdempotencyKey.

LOOKUPS:
  Single-record lookups return (nil, nil) when nothing matches. Filters
  taking a CustomerID treat "" as "every customer".

UNIT OF WORK:
  TxStore.WithTx hands the callback a Store bound to one transaction. The
  workflows in service.go pass that Store around as their session handle
  so the document write, the customer update and the movement insert
  commit or roll back together.

SEE ALSO:
  - ledger.go: Append-only wrapper with idempotency checks
  - store/memory.go: In-memory implementation
  - storetest: Contract suite every implementation must pass
*/
package account

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CustomerRepository interface {
	// Save inserts or updates. Assigns an id when c.ID is empty.
	Save(ctx context.Context, c *Customer) error
	FindByID(ctx context.Context, id CustomerID) (*Customer, error)
	FindByNationalID(ctx context.Context, nationalID string) (*Customer, error)
	FindAll(ctx context.Context) ([]Customer, error)
	// Search matches text case-insensitively against name, legal name and
	// national id.
	Search(ctx context.Context, text string) ([]Customer, error)
	Delete(ctx context.Context, id CustomerID) error
}

type InvoiceRepository interface {
	// Save inserts or updates. Assigns an id when inv.ID is empty.
	Save(ctx context.Context, inv *Invoice) error
	FindByID(ctx context.Context, id InvoiceID) (*Invoice, error)
	FindByCustomer(ctx context.Context, customerID CustomerID) ([]Invoice, error)
	// FindPending returns invoices with a remaining balance, by due date.
	FindPending(ctx context.Context, customerID CustomerID) ([]Invoice, error)
	// FindDueWithin returns pending invoices due in [asOf, asOf+days].
	FindDueWithin(ctx context.Context, days int, asOf time.Time, customerID CustomerID) ([]Invoice, error)
	// FindOverdue returns pending invoices due before asOf.
	FindOverdue(ctx context.Context, asOf time.Time, customerID CustomerID) ([]Invoice, error)
	FindAll(ctx context.Context) ([]Invoice, error)
}

type MovementRepository interface {
	// Save inserts a movement. Assigns an id when m.ID is empty.
	Save(ctx context.Context, m *Movement) error
	FindByID(ctx context.Context, id MovementID) (*Movement, error)
	// FindByCustomer returns movements in insertion order.
	FindByCustomer(ctx context.Context, customerID CustomerID) ([]Movement, error)
	FindBySourceDocument(ctx context.Context, sourceID string) ([]Movement, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Movement, error)
	// LatestBalance returns the stored CurrentBalance of the most recently
	// inserted movement, or zero when the customer has none. CreatedAt
	// plays no part.
	LatestBalance(ctx context.Context, customerID CustomerID) (decimal.Decimal, error)
	FindAll(ctx context.Context) ([]Movement, error)
}

// Store groups the repositories.
type Store interface {
	Customers() CustomerRepository
	Invoices() InvoiceRepository
	Movements() MovementRepository
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
