/*
Package sqlite provides a SQLite-backed implementation of account.TxStore.

PURPOSE:
  Embedded persistence for single-node deployments, development and tests.
  PostgreSQL (store/postgres) implements the same contract for servers.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the movements table
  - No DELETE statements on the movements table
  - Corrections are new movements (reversals)

KEY TABLES:
  customers:  Customer records, including the denormalized balance hint
  invoices:   Invoices; paid is kept in step with amount_paid on every save
  movements:  Immutable ledger of balance-affecting events

ORDERING:
  Movements are returned in insertion order (rowid). Timestamps are stored
  as fixed-width UTC text so that string comparison is time comparison.

MONEY:
  Decimals are stored as TEXT and parsed with shopspring/decimal. SQLite's
  REAL would round.

CONCURRENCY:
  The pool is limited to one connection. SQLite allows a single writer
  anyway, and ":memory:" databases only exist on the connection that
  created them. Inside WithTx every repository reads and writes through
  the *sql.Tx, so the transaction sees its own writes.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := account.NewService(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - account/store.go: Interface definitions
  - account/storetest: Contract suite
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/account"
)

// timeLayout is RFC 3339 with a fixed nine-digit fraction.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements account.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		legal_name TEXT NOT NULL DEFAULT '',
		national_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		has_current_account BOOLEAN NOT NULL DEFAULT FALSE,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_national_id
		ON customers(national_id) WHERE national_id <> '';

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		total TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		sale_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_customer
		ON invoices(customer_id, issue_date);
	-- Pending/overdue/due-soon lookups (hot path for statements)
	CREATE INDEX IF NOT EXISTS idx_invoices_pending_due
		ON invoices(due_date) WHERE paid = FALSE;

	-- Movements (append-only ledger)
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		source_id TEXT,
		source_number TEXT,
		reversal_of TEXT,
		previous_balance TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_customer
		ON movements(customer_id);
	CREATE INDEX IF NOT EXISTS idx_movements_source
		ON movements(source_id) WHERE source_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_idempotency
		ON movements(idempotency_key) WHERE idempotency_key IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE (account.Store interface)
// =============================================================================

func (s *Store) Customers() account.CustomerRepository { return customers{q: s.db} }
func (s *Store) Invoices() account.InvoiceRepository   { return invoices{q: s.db} }
func (s *Store) Movements() account.MovementRepository { return movements{q: s.db} }

// =============================================================================
// TRANSACTIONAL STORE (account.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store account.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts txStore) Customers() account.CustomerRepository { return customers{q: ts.tx} }
func (ts txStore) Invoices() account.InvoiceRepository   { return invoices{q: ts.tx} }
func (ts txStore) Movements() account.MovementRepository { return movements{q: ts.tx} }

// =============================================================================
// CUSTOMERS
// =============================================================================

type customers struct{ q querier }

const customerColumns = `id, name, legal_name, national_id, email, phone, address,
	has_current_account, balance, created_at, updated_at`

func (r customers) Save(ctx context.Context, c *account.Customer) error {
	if c.ID == "" {
		c.ID = account.CustomerID(uuid.NewString())
	}
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			legal_name = excluded.legal_name,
			national_id = excluded.national_id,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address,
			has_current_account = excluded.has_current_account,
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`
	_, err := r.q.ExecContext(ctx, query,
		c.ID, c.Name, c.LegalName, c.NationalID, c.Email, c.Phone, c.Address,
		c.HasCurrentAccount, c.Balance.String(),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

func (r customers) FindByID(ctx context.Context, id account.CustomerID) (*account.Customer, error) {
	return r.one(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id)
}

func (r customers) FindByNationalID(ctx context.Context, nationalID string) (*account.Customer, error) {
	if nationalID == "" {
		return nil, nil
	}
	return r.one(ctx, "SELECT "+customerColumns+" FROM customers WHERE national_id = ? ORDER BY created_at LIMIT 1", nationalID)
}

func (r customers) FindAll(ctx context.Context) ([]account.Customer, error) {
	return r.list(ctx, "SELECT "+customerColumns+" FROM customers ORDER BY name, id")
}

func (r customers) Search(ctx context.Context, text string) ([]account.Customer, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(text)) + "%"
	return r.list(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE lower(name) LIKE ? OR lower(legal_name) LIKE ? OR lower(national_id) LIKE ?
		ORDER BY name, id`,
		like, like, like,
	)
}

func (r customers) Delete(ctx context.Context, id account.CustomerID) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &account.NotFoundError{Resource: "customer", ID: string(id)}
	}
	return nil
}

func (r customers) one(ctx context.Context, query string, args ...any) (*account.Customer, error) {
	c, err := scanCustomer(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r customers) list(ctx context.Context, query string, args ...any) ([]account.Customer, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	result := []account.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCustomer(row scanner) (account.Customer, error) {
	var (
		c                             account.Customer
		balance, createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.Name, &c.LegalName, &c.NationalID, &c.Email, &c.Phone, &c.Address,
		&c.HasCurrentAccount, &balance, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	var perr error
	c.Balance, perr = parseDecimal(balance, perr)
	c.CreatedAt, perr = parseTime(createdAt, perr)
	c.UpdatedAt, perr = parseTime(updatedAt, perr)
	if perr != nil {
		return c, fmt.Errorf("failed to scan customer %s: %w", c.ID, perr)
	}
	return c, nil
}

// =============================================================================
// INVOICES
// =============================================================================

type invoices struct{ q querier }

const invoiceColumns = `id, number, customer_id, issue_date, due_date, total, amount_paid,
	description, notes, sale_id, created_at, updated_at`

func (r invoices) Save(ctx context.Context, inv *account.Invoice) error {
	if inv.ID == "" {
		inv.ID = account.InvoiceID(uuid.NewString())
	}
	query := `
		INSERT INTO invoices (` + invoiceColumns + `, paid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount_paid = excluded.amount_paid,
			paid = excluded.paid,
			description = excluded.description,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`
	_, err := r.q.ExecContext(ctx, query,
		inv.ID, inv.Number, inv.CustomerID,
		formatTime(inv.IssueDate), formatTime(inv.DueDate),
		inv.Total.String(), inv.AmountPaid.String(),
		inv.Description, inv.Notes, inv.SaleID,
		formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt),
		inv.IsPaid(),
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (r invoices) FindByID(ctx context.Context, id account.InvoiceID) (*account.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r invoices) FindByCustomer(ctx context.Context, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE customer_id = ? ORDER BY issue_date, number", customerID)
}

func (r invoices) FindPending(ctx context.Context, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE paid = FALSE AND (? = '' OR customer_id = ?)
		ORDER BY due_date, number`,
		customerID, customerID,
	)
}

func (r invoices) FindDueWithin(ctx context.Context, days int, asOf time.Time, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE paid = FALSE AND due_date >= ? AND due_date <= ? AND (? = '' OR customer_id = ?)
		ORDER BY due_date, number`,
		formatTime(asOf), formatTime(asOf.AddDate(0, 0, days)), customerID, customerID,
	)
}

func (r invoices) FindOverdue(ctx context.Context, asOf time.Time, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE paid = FALSE AND due_date < ? AND (? = '' OR customer_id = ?)
		ORDER BY due_date, number`,
		formatTime(asOf), customerID, customerID,
	)
}

func (r invoices) FindAll(ctx context.Context) ([]account.Invoice, error) {
	return r.list(ctx, "SELECT "+invoiceColumns+" FROM invoices ORDER BY issue_date, number")
}

func (r invoices) list(ctx context.Context, query string, args ...any) ([]account.Invoice, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	result := []account.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func scanInvoice(row scanner) (account.Invoice, error) {
	var (
		inv                                   account.Invoice
		issueDate, dueDate, total, amountPaid string
		createdAt, updatedAt                  string
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &issueDate, &dueDate, &total, &amountPaid,
		&inv.Description, &inv.Notes, &inv.SaleID, &createdAt, &updatedAt)
	if err != nil {
		return inv, err
	}
	var perr error
	inv.IssueDate, perr = parseTime(issueDate, perr)
	inv.DueDate, perr = parseTime(dueDate, perr)
	inv.Total, perr = parseDecimal(total, perr)
	inv.AmountPaid, perr = parseDecimal(amountPaid, perr)
	inv.CreatedAt, perr = parseTime(createdAt, perr)
	inv.UpdatedAt, perr = parseTime(updatedAt, perr)
	if perr != nil {
		return inv, fmt.Errorf("failed to scan invoice %s: %w", inv.ID, perr)
	}
	return inv, nil
}

// =============================================================================
// MOVEMENTS - INSERT ONLY
// =============================================================================

type movements struct{ q querier }

const movementColumns = `id, customer_id, kind, date, amount, description, source_id, source_number,
	reversal_of, previous_balance, current_balance, notes, user_id, idempotency_key, created_at`

// Save inserts a movement. There is no update path.
func (r movements) Save(ctx context.Context, m *account.Movement) error {
	if m.ID == "" {
		m.ID = account.MovementID(uuid.NewString())
	}
	var sourceID, sourceNumber sql.NullString
	if m.Source != nil {
		sourceID = sql.NullString{String: m.Source.ID, Valid: true}
		sourceNumber = sql.NullString{String: m.Source.Number, Valid: true}
	}
	query := `
		INSERT INTO movements (` + movementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		m.ID, m.CustomerID, m.Kind, formatTime(m.Date), m.Amount.String(), m.Description,
		sourceID, sourceNumber, nullString(string(m.ReversalOf)),
		m.PreviousBalance.String(), m.CurrentBalance.String(),
		m.Notes, m.UserID, nullString(m.IdempotencyKey), formatTime(m.CreatedAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || strings.Contains(err.Error(), "movements.id") {
				return account.ErrMovementExists
			}
			return account.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

func (r movements) FindByID(ctx context.Context, id account.MovementID) (*account.Movement, error) {
	return r.one(ctx, "SELECT "+movementColumns+" FROM movements WHERE id = ?", id)
}

func (r movements) FindByCustomer(ctx context.Context, customerID account.CustomerID) ([]account.Movement, error) {
	return r.list(ctx, "SELECT "+movementColumns+" FROM movements WHERE customer_id = ? ORDER BY rowid", customerID)
}

func (r movements) FindBySourceDocument(ctx context.Context, sourceID string) ([]account.Movement, error) {
	return r.list(ctx, "SELECT "+movementColumns+" FROM movements WHERE source_id = ? ORDER BY rowid", sourceID)
}

func (r movements) FindByIdempotencyKey(ctx context.Context, key string) (*account.Movement, error) {
	if key == "" {
		return nil, nil
	}
	return r.one(ctx, "SELECT "+movementColumns+" FROM movements WHERE idempotency_key = ?", key)
}

func (r movements) LatestBalance(ctx context.Context, customerID account.CustomerID) (decimal.Decimal, error) {
	var balance string
	err := r.q.QueryRowContext(ctx,
		"SELECT current_balance FROM movements WHERE customer_id = ? ORDER BY rowid DESC LIMIT 1",
		customerID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read latest balance: %w", err)
	}
	return decimal.NewFromString(balance)
}

func (r movements) FindAll(ctx context.Context) ([]account.Movement, error) {
	return r.list(ctx, "SELECT "+movementColumns+" FROM movements ORDER BY rowid")
}

func (r movements) one(ctx context.Context, query string, args ...any) (*account.Movement, error) {
	m, err := scanMovement(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r movements) list(ctx context.Context, query string, args ...any) ([]account.Movement, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	result := []account.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMovement(row scanner) (account.Movement, error) {
	var (
		m                                account.Movement
		date, amount, prev, cur, created string
		sourceID, sourceNumber           sql.NullString
		reversalOf, idempotencyKey       sql.NullString
	)
	err := row.Scan(&m.ID, &m.CustomerID, &m.Kind, &date, &amount, &m.Description,
		&sourceID, &sourceNumber, &reversalOf, &prev, &cur,
		&m.Notes, &m.UserID, &idempotencyKey, &created)
	if err != nil {
		return m, err
	}
	if sourceID.Valid {
		m.Source = &account.SourceDocument{ID: sourceID.String, Number: sourceNumber.String}
	}
	m.ReversalOf = account.MovementID(reversalOf.String)
	m.IdempotencyKey = idempotencyKey.String

	var perr error
	m.Date, perr = parseTime(date, perr)
	m.Amount, perr = parseDecimal(amount, perr)
	m.PreviousBalance, perr = parseDecimal(prev, perr)
	m.CurrentBalance, perr = parseDecimal(cur, perr)
	m.CreatedAt, perr = parseTime(created, perr)
	if perr != nil {
		return m, fmt.Errorf("failed to scan movement %s: %w", m.ID, perr)
	}
	return m, nil
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime and parseDecimal keep the first error so a scan can parse
// every column and check once.
func parseTime(s string, prev error) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if prev != nil {
		return t, prev
	}
	return t, err
}

func parseDecimal(s string, prev error) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if prev != nil {
		return d, prev
	}
	return d, err
}
