/*
Package postgres provides a PostgreSQL-backed implementation of
account.TxStore using pgx.

SCHEMA:
  Versioned goose migrations embedded from migrations/. Migrate applies
  them through a database/sql handle opened on the same pool.

MONEY:
  NUMERIC columns without scale. Values travel as decimal strings in both
  directions so nothing passes through float64.

ORDERING:
  movements.seq (BIGSERIAL) is the insertion order.

TRANSACTIONS:
  WithTx runs the callback inside pgx.BeginTxFunc. Repositories are built
  on a querier so the same code serves the pool and the transaction.
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/account"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Store implements account.TxStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig tunes the connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// New connects to the database at url and verifies the connection.
func New(ctx context.Context, url string, pc PoolConfig) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		config.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func (s *Store) Version(ctx context.Context) (int64, error) {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// Truncate removes every row. Intended for test databases.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE movements, invoices, customers RESTART IDENTITY")
	return err
}

// =============================================================================
// STORE
// =============================================================================

func (s *Store) Customers() account.CustomerRepository { return customers{q: s.pool} }
func (s *Store) Invoices() account.InvoiceRepository   { return invoices{q: s.pool} }
func (s *Store) Movements() account.MovementRepository { return movements{q: s.pool} }

// WithTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(account.Store) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(txStore{tx: tx})
	})
}

type txStore struct {
	tx pgx.Tx
}

func (ts txStore) Customers() account.CustomerRepository { return customers{q: ts.tx} }
func (ts txStore) Invoices() account.InvoiceRepository   { return invoices{q: ts.tx} }
func (ts txStore) Movements() account.MovementRepository { return movements{q: ts.tx} }

// =============================================================================
// CUSTOMERS
// =============================================================================

type customers struct{ q querier }

const customerColumns = `id, name, legal_name, national_id, email, phone, address,
	has_current_account, balance::text, created_at, updated_at`

func (r customers) Save(ctx context.Context, c *account.Customer) error {
	if c.ID == "" {
		c.ID = account.CustomerID(uuid.NewString())
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO customers (id, name, legal_name, national_id, email, phone, address,
			has_current_account, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			legal_name = EXCLUDED.legal_name,
			national_id = EXCLUDED.national_id,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			has_current_account = EXCLUDED.has_current_account,
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`,
		string(c.ID), c.Name, c.LegalName, c.NationalID, c.Email, c.Phone, c.Address,
		c.HasCurrentAccount, c.Balance.String(), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

func (r customers) FindByID(ctx context.Context, id account.CustomerID) (*account.Customer, error) {
	return r.one(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = $1", string(id))
}

func (r customers) FindByNationalID(ctx context.Context, nationalID string) (*account.Customer, error) {
	if nationalID == "" {
		return nil, nil
	}
	return r.one(ctx, "SELECT "+customerColumns+" FROM customers WHERE national_id = $1 ORDER BY created_at LIMIT 1", nationalID)
}

func (r customers) FindAll(ctx context.Context) ([]account.Customer, error) {
	return r.list(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name COLLATE "C", id`)
}

func (r customers) Search(ctx context.Context, text string) ([]account.Customer, error) {
	like := "%" + strings.TrimSpace(text) + "%"
	return r.list(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE name ILIKE $1 OR legal_name ILIKE $1 OR national_id ILIKE $1
		ORDER BY name COLLATE "C", id`,
		like,
	)
}

func (r customers) Delete(ctx context.Context, id account.CustomerID) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM customers WHERE id = $1", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &account.NotFoundError{Resource: "customer", ID: string(id)}
	}
	return nil
}

func (r customers) one(ctx context.Context, query string, args ...any) (*account.Customer, error) {
	c, err := scanCustomer(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r customers) list(ctx context.Context, query string, args ...any) ([]account.Customer, error) {
	rows, err := r.q.Query(ctx, query, args...)
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

func scanCustomer(row pgx.Row) (account.Customer, error) {
	var (
		c       account.Customer
		id      string
		balance string
	)
	err := row.Scan(&id, &c.Name, &c.LegalName, &c.NationalID, &c.Email, &c.Phone, &c.Address,
		&c.HasCurrentAccount, &balance, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.ID = account.CustomerID(id)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.Balance, err = decimal.NewFromString(balance); err != nil {
		return c, fmt.Errorf("failed to scan customer %s: %w", id, err)
	}
	return c, nil
}

// =============================================================================
// INVOICES
// =============================================================================

type invoices struct{ q querier }

const invoiceColumns = `id, number, customer_id, issue_date, due_date, total::text, amount_paid::text,
	description, notes, sale_id, created_at, updated_at`

func (r invoices) Save(ctx context.Context, inv *account.Invoice) error {
	if inv.ID == "" {
		inv.ID = account.InvoiceID(uuid.NewString())
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO invoices (id, number, customer_id, issue_date, due_date, total, amount_paid,
			description, notes, sale_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			amount_paid = EXCLUDED.amount_paid,
			description = EXCLUDED.description,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`,
		string(inv.ID), inv.Number, string(inv.CustomerID), inv.IssueDate, inv.DueDate,
		inv.Total.String(), inv.AmountPaid.String(),
		inv.Description, inv.Notes, inv.SaleID, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (r invoices) FindByID(ctx context.Context, id account.InvoiceID) (*account.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r invoices) FindByCustomer(ctx context.Context, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE customer_id = $1 ORDER BY issue_date, number COLLATE "C"`,
		string(customerID))
}

func (r invoices) FindPending(ctx context.Context, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE amount_paid < total AND ($1 = '' OR customer_id = $1)
		ORDER BY due_date, number COLLATE "C"`,
		string(customerID),
	)
}

func (r invoices) FindDueWithin(ctx context.Context, days int, asOf time.Time, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE amount_paid < total AND due_date BETWEEN $1 AND $2 AND ($3 = '' OR customer_id = $3)
		ORDER BY due_date, number COLLATE "C"`,
		asOf, asOf.AddDate(0, 0, days), string(customerID),
	)
}

func (r invoices) FindOverdue(ctx context.Context, asOf time.Time, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.list(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE amount_paid < total AND due_date < $1 AND ($2 = '' OR customer_id = $2)
		ORDER BY due_date, number COLLATE "C"`,
		asOf, string(customerID),
	)
}

func (r invoices) FindAll(ctx context.Context) ([]account.Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY issue_date, number COLLATE "C"`)
}

func (r invoices) list(ctx context.Context, query string, args ...any) ([]account.Invoice, error) {
	rows, err := r.q.Query(ctx, query, args...)
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

func scanInvoice(row pgx.Row) (account.Invoice, error) {
	var (
		inv               account.Invoice
		id, customerID    string
		total, amountPaid string
	)
	err := row.Scan(&id, &inv.Number, &customerID, &inv.IssueDate, &inv.DueDate, &total, &amountPaid,
		&inv.Description, &inv.Notes, &inv.SaleID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return inv, err
	}
	inv.ID = account.InvoiceID(id)
	inv.CustomerID = account.CustomerID(customerID)
	inv.IssueDate = inv.IssueDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return inv, fmt.Errorf("failed to scan invoice %s: %w", id, err)
	}
	if inv.AmountPaid, err = decimal.NewFromString(amountPaid); err != nil {
		return inv, fmt.Errorf("failed to scan invoice %s: %w", id, err)
	}
	return inv, nil
}

// =============================================================================
// MOVEMENTS - INSERT ONLY
// =============================================================================

type movements struct{ q querier }

const movementColumns = `id, customer_id, kind, date, amount::text, description, source_id, source_number,
	reversal_of, previous_balance::text, current_balance::text, notes, user_id, idempotency_key, created_at`

// Save inserts a movement. There is no update path.
func (r movements) Save(ctx context.Context, m *account.Movement) error {
	if m.ID == "" {
		m.ID = account.MovementID(uuid.NewString())
	}
	var sourceID, sourceNumber *string
	if m.Source != nil {
		sourceID, sourceNumber = &m.Source.ID, &m.Source.Number
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO movements (id, customer_id, kind, date, amount, description, source_id, source_number,
			reversal_of, previous_balance, current_balance, notes, user_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10::numeric, $11::numeric, $12, $13, $14, $15)`,
		string(m.ID), string(m.CustomerID), string(m.Kind), m.Date, m.Amount.String(), m.Description,
		sourceID, sourceNumber, nullable(string(m.ReversalOf)),
		m.PreviousBalance.String(), m.CurrentBalance.String(),
		m.Notes, m.UserID, nullable(m.IdempotencyKey), m.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "movements_pkey" {
				return account.ErrMovementExists
			}
			return account.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

func (r movements) FindByID(ctx context.Context, id account.MovementID) (*account.Movement, error) {
	return r.one(ctx, "SELECT "+movementColumns+" FROM movements WHERE id = $1", string(id))
}

func (r movements) FindByCustomer(ctx context.Context, customerID account.CustomerID) ([]account.Movement, error) {
	return r.list(ctx, "SELECT "+movementColumns+" FROM movements WHERE customer_id = $1 ORDER BY seq", string(customerID))
}

func (r movements) FindBySourceDocument(ctx context.Context, sourceID string) ([]account.Movement, error) {
	return r.list(ctx, "SELECT "+movementColumns+" FROM movements WHERE source_id = $1 ORDER BY seq", sourceID)
}

func (r movements) FindByIdempotencyKey(ctx context.Context, key string) (*account.Movement, error) {
	if key == "" {
		return nil, nil
	}
	return r.one(ctx, "SELECT "+movementColumns+" FROM movements WHERE idempotency_key = $1", key)
}

func (r movements) LatestBalance(ctx context.Context, customerID account.CustomerID) (decimal.Decimal, error) {
	var balance string
	err := r.q.QueryRow(ctx,
		"SELECT current_balance::text FROM movements WHERE customer_id = $1 ORDER BY seq DESC LIMIT 1",
		string(customerID),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read latest balance: %w", err)
	}
	return decimal.NewFromString(balance)
}

func (r movements) FindAll(ctx context.Context) ([]account.Movement, error) {
	return r.list(ctx, "SELECT "+movementColumns+" FROM movements ORDER BY seq")
}

func (r movements) one(ctx context.Context, query string, args ...any) (*account.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r movements) list(ctx context.Context, query string, args ...any) ([]account.Movement, error) {
	rows, err := r.q.Query(ctx, query, args...)
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

func scanMovement(row pgx.Row) (account.Movement, error) {
	var (
		m                                       account.Movement
		id, customerID, kind                    string
		amount, prev, cur                       string
		sourceID, sourceNumber, reversalOf, key *string
	)
	err := row.Scan(&id, &customerID, &kind, &m.Date, &amount, &m.Description,
		&sourceID, &sourceNumber, &reversalOf, &prev, &cur,
		&m.Notes, &m.UserID, &key, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	m.ID = account.MovementID(id)
	m.CustomerID = account.CustomerID(customerID)
	m.Kind = account.Kind(kind)
	m.Date = m.Date.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	if sourceID != nil {
		m.Source = &account.SourceDocument{ID: *sourceID, Number: deref(sourceNumber)}
	}
	m.ReversalOf = account.MovementID(deref(reversalOf))
	m.IdempotencyKey = deref(key)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&m.Amount, amount}, {&m.PreviousBalance, prev}, {&m.CurrentBalance, cur}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return m, fmt.Errorf("failed to scan movement %s: %w", id, err)
		}
	}
	return m, nil
}

// Helper functions

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
