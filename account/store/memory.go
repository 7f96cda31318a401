// Package store provides in-memory account.Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/account"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	customers map[account.CustomerID]account.Customer
	invoices  map[account.InvoiceID]account.Invoice
	movements []account.Movement // insertion order
	byID      map[account.MovementID]int
	byKey     map[string]int
}

func newState() *state {
	return &state{
		customers: make(map[account.CustomerID]account.Customer),
		invoices:  make(map[account.InvoiceID]account.Invoice),
		byID:      make(map[account.MovementID]int),
		byKey:     make(map[string]int),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func (m *Memory) Customers() account.CustomerRepository { return customers{m.view(false)} }
func (m *Memory) Invoices() account.InvoiceRepository   { return invoices{m.view(false)} }
func (m *Memory) Movements() account.MovementRepository { return movements{m.view(false)} }

// view gives repositories access to the state. Inside WithTx the lock is
// already held, so the view must not take it again.
type view struct {
	m    *Memory
	inTx bool
}

func (m *Memory) view(inTx bool) view { return view{m: m, inTx: inTx} }

func (v view) read() (*state, func()) {
	if v.inTx {
		return v.m.st, func() {}
	}
	v.m.mu.RLock()
	return v.m.st, v.m.mu.RUnlock
}

func (v view) write() (*state, func()) {
	if v.inTx {
		return v.m.st, func() {}
	}
	v.m.mu.Lock()
	return v.m.st, v.m.mu.Unlock
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type customers struct{ v view }

func (r customers) Save(_ context.Context, c *account.Customer) error {
	st, unlock := r.v.write()
	defer unlock()
	if c.ID == "" {
		c.ID = account.CustomerID(uuid.NewString())
	}
	st.customers[c.ID] = *c
	return nil
}

func (r customers) FindByID(_ context.Context, id account.CustomerID) (*account.Customer, error) {
	st, unlock := r.v.read()
	defer unlock()
	c, ok := st.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r customers) FindByNationalID(_ context.Context, nationalID string) (*account.Customer, error) {
	if nationalID == "" {
		return nil, nil
	}
	st, unlock := r.v.read()
	defer unlock()
	for _, c := range st.customers {
		if c.NationalID == nationalID {
			return &c, nil
		}
	}
	return nil, nil
}

func (r customers) FindAll(_ context.Context) ([]account.Customer, error) {
	return r.filter(func(account.Customer) bool { return true }), nil
}

func (r customers) Search(_ context.Context, text string) ([]account.Customer, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	return r.filter(func(c account.Customer) bool {
		return strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(strings.ToLower(c.LegalName), needle) ||
			strings.Contains(strings.ToLower(c.NationalID), needle)
	}), nil
}

func (r customers) Delete(_ context.Context, id account.CustomerID) error {
	st, unlock := r.v.write()
	defer unlock()
	if _, ok := st.customers[id]; !ok {
		return &account.NotFoundError{Resource: "customer", ID: string(id)}
	}
	delete(st.customers, id)
	return nil
}

func (r customers) filter(keep func(account.Customer) bool) []account.Customer {
	st, unlock := r.v.read()
	defer unlock()
	result := []account.Customer{}
	for _, c := range st.customers {
		if keep(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// =============================================================================
// INVOICES
// =============================================================================

type invoices struct{ v view }

func (r invoices) Save(_ context.Context, inv *account.Invoice) error {
	st, unlock := r.v.write()
	defer unlock()
	if inv.ID == "" {
		inv.ID = account.InvoiceID(uuid.NewString())
	}
	st.invoices[inv.ID] = *inv
	return nil
}

func (r invoices) FindByID(_ context.Context, id account.InvoiceID) (*account.Invoice, error) {
	st, unlock := r.v.read()
	defer unlock()
	inv, ok := st.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (r invoices) FindByCustomer(_ context.Context, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.filter(byIssueDate, func(inv account.Invoice) bool {
		return inv.CustomerID == customerID
	}), nil
}

func (r invoices) FindPending(_ context.Context, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.filter(byDueDate, func(inv account.Invoice) bool {
		return ownedBy(inv, customerID) && !inv.IsPaid()
	}), nil
}

func (r invoices) FindDueWithin(_ context.Context, days int, asOf time.Time, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.filter(byDueDate, func(inv account.Invoice) bool {
		return ownedBy(inv, customerID) && !inv.IsPaid() && inv.IsDueSoon(asOf, days)
	}), nil
}

func (r invoices) FindOverdue(_ context.Context, asOf time.Time, customerID account.CustomerID) ([]account.Invoice, error) {
	return r.filter(byDueDate, func(inv account.Invoice) bool {
		return ownedBy(inv, customerID) && !inv.IsPaid() && inv.IsOverdue(asOf)
	}), nil
}

func (r invoices) FindAll(_ context.Context) ([]account.Invoice, error) {
	return r.filter(byIssueDate, func(account.Invoice) bool { return true }), nil
}

func (r invoices) filter(less func(a, b account.Invoice) bool, keep func(account.Invoice) bool) []account.Invoice {
	st, unlock := r.v.read()
	defer unlock()
	result := []account.Invoice{}
	for _, inv := range st.invoices {
		if keep(inv) {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

func ownedBy(inv account.Invoice, customerID account.CustomerID) bool {
	return customerID == "" || inv.CustomerID == customerID
}

func byIssueDate(a, b account.Invoice) bool {
	if !a.IssueDate.Equal(b.IssueDate) {
		return a.IssueDate.Before(b.IssueDate)
	}
	return a.Number < b.Number
}

func byDueDate(a, b account.Invoice) bool {
	if !a.DueDate.Equal(b.DueDate) {
		return a.DueDate.Before(b.DueDate)
	}
	return a.Number < b.Number
}

// =============================================================================
// MOVEMENTS - Append-only
// =============================================================================

type movements struct{ v view }

// Save inserts a movement. Append-only.
func (r movements) Save(_ context.Context, m *account.Movement) error {
	st, unlock := r.v.write()
	defer unlock()
	if m.ID == "" {
		m.ID = account.MovementID(uuid.NewString())
	}
	if _, ok := st.byID[m.ID]; ok {
		return account.ErrMovementExists
	}
	if m.IdempotencyKey != "" {
		if _, ok := st.byKey[m.IdempotencyKey]; ok {
			return account.ErrDuplicateIdempotencyKey
		}
		st.byKey[m.IdempotencyKey] = len(st.movements)
	}
	st.byID[m.ID] = len(st.movements)
	st.movements = append(st.movements, *m)
	return nil
}

func (r movements) FindByID(_ context.Context, id account.MovementID) (*account.Movement, error) {
	st, unlock := r.v.read()
	defer unlock()
	i, ok := st.byID[id]
	if !ok {
		return nil, nil
	}
	m := st.movements[i]
	return &m, nil
}

func (r movements) FindByCustomer(_ context.Context, customerID account.CustomerID) ([]account.Movement, error) {
	return r.filter(func(m account.Movement) bool { return m.CustomerID == customerID }), nil
}

func (r movements) FindBySourceDocument(_ context.Context, sourceID string) ([]account.Movement, error) {
	return r.filter(func(m account.Movement) bool { return m.SourceID() == sourceID }), nil
}

func (r movements) FindByIdempotencyKey(_ context.Context, key string) (*account.Movement, error) {
	st, unlock := r.v.read()
	defer unlock()
	i, ok := st.byKey[key]
	if !ok {
		return nil, nil
	}
	m := st.movements[i]
	return &m, nil
}

func (r movements) LatestBalance(_ context.Context, customerID account.CustomerID) (decimal.Decimal, error) {
	st, unlock := r.v.read()
	defer unlock()
	for i := len(st.movements) - 1; i >= 0; i-- {
		if st.movements[i].CustomerID == customerID {
			return st.movements[i].CurrentBalance, nil
		}
	}
	return decimal.Zero, nil
}

func (r movements) FindAll(_ context.Context) ([]account.Movement, error) {
	return r.filter(func(account.Movement) bool { return true }), nil
}

func (r movements) filter(keep func(account.Movement) bool) []account.Movement {
	st, unlock := r.v.read()
	defer unlock()
	result := []account.Movement{}
	for _, m := range st.movements {
		if keep(m) {
			result = append(result, m)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// fn must only use the Store it is given; the parent is locked meanwhile.
func (tm *TxMemory) WithTx(_ context.Context, fn func(account.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()

	if err := fn(txMemoryView{parent: tm.Memory}); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.movements = append([]account.Movement{}, s.movements...)
	for k, v := range s.byID {
		c.byID[k] = v
	}
	for k, v := range s.byKey {
		c.byKey[k] = v
	}
	return c
}

type txMemoryView struct {
	parent *Memory
}

func (tv txMemoryView) Customers() account.CustomerRepository {
	return customers{tv.parent.view(true)}
}

func (tv txMemoryView) Invoices() account.InvoiceRepository {
	return invoices{tv.parent.view(true)}
}

func (tv txMemoryView) Movements() account.MovementRepository {
	return movements{tv.parent.view(true)}
}
