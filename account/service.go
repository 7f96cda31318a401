/*
service.go - Ledger workflows

PURPOSE:
  The Service is the only mutator of customer balances and the movement
  stream. Each workflow is one request-driven operation that issues its
  repository calls sequentially.

UNIT OF WORK:
  Every workflow runs through run(). When the store implements TxStore the
  whole workflow executes inside WithTx, so the document write, the
  customer update and the movement insert commit together. Plain stores
  get sequential writes with no compensation: a failure after the first
  write leaves what was already written.

CONCURRENCY:
  No locking happens here. Two concurrent payments for the same customer
  may both read the same LatestBalance, so the stored snapshots and the
  customer's Balance can drift. Statement replays the ledger and is not
  affected; Reconcile repairs the Balance hint.

SEE ALSO:
  - issuance.go, payment.go, sale.go: the workflows
  - statement.go: the read path
*/
package account

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDueSoonDays is the window used to flag invoices about to fall due.
const DefaultDueSoonDays = 5

type Service struct {
	store       Store
	clock       Clock
	observer    Observer
	cache       BalanceCache
	log         zerolog.Logger
	dueSoonDays int
}

type Option func(*Service)

func WithClock(c Clock) Option           { return func(s *Service) { s.clock = c } }
func WithObserver(o Observer) Option     { return func(s *Service) { s.observer = o } }
func WithCache(c BalanceCache) Option    { return func(s *Service) { s.cache = c } }
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

func WithDueSoonDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.dueSoonDays = days
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		clock:       SystemClock{},
		observer:    nopObserver{},
		cache:       nopCache{},
		log:         zerolog.Nop(),
		dueSoonDays: DefaultDueSoonDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() Store   { return s.store }
func (s *Service) Clock() Clock   { return s.clock }
func (s *Service) now() time.Time { return s.clock.Now() }

// =============================================================================
// UNIT OF WORK
// =============================================================================

// unit is the session handle threaded through one workflow.
type unit struct {
	Store
	ledger   *Ledger
	touched  []CustomerID
	appended []*Movement
}

func (u *unit) append(ctx context.Context, m *Movement) error {
	if err := u.ledger.Append(ctx, m); err != nil {
		return err
	}
	u.appended = append(u.appended, m)
	u.touch(m.CustomerID)
	return nil
}

func (u *unit) touch(id CustomerID) {
	for _, t := range u.touched {
		if t == id {
			return
		}
	}
	u.touched = append(u.touched, id)
}

func (s *Service) run(ctx context.Context, op string, fn func(u *unit) error) error {
	start := time.Now()

	var u *unit
	exec := func(st Store) error {
		u = &unit{Store: st, ledger: NewLedger(st.Movements())}
		return fn(u)
	}

	var err error
	if tx, ok := s.store.(TxStore); ok {
		err = tx.WithTx(ctx, exec)
	} else {
		err = exec(s.store)
	}
	elapsed := time.Since(start)
	s.observer.WorkflowFinished(op, err, elapsed)

	// Without a transaction a failed workflow may still have written, so
	// cached totals are dropped either way.
	if u != nil {
		for _, id := range u.touched {
			if cerr := s.cache.Invalidate(ctx, id); cerr != nil {
				s.log.Warn().Err(cerr).Str("customer_id", string(id)).Msg("balance cache invalidation failed")
			}
		}
	}

	if err != nil {
		s.log.Warn().
			Err(err).
			Str("op", op).
			Bool("client_error", IsClientError(err)).
			Dur("elapsed", elapsed).
			Msg("workflow failed")
		return err
	}
	s.log.Info().Str("op", op).Dur("elapsed", elapsed).Msg("workflow completed")

	for _, m := range u.appended {
		s.observer.MovementAppended(m)
		s.log.Debug().
			Str("op", op).
			Str("customer_id", string(m.CustomerID)).
			Str("movement_id", string(m.ID)).
			Str("kind", string(m.Kind)).
			Str("amount", m.Amount.String()).
			Msg("movement appended")
	}
	return nil
}

// loadAccountCustomer loads a customer that must exist and be allowed to
// carry a balance.
func loadAccountCustomer(ctx context.Context, st Store, op string, id CustomerID) (*Customer, error) {
	c, err := st.Customers().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("customer", string(id))
	}
	if !c.HasCurrentAccount {
		return nil, rejected(op, "customer "+c.Name+" has no current account")
	}
	return c, nil
}
