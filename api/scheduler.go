/*
scheduler.go - Periodic balance reconciliation

PURPOSE:
  Runs ReconcileAll on an interval so that the stored Customer.Balance
  converges on the replayed ledger total, and keeps a short history of
  runs for the admin endpoints.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - First run happens immediately on Start
  - A failed customer stops the run; the next tick tries again
  - The last maxRuns runs are kept in memory

CONFIGURATION:
  - CheckInterval: How often to run. Zero or negative disables the loop;
    RunNow still works.

USAGE:
  scheduler := NewReconciliationScheduler(service, log)
  scheduler.CheckInterval = time.Hour
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - account/reconcile.go: Reconcile and ReconcileAll
  - handlers.go: Reconcile endpoint for a single customer
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/retail-ledger/account"
)

const maxRuns = 20

// ReconciliationRun is the outcome of one ReconcileAll pass.
type ReconciliationRun struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Checked    int
	Repaired   []account.Drift
	Err        error
}

// ReconciliationScheduler handles automated balance reconciliation.
type ReconciliationScheduler struct {
	Service       *account.Service
	CheckInterval time.Duration

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.Mutex
	runs   []ReconciliationRun
}

func NewReconciliationScheduler(svc *account.Service, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Service:       svc,
		CheckInterval: time.Hour,
		log:           log,
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.CheckInterval <= 0 {
		rs.log.Info().Msg("reconciliation scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("reconciliation scheduler started")
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.cancel()
	rs.wg.Wait()
	rs.ticker = nil
	rs.log.Info().Msg("reconciliation scheduler stopped")
}

func (rs *ReconciliationScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(ctx)
		case <-rs.stop:
			return
		}
	}
}

// RunNow reconciles every customer and records the run.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) ReconciliationRun {
	run := ReconciliationRun{StartedAt: time.Now().UTC()}

	drifts, err := rs.Service.ReconcileAll(ctx)
	run.FinishedAt = time.Now().UTC()
	run.Checked = len(drifts)
	run.Err = err
	for _, d := range drifts {
		if d.Repaired {
			run.Repaired = append(run.Repaired, d)
			rs.log.Warn().
				Str("customer_id", string(d.CustomerID)).
				Str("stored", d.Stored.String()).
				Str("replayed", d.Replayed.String()).
				Msg("repaired drifted balance")
		}
	}

	event := rs.log.Info()
	if err != nil {
		event = rs.log.Error().Err(err)
	}
	event.
		Int("checked", run.Checked).
		Int("repaired", len(run.Repaired)).
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Msg("reconciliation run finished")

	rs.record(run)
	return run
}

func (rs *ReconciliationScheduler) record(run ReconciliationRun) {
	rs.runsMu.Lock()
	defer rs.runsMu.Unlock()
	rs.runs = append(rs.runs, run)
	if len(rs.runs) > maxRuns {
		rs.runs = rs.runs[len(rs.runs)-maxRuns:]
	}
}

// Runs returns recorded runs, newest first.
func (rs *ReconciliationScheduler) Runs() []ReconciliationRun {
	rs.runsMu.Lock()
	defer rs.runsMu.Unlock()
	out := make([]ReconciliationRun, len(rs.runs))
	for i, r := range rs.runs {
		out[len(rs.runs)-1-i] = r
	}
	return out
}

// =============================================================================
// HANDLERS
// =============================================================================

// TriggerReconciliation runs a reconciliation pass synchronously.
// POST /api/reconciliation/run
func (h *Handler) TriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	run := h.Reconciler.RunNow(r.Context())
	if run.Err != nil {
		h.writeServiceError(w, r, "Reconciliation failed", run.Err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationRunDTO(run))
}

// ListReconciliationRuns returns recent runs, newest first.
// GET /api/reconciliation/runs
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.Reconciler.Runs()
	dtos := make([]ReconciliationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toReconciliationRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}
