/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Periodically audits the live ticket ledger: invariants must hold and a
  ledger rebuilt from the journal must equal the live one. Every run is
  recorded in audit_runs for the API and operators.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - A failed audit is recorded and logged at error level; the server keeps
    serving. Operators decide what to do with a diverged journal.

RUN STATUS:
  passed  invariants hold and replay matches
  failed  invariant violated or replay differs (Problem says which)
  error   journal could not be read

USAGE:
  scheduler := NewAuditScheduler(store, service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerAudit endpoint (manual audit)
  - ticketsale/service.go: Service.Audit
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/ticket-ledger/store/sqlite"
	"github.com/warp/ticket-ledger/ticketsale"
)

const (
	AuditPassed = "passed"
	AuditFailed = "failed"
	AuditError  = "error"
)

// AuditScheduler audits the ledger on a fixed interval.
type AuditScheduler struct {
	Store         *sqlite.Store
	Service       *ticketsale.Service
	CheckInterval time.Duration
	Enabled       bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAuditScheduler creates a new scheduler with an hourly interval.
func NewAuditScheduler(store *sqlite.Store, service *ticketsale.Service, logger *slog.Logger) *AuditScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditScheduler{
		Store:         store,
		Service:       service,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger.With("component", "audit_scheduler"),
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.logger.Info("disabled, not starting")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan struct{})
	as.wg.Add(1)

	go as.run(as.ticker.C, as.stop)

	as.logger.Info("started", "interval", as.CheckInterval.String())
}

// Stop stops the scheduler and waits for an in-flight audit.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.ticker = nil
		as.logger.Info("stopped")
	}
}

func (as *AuditScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer as.wg.Done()

	// Run immediately on start
	as.RunNow()

	for {
		select {
		case <-tick:
			as.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow runs one audit synchronously.
func (as *AuditScheduler) RunNow() {
	if _, err := RunAudit(context.Background(), as.Store, as.Service, as.logger); err != nil {
		as.logger.Error("audit run not recorded", "error", err)
	}
}

// RunAudit audits service against its journal and stores the run.
// The returned error concerns storing the run; audit findings are in the
// run's Status and Problem.
func RunAudit(ctx context.Context, store *sqlite.Store, service *ticketsale.Service, logger *slog.Logger) (sqlite.AuditRun, error) {
	run := sqlite.AuditRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	report, err := service.Audit(ctx)
	run.CompletedAt = time.Now().UTC()
	run.LastSeq = report.LastSeq
	run.EventsReplayed = report.EventsReplayed

	switch {
	case err != nil:
		run.Status = AuditError
		run.Problem = err.Error()
		logger.Error("audit could not read journal", "run", run.ID, "error", err)
	case !report.Verified || !report.Consistent:
		run.Status = AuditFailed
		run.Problem = report.Problem
		logger.Error("audit failed", "run", run.ID, "last_seq", run.LastSeq, "problem", run.Problem)
	default:
		run.Status = AuditPassed
		logger.Info("audit passed", "run", run.ID, "last_seq", run.LastSeq, "events", run.EventsReplayed)
	}

	if err := store.SaveAuditRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to save audit run: %w", err)
	}
	return run, nil
}
