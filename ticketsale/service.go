/*
service.go - Serialized, journaled access to the ticket ledger

PURPOSE:
  The ledger itself is a single-writer state machine. Service is the host
  side of that contract: it serializes every call behind one mutex and
  records each committed operation in the Journal before the change
  becomes visible.

COMMIT SEQUENCE (under the lock):
  1. Reject a reused idempotency key
  2. Plan the operation (all preconditions checked, nothing mutated)
  3. Append the event to the journal
  4. Apply the planned change

  A failure in steps 1-3 leaves the ledger untouched. Step 4 cannot fail.

STARTUP:
  Open replays the journal into a fresh ledger, so the in-memory state
  always equals "configuration + journaled events".

RESET:
  Reset clears the journal and rebuilds an empty ledger under the same
  lock, then commits any seed commands. No operation runs in between.

AUDIT:
  Audit re-verifies the invariants and rebuilds the ledger from the journal
  to confirm it matches the live state. api/scheduler.go runs it
  periodically.

SEE ALSO:
  - ledger.go: The state machine
  - replay.go: Command dispatch and replay
  - store/sqlite/sqlite.go: Durable Journal
*/
package ticketsale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/ticket-ledger/generic"
)

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	ledger  *TicketLedger
	journal generic.Journal
	lastSeq int64
	logger  *slog.Logger

	now func() time.Time
}

// Open builds the ledger from cfg and replays every journaled event.
func Open(ctx context.Context, cfg Config, journal generic.Journal, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	events, err := journal.Events(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	ledger, err := Replay(cfg, events)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		ledger:  ledger,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
	if n := len(events); n > 0 {
		s.lastSeq = events[n-1].Seq
	}
	logger.Info("ticket ledger opened",
		"total_tickets", cfg.TotalTickets,
		"ticket_price", ledger.TicketPrice().String(),
		"fee", ledger.FeePolicy().Describe(),
		"replayed_events", len(events),
		"sold", ledger.SoldCount())
	return s, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Execute commits cmd and returns the journaled event.
func (s *Service) Execute(ctx context.Context, cmd Command) (generic.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execute(ctx, cmd)
}

// execute runs the commit sequence. s.mu must be held.
func (s *Service) execute(ctx context.Context, cmd Command) (generic.Event, error) {
	if cmd.IdempotencyKey != "" {
		exists, err := s.journal.Exists(ctx, cmd.IdempotencyKey)
		if err != nil {
			return generic.Event{}, fmt.Errorf("%w: %v", generic.ErrJournalFailed, err)
		}
		if exists {
			return generic.Event{}, generic.ErrDuplicateIdempotencyKey
		}
	}

	apply, ticket, err := s.ledger.plan(cmd)
	if err != nil {
		s.logger.Debug("operation rejected", "op", cmd.Kind, "caller", cmd.Caller, "ticket", cmd.TicketID, "error", err)
		return generic.Event{}, err
	}

	ev := generic.Event{
		ID:             uuid.NewString(),
		Kind:           cmd.Kind,
		Account:        cmd.Caller,
		TicketID:       ticket,
		Amount:         cmd.Amount,
		IdempotencyKey: cmd.IdempotencyKey,
		RecordedAt:     s.now().UTC(),
	}
	seq, err := s.journal.Append(ctx, ev)
	if err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			return generic.Event{}, err
		}
		s.logger.Error("journal append failed", "op", cmd.Kind, "caller", cmd.Caller, "error", err)
		return generic.Event{}, fmt.Errorf("%w: %v", generic.ErrJournalFailed, err)
	}
	ev.Seq = seq

	apply()
	s.lastSeq = seq
	s.logger.Info("operation committed", "seq", seq, "op", cmd.Kind, "caller", cmd.Caller, "ticket", ticket)
	return ev, nil
}

func (s *Service) BuyTicket(ctx context.Context, caller generic.AccountID, id generic.TicketID, payment generic.Amount, key string) (generic.Event, error) {
	return s.Execute(ctx, Command{Kind: generic.EventPurchase, Caller: caller, TicketID: id, Amount: payment, IdempotencyKey: key})
}

func (s *Service) OfferSwap(ctx context.Context, caller generic.AccountID, id generic.TicketID, key string) (generic.Event, error) {
	return s.Execute(ctx, Command{Kind: generic.EventSwapOffered, Caller: caller, TicketID: id, IdempotencyKey: key})
}

func (s *Service) CancelSwap(ctx context.Context, caller generic.AccountID, id generic.TicketID, key string) (generic.Event, error) {
	return s.Execute(ctx, Command{Kind: generic.EventSwapCancelled, Caller: caller, TicketID: id, IdempotencyKey: key})
}

func (s *Service) AcceptSwap(ctx context.Context, caller generic.AccountID, id generic.TicketID, key string) (generic.Event, error) {
	return s.Execute(ctx, Command{Kind: generic.EventSwapAccepted, Caller: caller, TicketID: id, IdempotencyKey: key})
}

func (s *Service) ResaleTicket(ctx context.Context, caller generic.AccountID, price generic.Amount, key string) (generic.Event, error) {
	return s.Execute(ctx, Command{Kind: generic.EventResaleListed, Caller: caller, Amount: price, IdempotencyKey: key})
}

func (s *Service) CancelResale(ctx context.Context, caller generic.AccountID, key string) (generic.Event, error) {
	return s.Execute(ctx, Command{Kind: generic.EventResaleCancelled, Caller: caller, IdempotencyKey: key})
}

func (s *Service) AcceptResale(ctx context.Context, caller generic.AccountID, id generic.TicketID, payment generic.Amount, key string) (generic.Event, error) {
	return s.Execute(ctx, Command{Kind: generic.EventResaleAccepted, Caller: caller, TicketID: id, Amount: payment, IdempotencyKey: key})
}

// =============================================================================
// QUERIES
// =============================================================================

// View runs fn with the ledger locked. fn must not retain or mutate l.
func (s *Service) View(fn func(l *TicketLedger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ledger)
}

func (s *Service) TicketOf(account generic.AccountID) generic.TicketID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.TicketOf(account)
}

func (s *Service) CheckResale() ([]generic.TicketID, []generic.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CheckResale()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot()
}

// LastSeq returns the sequence number of the last committed event.
func (s *Service) LastSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// Config returns the configuration the ledger was built from.
func (s *Service) Config() Config {
	return s.cfg
}

// Reset clears the journal, starts over from an empty ledger and commits
// seed in order. If a seed command is rejected, Reset stops there; the
// commands before it stay committed and the journal still matches the ledger.
func (s *Service) Reset(ctx context.Context, seed ...Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := New(s.cfg)
	if err != nil {
		return err
	}
	if err := s.journal.Reset(ctx); err != nil {
		s.logger.Error("journal reset failed", "error", err)
		return fmt.Errorf("%w: %v", generic.ErrJournalFailed, err)
	}
	s.ledger = ledger
	s.lastSeq = 0
	s.logger.Warn("ticket ledger reset", "seed_commands", len(seed))

	for i, cmd := range seed {
		if _, err := s.execute(ctx, cmd); err != nil {
			return fmt.Errorf("seed command %d (%s): %w", i+1, cmd.Kind, err)
		}
	}
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditReport is the outcome of one Audit run.
type AuditReport struct {
	EventsReplayed int
	LastSeq        int64
	Verified       bool // invariants hold on the live ledger
	Consistent     bool // journal replay equals the live ledger
	Problem        string
}

// Audit checks the live ledger's invariants and compares it against a
// ledger rebuilt from the journal. An error is returned only when the
// journal cannot be read; findings are reported in the AuditReport.
func (s *Service) Audit(ctx context.Context) (AuditReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := AuditReport{LastSeq: s.lastSeq}
	if err := s.ledger.Verify(); err != nil {
		report.Problem = err.Error()
		return report, nil
	}
	report.Verified = true

	events, err := s.journal.Events(ctx, 0)
	if err != nil {
		return report, fmt.Errorf("failed to load journal: %w", err)
	}
	report.EventsReplayed = len(events)

	rebuilt, err := Replay(s.cfg, events)
	if err != nil {
		report.Problem = err.Error()
		return report, nil
	}
	if !rebuilt.Snapshot().Equal(s.ledger.Snapshot()) {
		report.Problem = "journal replay differs from live ledger"
		return report, nil
	}
	report.Consistent = true
	return report, nil
}
