/*
Package sqlite provides a SQLite-backed implementation of the ledger journal.

PURPOSE:
  Implements generic.Journal using SQLite, plus the two tables the server
  needs around it: the ledger configuration the journal was written under,
  and the history of audit runs.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the events table
  - No DELETE statements on the events table, except Reset (dev only)

KEY TABLES:
  ledger_config: Single row. Total tickets, face price, fee definition
  events:        Committed operations in commit order (seq)
  audit_runs:    Results of periodic journal/ledger audits

INDEXES:
  - idx_events_idempotency: Enforces one operation per idempotency key

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection so that
  ":memory:" databases are shared by every query.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/tickets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc, err := ticketsale.Open(ctx, cfg, store, logger)

SEE ALSO:
  - generic/journal.go: Interface definition
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/ticket-ledger/generic"
)

// ErrConfigMismatch is returned when a database already belongs to a ledger
// with different parameters.
var ErrConfigMismatch = errors.New("stored ledger configuration differs")

// Store implements generic.Journal using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.Journal = (*Store)(nil)

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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger configuration (single row)
	CREATE TABLE IF NOT EXISTS ledger_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_tickets INTEGER NOT NULL,
		ticket_price TEXT NOT NULL,
		fee_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Events (append-only journal)
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		account_id TEXT NOT NULL,
		ticket_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		idempotency_key TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_idempotency
		ON events(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- For per-account history
	CREATE INDEX IF NOT EXISTS idx_events_account
		ON events(account_id, seq);

	-- Audit runs (for the audit scheduler)
	CREATE TABLE IF NOT EXISTS audit_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		last_seq INTEGER NOT NULL,
		events_replayed INTEGER NOT NULL,
		problem TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_runs_started
		ON audit_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER CONFIG
// =============================================================================

// ConfigRecord is the stored ledger configuration.
type ConfigRecord struct {
	TotalTickets uint64
	TicketPrice  generic.Amount
	FeeJSON      string
	CreatedAt    time.Time
}

// Matches reports whether two records describe the same ledger.
func (c ConfigRecord) Matches(o ConfigRecord) bool {
	return c.TotalTickets == o.TotalTickets &&
		c.TicketPrice.Equal(o.TicketPrice) &&
		c.FeeJSON == o.FeeJSON
}

// LoadConfig returns the stored configuration, or nil if none was saved.
func (s *Store) LoadConfig(ctx context.Context) (*ConfigRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec       ConfigRecord
		price     string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT total_tickets, ticket_price, fee_json, created_at FROM ledger_config WHERE id = 1`,
	).Scan(&rec.TotalTickets, &price, &rec.FeeJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger config: %w", err)
	}

	rec.TicketPrice, err = generic.ParseAmount(price)
	if err != nil {
		return nil, fmt.Errorf("corrupt ledger config: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}

// EnsureConfig stores rec if the database has no configuration yet.
// Otherwise it returns the stored record, or ErrConfigMismatch when it
// differs from rec.
func (s *Store) EnsureConfig(ctx context.Context, rec ConfigRecord) (*ConfigRecord, error) {
	existing, err := s.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Matches(rec) {
			return existing, fmt.Errorf("%w: stored %d tickets at %s (%s), configured %d at %s (%s)",
				ErrConfigMismatch,
				existing.TotalTickets, existing.TicketPrice, existing.FeeJSON,
				rec.TotalTickets, rec.TicketPrice, rec.FeeJSON)
		}
		return existing, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_config (id, total_tickets, ticket_price, fee_json, created_at) VALUES (1, ?, ?, ?, ?)`,
		rec.TotalTickets, rec.TicketPrice.String(), rec.FeeJSON, rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save ledger config: %w", err)
	}
	return &rec, nil
}

// =============================================================================
// JOURNAL (generic.Journal interface)
// =============================================================================

// Append adds an event to the journal and returns its sequence number.
func (s *Store) Append(ctx context.Context, ev generic.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO events
		(id, kind, account_id, ticket_id, amount, idempotency_key, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		ev.ID,
		string(ev.Kind),
		string(ev.Account),
		uint64(ev.TicketID),
		ev.Amount.String(),
		nullString(ev.IdempotencyKey),
		ev.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key") {
			return 0, generic.ErrDuplicateIdempotencyKey
		}
		return 0, fmt.Errorf("failed to append event: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event sequence: %w", err)
	}
	return seq, nil
}

// Events returns events with seq > afterSeq in commit order.
func (s *Store) Events(ctx context.Context, afterSeq int64) ([]generic.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT seq, id, kind, account_id, ticket_id, amount, idempotency_key, recorded_at
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
	`
	return s.queryEvents(ctx, query, afterSeq)
}

// EventsByAccount returns the events an account triggered, oldest first.
func (s *Store) EventsByAccount(ctx context.Context, account generic.AccountID) ([]generic.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT seq, id, kind, account_id, ticket_id, amount, idempotency_key, recorded_at
		FROM events
		WHERE account_id = ?
		ORDER BY seq ASC
	`
	return s.queryEvents(ctx, query, string(account))
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]generic.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []generic.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (generic.Event, error) {
	var (
		ev             generic.Event
		kind           string
		account        string
		ticketID       uint64
		amount         string
		idempotencyKey sql.NullString
		recordedAt     string
	)

	err := rows.Scan(&ev.Seq, &ev.ID, &kind, &account, &ticketID, &amount, &idempotencyKey, &recordedAt)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.Kind = generic.EventKind(kind)
	ev.Account = generic.AccountID(account)
	ev.TicketID = generic.TicketID(ticketID)
	ev.Amount, err = generic.ParseAmount(amount)
	if err != nil {
		return ev, fmt.Errorf("corrupt event %d: %w", ev.Seq, err)
	}
	ev.IdempotencyKey = idempotencyKey.String
	ev.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)

	return ev, nil
}

// =============================================================================
// AUDIT RUNS
// =============================================================================

// AuditRun records one audit of the live ledger against the journal.
type AuditRun struct {
	ID             string
	Status         string // "passed", "failed", "error"
	LastSeq        int64
	EventsReplayed int
	Problem        string
	StartedAt      time.Time
	CompletedAt    time.Time
}

// SaveAuditRun saves an audit run.
func (s *Store) SaveAuditRun(ctx context.Context, r AuditRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO audit_runs (id, status, last_seq, events_replayed, problem, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Status, r.LastSeq, r.EventsReplayed, nullString(r.Problem),
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit run: %w", err)
	}
	return nil
}

// ListAuditRuns returns the most recent audit runs, newest first.
func (s *Store) ListAuditRuns(ctx context.Context, limit int) ([]AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, last_seq, events_replayed, problem, started_at, completed_at
		FROM audit_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []AuditRun{}
	for rows.Next() {
		var (
			r                      AuditRun
			problem                sql.NullString
			startedAt, completedAt string
		)
		if err := rows.Scan(&r.ID, &r.Status, &r.LastSeq, &r.EventsReplayed, &problem, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Problem = problem.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears the journal and audit history (for testing/demo). The
// ledger configuration is kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"events", "audit_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
