/*
journal.go - Append-only log of committed ledger operations

PURPOSE:
  The Journal records every operation the ticket ledger accepted, in the
  order it was applied. The in-memory ledger is the working state; the
  journal is how that state survives a restart. Replaying the journal into
  a fresh ledger built from the same configuration reproduces the state.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Reset (demo/testing) is the only
     way events leave the journal, and it removes all of them.
  2. ORDERED: Seq is strictly increasing in commit order.
  3. COMMITTED ONLY: Rejected operations are never journaled.
  4. IDEMPOTENT: Same idempotency key = same operation (no duplicates)

EXAMPLE FLOW:
  1. alice buys ticket 1 for 0.01:    purchase       alice #1 0.01
  2. alice offers it for swap:        swap_offered   alice #1
  3. bob (owns #2) accepts:           swap_accepted  bob   #1
  4. alice lists #2 at 0.005:         resale_listed  alice #2 0.005
  5. carol buys the listing:          resale_accepted carol #2 0.005

SEE ALSO:
  - generic/store/memory.go: In-memory journal
  - store/sqlite/sqlite.go: Durable journal
  - ticketsale/service.go: Appends after each committed operation
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// EVENT - One committed operation
// =============================================================================

type EventKind string

const (
	EventPurchase        EventKind = "purchase"         // Ticket bought at face value
	EventSwapOffered     EventKind = "swap_offered"     // Owner opened a swap offer
	EventSwapCancelled   EventKind = "swap_cancelled"   // Owner withdrew a swap offer
	EventSwapAccepted    EventKind = "swap_accepted"    // Two tickets changed hands
	EventResaleListed    EventKind = "resale_listed"    // Owner listed at a price
	EventResaleCancelled EventKind = "resale_cancelled" // Owner withdrew the listing
	EventResaleAccepted  EventKind = "resale_accepted"  // Listing bought, fee taken
)

// Event is an immutable journal entry. Account is always the caller and
// TicketID the ticket the operation concerned. Amount is the attached
// payment or the listing price, zero otherwise.
type Event struct {
	Seq            int64
	ID             string
	Kind           EventKind
	Account        AccountID
	TicketID       TicketID
	Amount         Amount
	IdempotencyKey string
	RecordedAt     time.Time
}

// =============================================================================
// JOURNAL - Persistence contract
// =============================================================================

// Journal is the append-only store of committed operations.
type Journal interface {
	// Append records an event and returns its assigned sequence number.
	// Fails with ErrDuplicateIdempotencyKey if the key was already used.
	Append(ctx context.Context, ev Event) (int64, error)

	// Events returns all events with Seq > afterSeq in commit order.
	Events(ctx context.Context, afterSeq int64) ([]Event, error)

	// Exists checks if an idempotency key was already used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// Reset removes every event and idempotency key.
	Reset(ctx context.Context) error
}
