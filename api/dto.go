/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  All money crosses the wire as decimal strings ("0.01"), never floats.
  generic.Amount implements encoding.TextMarshaler so it serializes as a
  JSON string directly.

VALIDATION:
  Request shape is checked with validate tags (go-playground/validator).
  Ledger rules (ranges, ownership, prices) are enforced by the ledger.

SEE ALSO:
  - handlers.go: Uses these types
  - scenarios.go: ScenarioDTO
*/
package api

import (
	"time"

	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/store/sqlite"
	"github.com/warp/ticket-ledger/ticketsale"
)

// =============================================================================
// LEDGER
// =============================================================================

// LedgerDTO summarizes the sale.
type LedgerDTO struct {
	TotalTickets   uint64         `json:"total_tickets"`
	TicketPrice    generic.Amount `json:"ticket_price"`
	Fee            string         `json:"fee"`
	Sold           int            `json:"sold"`
	ManagerBalance generic.Amount `json:"manager_balance"`
	LastSeq        int64          `json:"last_seq"`
}

// ListingDTO is one open resale listing.
type ListingDTO struct {
	TicketID generic.TicketID  `json:"ticket_id"`
	Seller   generic.AccountID `json:"seller"`
	Price    generic.Amount    `json:"price"`
}

// TicketDTO describes one ticket.
type TicketDTO struct {
	ID          generic.TicketID  `json:"id"`
	Owner       generic.AccountID `json:"owner,omitempty"`
	Sold        bool              `json:"sold"`
	SwapOffered bool              `json:"swap_offered"`
	Resale      *ListingDTO       `json:"resale,omitempty"`
}

// AccountDTO describes one account's holdings.
type AccountDTO struct {
	ID       generic.AccountID `json:"id"`
	TicketID generic.TicketID  `json:"ticket_id"` // 0: no ticket
	Balance  generic.Amount    `json:"balance"`
}

// ResaleListDTO mirrors checkResale: parallel arrays in listing order.
type ResaleListDTO struct {
	Tickets []generic.TicketID `json:"tickets"`
	Prices  []generic.Amount   `json:"prices"`
}

// SwapOfferDTO is one open swap offer.
type SwapOfferDTO struct {
	TicketID generic.TicketID  `json:"ticket_id"`
	Owner    generic.AccountID `json:"owner"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// PaymentRequest carries the funds attached to a buy or resale purchase.
type PaymentRequest struct {
	Payment string `json:"payment" validate:"required,numeric"`
}

// ListResaleRequest lists the caller's ticket.
type ListResaleRequest struct {
	Price string `json:"price" validate:"required,numeric"`
}

// =============================================================================
// EVENTS
// =============================================================================

// EventDTO is one journaled operation.
type EventDTO struct {
	Seq            int64             `json:"seq"`
	ID             string            `json:"id"`
	Kind           generic.EventKind `json:"kind"`
	Account        generic.AccountID `json:"account"`
	TicketID       generic.TicketID  `json:"ticket_id,omitempty"`
	Amount         *generic.Amount   `json:"amount,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	RecordedAt     string            `json:"recorded_at"`
}

// AuditRunDTO is one stored audit run.
type AuditRunDTO struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	LastSeq        int64  `json:"last_seq"`
	EventsReplayed int    `json:"events_replayed"`
	Problem        string `json:"problem,omitempty"`
	StartedAt      string `json:"started_at"`
	CompletedAt    string `json:"completed_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTicketDTO(s ticketsale.TicketState) TicketDTO {
	dto := TicketDTO{
		ID:          s.ID,
		Owner:       s.Owner,
		Sold:        s.Owner != "",
		SwapOffered: s.SwapOffered,
	}
	if s.Resale != nil {
		listing := toListingDTO(*s.Resale)
		dto.Resale = &listing
	}
	return dto
}

func toListingDTO(l ticketsale.ResaleListing) ListingDTO {
	return ListingDTO{TicketID: l.TicketID, Seller: l.Seller, Price: l.Price}
}

func toEventDTO(ev generic.Event) EventDTO {
	dto := EventDTO{
		Seq:            ev.Seq,
		ID:             ev.ID,
		Kind:           ev.Kind,
		Account:        ev.Account,
		TicketID:       ev.TicketID,
		IdempotencyKey: ev.IdempotencyKey,
		RecordedAt:     ev.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.Kind == generic.EventPurchase || ev.Kind == generic.EventResaleListed || ev.Kind == generic.EventResaleAccepted {
		amount := ev.Amount
		dto.Amount = &amount
	}
	return dto
}

func toAuditRunDTO(r sqlite.AuditRun) AuditRunDTO {
	return AuditRunDTO{
		ID:             r.ID,
		Status:         r.Status,
		LastSeq:        r.LastSeq,
		EventsReplayed: r.EventsReplayed,
		Problem:        r.Problem,
		StartedAt:      r.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:    r.CompletedAt.UTC().Format(time.RFC3339),
	}
}
