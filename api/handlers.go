/*
handlers.go - HTTP API handlers for the ticket ledger

PURPOSE:
  Exposes the ticket ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every state change to
  ticketsale.Service, which serializes and journals it.

ENDPOINTS:
  Ledger:
    GET    /api/ledger                    Sale summary
    GET    /api/tickets/{id}              Ticket owner and marketplace state
    GET    /api/accounts/{id}             Ticket held and resale proceeds
    GET    /api/accounts/{id}/events      Operations the account performed

  Operations (caller in X-Account-ID):
    POST   /api/tickets/{id}/buy          Buy at face value
    POST   /api/tickets/{id}/swap         Offer own ticket for swap
    DELETE /api/tickets/{id}/swap         Withdraw swap offer
    POST   /api/tickets/{id}/swap/accept  Exchange own ticket for {id}
    POST   /api/tickets/{id}/resale/accept Buy a resale listing
    POST   /api/resale                    List own ticket
    DELETE /api/resale                    Withdraw own listing

  Marketplace:
    GET    /api/resale                    Open listings (checkResale)
    GET    /api/swaps                     Open swap offers

  Journal and audit:
    GET    /api/events?after=N            Journal tail
    GET    /api/audit/runs                Recent audit runs
    POST   /api/audit/run                 Audit now

IDENTITY:
  The host authenticates callers and forwards the identity in X-Account-ID.
  A missing header reaches the ledger as an empty account and is rejected
  there like any other invalid caller.

IDEMPOTENCY:
  An optional Idempotency-Key header is stored with the journaled event.
  Reusing a key returns 409 without touching the ledger.

ERROR HANDLING:
  Errors are returned as JSON {"error", "code", "details"}:
  - 400: Malformed input, invalid ticket, account or price
  - 402: Payment differs from the price
  - 403: Caller does not own the ticket
  - 404: No swap offer / resale listing
  - 409: Ownership conflicts, reused idempotency key
  - 500: Journal and other internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/store/sqlite"
	"github.com/warp/ticket-ledger/ticketsale"
)

const (
	HeaderAccountID      = "X-Account-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Service *ticketsale.Service
	logger  *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over an opened service and its store.
func NewHandler(store *sqlite.Store, service *ticketsale.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:   store,
		Service: service,
		logger:  logger,
	}
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

// GetLedger returns the sale summary.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	var dto LedgerDTO
	h.Service.View(func(l *ticketsale.TicketLedger) {
		dto = LedgerDTO{
			TotalTickets:   l.TotalTickets(),
			TicketPrice:    l.TicketPrice(),
			Fee:            l.FeePolicy().Describe(),
			Sold:           l.SoldCount(),
			ManagerBalance: l.ManagerBalance(),
		}
	})
	dto.LastSeq = h.Service.LastSeq()
	writeJSON(w, http.StatusOK, dto)
}

// GetTicket returns one ticket's owner and marketplace state.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := generic.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	var (
		state   ticketsale.TicketState
		lookErr error
	)
	h.Service.View(func(l *ticketsale.TicketLedger) {
		state, lookErr = l.Ticket(id)
	})
	if lookErr != nil {
		writeLedgerError(w, lookErr)
		return
	}
	writeJSON(w, http.StatusOK, toTicketDTO(state))
}

// GetAccount returns the ticket an account holds and its resale proceeds.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account := generic.AccountID(chi.URLParam(r, "id"))

	dto := AccountDTO{ID: account}
	h.Service.View(func(l *ticketsale.TicketLedger) {
		dto.TicketID = l.TicketOf(account)
		dto.Balance = l.BalanceOf(account)
	})
	writeJSON(w, http.StatusOK, dto)
}

// GetAccountEvents returns the journaled operations an account performed.
func (h *Handler) GetAccountEvents(w http.ResponseWriter, r *http.Request) {
	account := generic.AccountID(chi.URLParam(r, "id"))

	events, err := h.Store.EventsByAccount(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to load events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// =============================================================================
// PRIMARY SALE
// =============================================================================

// BuyTicket buys ticket {id} at face value.
func (h *Handler) BuyTicket(w http.ResponseWriter, r *http.Request) {
	id, err := generic.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	var req PaymentRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err)
		return
	}
	payment, err := generic.ParseAmount(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "Invalid payment", err)
		return
	}

	ev, err := h.Service.BuyTicket(r.Context(), callerOf(r), id, payment, idempotencyKeyOf(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// =============================================================================
// SWAPS
// =============================================================================

// OfferSwap opens a swap offer on the caller's ticket {id}.
func (h *Handler) OfferSwap(w http.ResponseWriter, r *http.Request) {
	id, err := generic.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	ev, err := h.Service.OfferSwap(r.Context(), callerOf(r), id, idempotencyKeyOf(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// CancelSwap withdraws the swap offer on the caller's ticket {id}.
func (h *Handler) CancelSwap(w http.ResponseWriter, r *http.Request) {
	id, err := generic.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	ev, err := h.Service.CancelSwap(r.Context(), callerOf(r), id, idempotencyKeyOf(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// AcceptSwap exchanges the caller's ticket for the offered ticket {id}.
func (h *Handler) AcceptSwap(w http.ResponseWriter, r *http.Request) {
	id, err := generic.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	ev, err := h.Service.AcceptSwap(r.Context(), callerOf(r), id, idempotencyKeyOf(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// ListSwaps returns open swap offers.
func (h *Handler) ListSwaps(w http.ResponseWriter, r *http.Request) {
	var offers []ticketsale.SwapOffer
	h.Service.View(func(l *ticketsale.TicketLedger) {
		offers = l.SwapOffers()
	})

	dtos := make([]SwapOfferDTO, len(offers))
	for i, o := range offers {
		dtos[i] = SwapOfferDTO{TicketID: o.TicketID, Owner: o.Owner}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESALE
// =============================================================================

// ListResale lists the caller's ticket at the requested price.
func (h *Handler) ListResale(w http.ResponseWriter, r *http.Request) {
	var req ListResaleRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err)
		return
	}
	price, err := generic.ParseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "Invalid price", err)
		return
	}

	ev, err := h.Service.ResaleTicket(r.Context(), callerOf(r), price, idempotencyKeyOf(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// CancelResale withdraws the caller's listing.
func (h *Handler) CancelResale(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.CancelResale(r.Context(), callerOf(r), idempotencyKeyOf(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// AcceptResale buys the listed ticket {id} at the listing price.
func (h *Handler) AcceptResale(w http.ResponseWriter, r *http.Request) {
	id, err := generic.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	var req PaymentRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err)
		return
	}
	payment, err := generic.ParseAmount(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "Invalid payment", err)
		return
	}

	ev, err := h.Service.AcceptResale(r.Context(), callerOf(r), id, payment, idempotencyKeyOf(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// CheckResale returns open listings as parallel ticket/price arrays in
// listing order.
func (h *Handler) CheckResale(w http.ResponseWriter, r *http.Request) {
	tickets, prices := h.Service.CheckResale()
	writeJSON(w, http.StatusOK, ResaleListDTO{Tickets: tickets, Prices: prices})
}

// =============================================================================
// JOURNAL AND AUDIT
// =============================================================================

// ListEvents returns journaled events after the ?after= sequence number.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid 'after' parameter", err)
			return
		}
		after = n
	}

	events, err := h.Store.Events(r.Context(), after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to load events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// ListAuditRuns returns recent audit runs, newest first.
func (h *Handler) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListAuditRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list audit runs", err)
		return
	}

	dtos := make([]AuditRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toAuditRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerAudit audits the ledger now and returns the stored run.
func (h *Handler) TriggerAudit(w http.ResponseWriter, r *http.Request) {
	run, err := RunAudit(r.Context(), h.Store, h.Service, h.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Audit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

var validate = validator.New()

// decodeRequest decodes a JSON body into v and checks its validate tags.
func decodeRequest(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

func callerOf(r *http.Request) generic.AccountID {
	return generic.AccountID(strings.TrimSpace(r.Header.Get(HeaderAccountID)))
}

func idempotencyKeyOf(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
}

func toEventDTOs(events []generic.Event) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// errorCodes gives each ledger sentinel a stable code for clients.
var errorCodes = []struct {
	err  error
	code string
}{
	{generic.ErrInvalidTicketID, "invalid_ticket_id"},
	{generic.ErrInvalidAccount, "invalid_account"},
	{generic.ErrInvalidPrice, "invalid_price"},
	{generic.ErrInvalidConfiguration, "invalid_configuration"},
	{generic.ErrCannotSwapWithSelf, "cannot_swap_with_self"},
	{generic.ErrAccountHasNoTicket, "account_has_no_ticket"},
	{generic.ErrIncorrectPayment, "incorrect_payment"},
	{generic.ErrNotOwner, "not_owner"},
	{generic.ErrNoSwapOffer, "no_swap_offer"},
	{generic.ErrNoResaleListing, "no_resale_listing"},
	{generic.ErrTicketAlreadyOwned, "ticket_already_owned"},
	{generic.ErrAccountAlreadyHasTicket, "account_already_has_ticket"},
	{generic.ErrDuplicateIdempotencyKey, "duplicate_idempotency_key"},
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrIncorrectPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, generic.ErrNotOwner):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError writes a ledger or service error with its mapped status.
func writeLedgerError(w http.ResponseWriter, err error) {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			writeError(w, statusFor(err), m.code, m.err.Error(), err)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "internal", "Internal error", err)
}
