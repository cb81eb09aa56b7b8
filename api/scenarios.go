/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that drive the ledger through realistic
	sequences of operations. Every step goes through ticketsale.Service, so
	scenarios are journaled exactly like API traffic and survive a restart.

AVAILABLE SCENARIOS:

	sale-walkthrough: Buy, swap, list, resell, relist (the reference flow)
	swap-market:      Six holders, three open swap offers, one completed swap
	resale-market:    Five holders, listings at several prices, one sale

HOW SCENARIOS WORK:
 1. Build the scenario's operations as ticketsale commands
 2. Service.Reset clears the journal and audit history, rebuilds an empty
    ledger and commits the commands, all under the service lock

Primary purchases pay the configured ticket price, so scenarios run on any
configuration with enough tickets.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sale-walkthrough"}

NOTE:

	Scenarios reset the journal. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Ledger handlers
  - ticketsale/service.go: Journaled operations
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/ticketsale"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "sale-walkthrough",
		Name:        "Sale Walkthrough",
		Description: "Two purchases, a swap, a resale with fee and a relisting",
	},
	{
		ID:          "swap-market",
		Name:        "Swap Market",
		Description: "Six holders with three open swap offers and one completed swap",
	},
	{
		ID:          "resale-market",
		Name:        "Resale Market",
		Description: "Five holders, listings at several prices, one completed resale",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the ledger and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err)
		return
	}

	var seed []ticketsale.Command
	switch req.ScenarioID {
	case "sale-walkthrough":
		seed = h.saleWalkthroughScenario()
	case "swap-market":
		seed = h.swapMarketScenario()
	case "resale-market":
		seed = h.resaleMarketScenario()
	default:
		writeError(w, http.StatusBadRequest, "unknown_scenario", "Unknown scenario", nil)
		return
	}

	if err := h.reset(r.Context(), seed...); err != nil {
		writeLedgerError(w, fmt.Errorf("failed to load scenario %s: %w", req.ScenarioID, err))
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.logger.Info("scenario loaded", "scenario", req.ScenarioID, "last_seq", h.Service.LastSeq())
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetLedger clears the journal and the in-memory ledger.
func (h *Handler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to reset ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reset clears the journal and the ledger, then commits seed. The service
// holds its lock throughout, so API traffic never interleaves.
func (h *Handler) reset(ctx context.Context, seed ...ticketsale.Command) error {
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	return h.Service.Reset(ctx, seed...)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) buy(who generic.AccountID, id generic.TicketID) ticketsale.Command {
	return ticketsale.Command{Kind: generic.EventPurchase, Caller: who, TicketID: id, Amount: h.Service.Config().TicketPrice}
}

func offerSwap(who generic.AccountID, id generic.TicketID) ticketsale.Command {
	return ticketsale.Command{Kind: generic.EventSwapOffered, Caller: who, TicketID: id}
}

func acceptSwap(who generic.AccountID, id generic.TicketID) ticketsale.Command {
	return ticketsale.Command{Kind: generic.EventSwapAccepted, Caller: who, TicketID: id}
}

func list(who generic.AccountID, price string) ticketsale.Command {
	return ticketsale.Command{Kind: generic.EventResaleListed, Caller: who, Amount: generic.MustAmount(price)}
}

func acceptResale(who generic.AccountID, id generic.TicketID, payment string) ticketsale.Command {
	return ticketsale.Command{Kind: generic.EventResaleAccepted, Caller: who, TicketID: id, Amount: generic.MustAmount(payment)}
}

// saleWalkthroughScenario replays the reference sale:
// alice ends with ticket 2 sold to carol, bob holds ticket 1, carol relists.
func (h *Handler) saleWalkthroughScenario() []ticketsale.Command {
	return []ticketsale.Command{
		h.buy("alice", 1),
		h.buy("bob", 2),
		offerSwap("alice", 1),
		acceptSwap("bob", 1),
		list("alice", "0.005"),
		acceptResale("carol", 2, "0.005"),
		list("carol", "0.004"),
	}
}

// swapMarketScenario seeds six holders. dave swaps into ticket 1;
// tickets 3, 5 and 6 stay on offer.
func (h *Handler) swapMarketScenario() []ticketsale.Command {
	holders := []generic.AccountID{"alice", "bob", "carol", "dave", "erin", "frank"}

	var seed []ticketsale.Command
	for i, who := range holders {
		seed = append(seed, h.buy(who, generic.TicketID(i+1)))
	}
	return append(seed,
		offerSwap("alice", 1),
		acceptSwap("dave", 1),
		offerSwap("carol", 3),
		offerSwap("erin", 5),
		offerSwap("frank", 6),
	)
}

// resaleMarketScenario seeds five holders and four listings at
// different prices. grace buys bob's listing.
func (h *Handler) resaleMarketScenario() []ticketsale.Command {
	holders := []generic.AccountID{"alice", "bob", "carol", "dave", "erin"}

	var seed []ticketsale.Command
	for i, who := range holders {
		seed = append(seed, h.buy(who, generic.TicketID(i+1)))
	}
	return append(seed,
		list("alice", "0.012"),
		list("bob", "0.008"),
		list("carol", "0.02"),
		list("erin", "0.005"),
		acceptResale("grace", 2, "0.008"),
	)
}
