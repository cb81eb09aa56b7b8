/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the ledger in the expected state:
	- Ownership after swaps and resales
	- Open swap offers and resale listings
	- Manager and seller balances
	- Journal replays to the same state

These tests double as end-to-end checks of the service and SQLite journal.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/ticketsale"
)

func loadScenario(t *testing.T, ts *testServer, id string) {
	t.Helper()
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/scenarios/load", body: LoadScenarioRequest{ScenarioID: id}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func assertReplays(t *testing.T, ts *testServer) {
	t.Helper()
	ctx := context.Background()
	reopened, err := ticketsale.Open(ctx, ts.handler.Service.Config(), ts.handler.Store, nil)
	require.NoError(t, err)
	assert.True(t, reopened.Snapshot().Equal(ts.handler.Service.Snapshot()))
}

func TestScenario_SaleWalkthrough(t *testing.T) {
	// GIVEN: The reference sale
	// WHEN: Loading the scenario
	// THEN: bob holds 1, carol holds 2 and relisted it, alice holds only proceeds
	ts := newTestServer(t)
	loadScenario(t, ts, "sale-walkthrough")

	svc := ts.handler.Service
	assert.Equal(t, generic.TicketID(1), svc.TicketOf("bob"))
	assert.Equal(t, generic.TicketID(2), svc.TicketOf("carol"))
	assert.Equal(t, generic.NoTicket, svc.TicketOf("alice"))

	tickets, prices := svc.CheckResale()
	require.Equal(t, []generic.TicketID{2}, tickets)
	assert.True(t, prices[0].Equal(generic.MustAmount("0.004")))

	snap := svc.Snapshot()
	assert.True(t, snap.ManagerBalance.Equal(generic.MustAmount("0.0205")), snap.ManagerBalance.String())
	assert.True(t, snap.Balances["alice"].Equal(generic.MustAmount("0.0045")))
	assert.Equal(t, int64(7), svc.LastSeq())

	assertReplays(t, ts)
}

func TestScenario_SwapMarket(t *testing.T) {
	ts := newTestServer(t)
	loadScenario(t, ts, "swap-market")

	svc := ts.handler.Service
	assert.Equal(t, generic.TicketID(1), svc.TicketOf("dave"))
	assert.Equal(t, generic.TicketID(4), svc.TicketOf("alice"))

	offers := decode[[]SwapOfferDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/swaps"}))
	require.Len(t, offers, 3)
	assert.Equal(t, generic.TicketID(3), offers[0].TicketID)
	assert.Equal(t, generic.TicketID(5), offers[1].TicketID)
	assert.Equal(t, generic.TicketID(6), offers[2].TicketID)

	assertReplays(t, ts)
}

func TestScenario_ResaleMarket(t *testing.T) {
	ts := newTestServer(t)
	loadScenario(t, ts, "resale-market")

	svc := ts.handler.Service
	assert.Equal(t, generic.TicketID(2), svc.TicketOf("grace"))
	assert.Equal(t, generic.NoTicket, svc.TicketOf("bob"))

	listings := decode[ResaleListDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/resale"}))
	assert.Equal(t, []generic.TicketID{1, 3, 5}, listings.Tickets)

	bob := decode[AccountDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/accounts/bob"}))
	assert.True(t, bob.Balance.Equal(generic.MustAmount("0.0072")), bob.Balance.String())

	ledger := decode[LedgerDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/ledger"}))
	assert.True(t, ledger.ManagerBalance.Equal(generic.MustAmount("0.0508")), ledger.ManagerBalance.String())
	assert.Equal(t, 5, ledger.Sold)

	assertReplays(t, ts)
}

func TestScenario_LoadReplacesPreviousState(t *testing.T) {
	// GIVEN: Traffic from before the scenario
	ts := newTestServer(t)
	ts.buy(t, "zoe", "50")

	// WHEN: A scenario is loaded
	loadScenario(t, ts, "sale-walkthrough")

	// THEN: Earlier state and journal are gone
	assert.Equal(t, generic.NoTicket, ts.handler.Service.TicketOf("zoe"))
	events := decode[[]EventDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/events"}))
	assert.Len(t, events, 7)

	current := decode[ScenarioDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/scenarios/current"}))
	assert.Equal(t, "sale-walkthrough", current.ID)
}

func TestScenario_LoadDuringTraffic(t *testing.T) {
	// GIVEN: Buyers and swappers hitting the API
	// WHEN: Scenarios are loaded and the ledger reset at the same time
	// THEN: The journal still replays to the live ledger
	ts := newTestServer(t)

	send := func(method, path, caller, body string) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if caller != "" {
			req.Header.Set(HeaderAccountID, caller)
		}
		ts.router.ServeHTTP(httptest.NewRecorder(), req)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := fmt.Sprintf("fan-%d", i)
			for n := 0; n < 20; n++ {
				send(http.MethodPost, fmt.Sprintf("/api/tickets/%d/buy", 10+i), who, `{"payment":"0.01"}`)
				send(http.MethodPost, "/api/tickets/1/swap/accept", who, "")
				send(http.MethodPost, "/api/resale", who, `{"price":"0.003"}`)
			}
		}(i)
	}
	for n := 0; n < 5; n++ {
		send(http.MethodPost, "/api/scenarios/load", "", `{"scenario_id":"sale-walkthrough"}`)
		send(http.MethodPost, "/api/scenarios/reset", "", "")
	}
	wg.Wait()

	assertReplays(t, ts)
}

func TestScenario_Unknown(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/scenarios/load", body: LoadScenarioRequest{ScenarioID: "nope"}})
	assertError(t, rec, http.StatusBadRequest, "unknown_scenario")
}

func TestScenario_ListAndReset(t *testing.T) {
	ts := newTestServer(t)

	list := decode[[]ScenarioDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/scenarios"}))
	assert.Len(t, list, 3)

	loadScenario(t, ts, "swap-market")
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/scenarios/reset"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(0), ts.handler.Service.LastSeq())
	assert.Equal(t, 0, decode[LedgerDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/ledger"})).Sold)

	current := ts.do(t, call{method: http.MethodGet, path: "/api/scenarios/current"})
	assert.Equal(t, "null\n", current.Body.String())
}
