/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- Every operation endpoint, success and rejection
- Error status and code mapping
- Idempotency-Key handling
- Journal tail and audit endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/store/sqlite"
	"github.com/warp/ticket-ledger/ticketsale"
)

type testServer struct {
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := ticketsale.Config{TotalTickets: 100, TicketPrice: generic.MustAmount("0.01")}
	svc, err := ticketsale.Open(context.Background(), cfg, store, nil)
	require.NoError(t, err)

	h := NewHandler(store, svc, nil)
	return &testServer{handler: h, router: NewRouter(h, []string{"*"})}
}

type call struct {
	method string
	path   string
	caller string
	key    string
	body   any
}

func (ts *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.caller != "" {
		req.Header.Set(HeaderAccountID, c.caller)
	}
	if c.key != "" {
		req.Header.Set(HeaderIdempotencyKey, c.key)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) buy(t *testing.T, who string, id string) {
	t.Helper()
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/tickets/" + id + "/buy", caller: who, body: PaymentRequest{Payment: "0.01"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, code, resp.Code)
}

// =============================================================================
// PRIMARY SALE
// =============================================================================

func TestBuyTicket_Success(t *testing.T) {
	// GIVEN: An empty ledger
	ts := newTestServer(t)

	// WHEN: alice buys ticket 7 at face value
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/tickets/7/buy", caller: "alice", body: PaymentRequest{Payment: "0.01"}})

	// THEN: The purchase is journaled and the ticket is hers
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ev := decode[EventDTO](t, rec)
	assert.Equal(t, generic.EventPurchase, ev.Kind)
	assert.Equal(t, int64(1), ev.Seq)
	require.NotNil(t, ev.Amount)
	assert.True(t, ev.Amount.Equal(generic.MustAmount("0.01")))

	ticket := decode[TicketDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/tickets/7"}))
	assert.Equal(t, generic.AccountID("alice"), ticket.Owner)
	assert.True(t, ticket.Sold)

	account := decode[AccountDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/accounts/alice"}))
	assert.Equal(t, generic.TicketID(7), account.TicketID)

	ledger := decode[LedgerDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/ledger"}))
	assert.Equal(t, 1, ledger.Sold)
	assert.Equal(t, "1000bps", ledger.Fee)
	assert.True(t, ledger.ManagerBalance.Equal(generic.MustAmount("0.01")))
}

func TestBuyTicket_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")

	tests := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{"wrong payment", call{method: http.MethodPost, path: "/api/tickets/2/buy", caller: "bob", body: PaymentRequest{Payment: "0.02"}}, http.StatusPaymentRequired, "incorrect_payment"},
		{"already owned", call{method: http.MethodPost, path: "/api/tickets/1/buy", caller: "bob", body: PaymentRequest{Payment: "0.01"}}, http.StatusConflict, "ticket_already_owned"},
		{"second ticket", call{method: http.MethodPost, path: "/api/tickets/2/buy", caller: "alice", body: PaymentRequest{Payment: "0.01"}}, http.StatusConflict, "account_already_has_ticket"},
		{"out of range", call{method: http.MethodPost, path: "/api/tickets/101/buy", caller: "bob", body: PaymentRequest{Payment: "0.01"}}, http.StatusBadRequest, "invalid_ticket_id"},
		{"zero id", call{method: http.MethodPost, path: "/api/tickets/0/buy", caller: "bob", body: PaymentRequest{Payment: "0.01"}}, http.StatusBadRequest, "invalid_ticket_id"},
		{"non-numeric id", call{method: http.MethodPost, path: "/api/tickets/abc/buy", caller: "bob", body: PaymentRequest{Payment: "0.01"}}, http.StatusBadRequest, "invalid_ticket_id"},
		{"missing caller", call{method: http.MethodPost, path: "/api/tickets/2/buy", body: PaymentRequest{Payment: "0.01"}}, http.StatusBadRequest, "invalid_account"},
		{"missing payment", call{method: http.MethodPost, path: "/api/tickets/2/buy", caller: "bob", body: PaymentRequest{}}, http.StatusBadRequest, "invalid_request"},
		{"malformed payment", call{method: http.MethodPost, path: "/api/tickets/2/buy", caller: "bob", body: PaymentRequest{Payment: "ten"}}, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, ts.do(t, tt.call), tt.status, tt.code)
		})
	}

	// Nothing but the first purchase was journaled.
	assert.Equal(t, int64(1), ts.handler.Service.LastSeq())
}

func TestBuyTicket_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/1/buy", bytes.NewBufferString("{not json"))
	req.Header.Set(HeaderAccountID, "alice")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assertError(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestGetTicket_Unsold(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodGet, path: "/api/tickets/5"})
	require.Equal(t, http.StatusOK, rec.Code)
	ticket := decode[TicketDTO](t, rec)
	assert.False(t, ticket.Sold)
	assert.Empty(t, ticket.Owner)
	assert.Nil(t, ticket.Resale)

	assertError(t, ts.do(t, call{method: http.MethodGet, path: "/api/tickets/500"}), http.StatusBadRequest, "invalid_ticket_id")
}

// =============================================================================
// SWAPS
// =============================================================================

func TestSwap_OfferAndAccept(t *testing.T) {
	// GIVEN: alice holds 1, bob holds 2
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")
	ts.buy(t, "bob", "2")

	// WHEN: alice offers 1 and bob accepts
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap", caller: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	offers := decode[[]SwapOfferDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/swaps"}))
	require.Len(t, offers, 1)
	assert.Equal(t, SwapOfferDTO{TicketID: 1, Owner: "alice"}, offers[0])

	rec = ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap/accept", caller: "bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: The tickets changed hands and the offer is gone
	assert.Equal(t, generic.TicketID(2), decode[AccountDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/accounts/alice"})).TicketID)
	assert.Equal(t, generic.TicketID(1), decode[AccountDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/accounts/bob"})).TicketID)
	assert.Empty(t, decode[[]SwapOfferDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/swaps"})))
}

func TestSwap_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")
	ts.buy(t, "bob", "2")

	// Offer on someone else's ticket
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/2/swap", caller: "alice"}), http.StatusForbidden, "not_owner")

	// Accept with no offer
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap/accept", caller: "bob"}), http.StatusNotFound, "no_swap_offer")

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap", caller: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Owner accepting own offer
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap/accept", caller: "alice"}), http.StatusBadRequest, "cannot_swap_with_self")

	// Caller without a ticket
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap/accept", caller: "carol"}), http.StatusBadRequest, "account_has_no_ticket")
}

func TestSwap_Cancel(t *testing.T) {
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")
	ts.buy(t, "bob", "2")

	require.Equal(t, http.StatusCreated, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap", caller: "alice"}).Code)
	rec := ts.do(t, call{method: http.MethodDelete, path: "/api/tickets/1/swap", caller: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, generic.EventSwapCancelled, decode[EventDTO](t, rec).Kind)

	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap/accept", caller: "bob"}), http.StatusNotFound, "no_swap_offer")
}

// =============================================================================
// RESALE
// =============================================================================

func TestResale_ListAndAccept(t *testing.T) {
	// GIVEN: alice holds 2 and lists it at 0.005
	ts := newTestServer(t)
	ts.buy(t, "alice", "2")

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/resale", caller: "alice", body: ListResaleRequest{Price: "0.005"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, generic.TicketID(2), decode[EventDTO](t, rec).TicketID)

	listings := decode[ResaleListDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/resale"}))
	require.Equal(t, []generic.TicketID{2}, listings.Tickets)
	require.Len(t, listings.Prices, 1)
	assert.True(t, listings.Prices[0].Equal(generic.MustAmount("0.005")))

	ticket := decode[TicketDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/tickets/2"}))
	require.NotNil(t, ticket.Resale)
	assert.Equal(t, generic.AccountID("alice"), ticket.Resale.Seller)

	// WHEN: carol pays the listing price
	rec = ts.do(t, call{method: http.MethodPost, path: "/api/tickets/2/resale/accept", caller: "carol", body: PaymentRequest{Payment: "0.005"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: carol owns 2, alice got 90%, the manager 10% on top of the sale
	assert.Equal(t, generic.TicketID(2), decode[AccountDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/accounts/carol"})).TicketID)

	seller := decode[AccountDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/accounts/alice"}))
	assert.Equal(t, generic.NoTicket, seller.TicketID)
	assert.True(t, seller.Balance.Equal(generic.MustAmount("0.0045")), seller.Balance.String())

	ledger := decode[LedgerDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/ledger"}))
	assert.True(t, ledger.ManagerBalance.Equal(generic.MustAmount("0.0105")), ledger.ManagerBalance.String())

	listings = decode[ResaleListDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/resale"}))
	assert.Empty(t, listings.Tickets)
}

func TestResale_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")
	ts.buy(t, "bob", "2")

	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/resale", caller: "carol", body: ListResaleRequest{Price: "0.005"}}), http.StatusBadRequest, "account_has_no_ticket")
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/resale", caller: "alice", body: ListResaleRequest{Price: "-1"}}), http.StatusBadRequest, "invalid_price")
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/resale/accept", caller: "carol", body: PaymentRequest{Payment: "0.005"}}), http.StatusNotFound, "no_resale_listing")

	require.Equal(t, http.StatusCreated, ts.do(t, call{method: http.MethodPost, path: "/api/resale", caller: "alice", body: ListResaleRequest{Price: "0.005"}}).Code)

	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/resale/accept", caller: "bob", body: PaymentRequest{Payment: "0.005"}}), http.StatusConflict, "account_already_has_ticket")
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/resale/accept", caller: "carol", body: PaymentRequest{Payment: "0.004"}}), http.StatusPaymentRequired, "incorrect_payment")

	rec := ts.do(t, call{method: http.MethodDelete, path: "/api/resale", caller: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertError(t, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/resale/accept", caller: "carol", body: PaymentRequest{Payment: "0.005"}}), http.StatusNotFound, "no_resale_listing")
}

// =============================================================================
// IDEMPOTENCY, JOURNAL, AUDIT
// =============================================================================

func TestIdempotencyKey_ReplayRejected(t *testing.T) {
	ts := newTestServer(t)

	first := ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/buy", caller: "alice", key: "order-1", body: PaymentRequest{Payment: "0.01"}})
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "order-1", decode[EventDTO](t, first).IdempotencyKey)

	retry := ts.do(t, call{method: http.MethodPost, path: "/api/tickets/2/buy", caller: "bob", key: "order-1", body: PaymentRequest{Payment: "0.01"}})
	assertError(t, retry, http.StatusConflict, "duplicate_idempotency_key")

	ticket := decode[TicketDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/tickets/2"}))
	assert.False(t, ticket.Sold)
}

func TestListEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")
	ts.buy(t, "bob", "2")
	require.Equal(t, http.StatusCreated, ts.do(t, call{method: http.MethodPost, path: "/api/tickets/1/swap", caller: "alice"}).Code)

	all := decode[[]EventDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/events"}))
	require.Len(t, all, 3)
	assert.Nil(t, all[2].Amount)

	tail := decode[[]EventDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/events?after=2"}))
	require.Len(t, tail, 1)
	assert.Equal(t, generic.EventSwapOffered, tail[0].Kind)

	mine := decode[[]EventDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/accounts/alice/events"}))
	assert.Len(t, mine, 2)

	assertError(t, ts.do(t, call{method: http.MethodGet, path: "/api/events?after=x"}), http.StatusBadRequest, "invalid_request")
}

func TestAudit_TriggerAndList(t *testing.T) {
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/audit/run"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[AuditRunDTO](t, rec)
	assert.Equal(t, AuditPassed, run.Status)
	assert.Equal(t, int64(1), run.LastSeq)
	assert.Equal(t, 1, run.EventsReplayed)

	runs := decode[[]AuditRunDTO](t, ts.do(t, call{method: http.MethodGet, path: "/api/audit/runs"}))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestAuditScheduler_StartStop(t *testing.T) {
	ts := newTestServer(t)
	ts.buy(t, "alice", "1")

	sched := NewAuditScheduler(ts.handler.Store, ts.handler.Service, nil)
	sched.Start()
	sched.Stop()

	// Start runs one audit before waiting on the ticker.
	runs, err := ts.handler.Store.ListAuditRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, AuditPassed, runs[0].Status)
}

func TestAuditScheduler_Disabled(t *testing.T) {
	ts := newTestServer(t)

	sched := NewAuditScheduler(ts.handler.Store, ts.handler.Service, nil)
	sched.Enabled = false
	sched.Start()
	sched.Stop()

	runs, err := ts.handler.Store.ListAuditRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
