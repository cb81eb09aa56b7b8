package ticketsale_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/generic/store"
	"github.com/warp/ticket-ledger/ticketsale"
)

func testConfig() ticketsale.Config {
	return ticketsale.Config{TotalTickets: 100000, TicketPrice: facePrice}
}

func newTestService(t *testing.T) (*ticketsale.Service, *store.Memory) {
	t.Helper()
	journal := store.NewMemory()
	svc, err := ticketsale.Open(context.Background(), testConfig(), journal, nil)
	require.NoError(t, err)
	return svc, journal
}

func TestService_JournalsOnlyCommittedOperations(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	ev, err := svc.BuyTicket(ctx, alice, 1, facePrice, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, generic.EventPurchase, ev.Kind)
	assert.NotEmpty(t, ev.ID)

	_, err = svc.BuyTicket(ctx, alice, 2, facePrice, "")
	assert.ErrorIs(t, err, generic.ErrAccountAlreadyHasTicket)

	assert.Equal(t, 1, journal.Len())
	assert.Equal(t, int64(1), svc.LastSeq())
}

func TestService_ResaleEventRecordsCallersTicket(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.BuyTicket(ctx, bob, 2, facePrice, "")
	require.NoError(t, err)
	ev, err := svc.ResaleTicket(ctx, bob, generic.MustAmount("0.005"), "")
	require.NoError(t, err)

	assert.Equal(t, generic.TicketID(2), ev.TicketID)
	assert.True(t, ev.Amount.Equal(generic.MustAmount("0.005")))
}

func TestService_IdempotencyKey(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	_, err := svc.BuyTicket(ctx, alice, 1, facePrice, "req-1")
	require.NoError(t, err)

	// Same key, different operation: still a duplicate.
	_, err = svc.BuyTicket(ctx, bob, 2, facePrice, "req-1")
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.Equal(t, generic.NoTicket, svc.TicketOf(bob))
	assert.Equal(t, 1, journal.Len())
}

func TestService_JournalFailureLeavesLedgerUntouched(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()
	before := svc.Snapshot()

	journal.FailNextAppend(errors.New("disk full"))
	_, err := svc.BuyTicket(ctx, alice, 1, facePrice, "")

	assert.ErrorIs(t, err, generic.ErrJournalFailed)
	assert.True(t, before.Equal(svc.Snapshot()))
	assert.Equal(t, generic.NoTicket, svc.TicketOf(alice))

	// The next attempt goes through.
	_, err = svc.BuyTicket(ctx, alice, 1, facePrice, "")
	require.NoError(t, err)
}

func TestService_ReopenReplaysJournal(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	_, err := svc.BuyTicket(ctx, alice, 1, facePrice, "")
	require.NoError(t, err)
	_, err = svc.BuyTicket(ctx, bob, 2, facePrice, "")
	require.NoError(t, err)
	_, err = svc.OfferSwap(ctx, alice, 1, "")
	require.NoError(t, err)
	_, err = svc.AcceptSwap(ctx, bob, 1, "")
	require.NoError(t, err)
	_, err = svc.ResaleTicket(ctx, alice, generic.MustAmount("0.005"), "")
	require.NoError(t, err)
	_, err = svc.AcceptResale(ctx, carol, 2, generic.MustAmount("0.005"), "")
	require.NoError(t, err)
	_, err = svc.ResaleTicket(ctx, carol, generic.MustAmount("0.004"), "")
	require.NoError(t, err)

	reopened, err := ticketsale.Open(ctx, testConfig(), journal, nil)
	require.NoError(t, err)

	assert.True(t, svc.Snapshot().Equal(reopened.Snapshot()))
	assert.Equal(t, svc.LastSeq(), reopened.LastSeq())
	assert.Equal(t, generic.TicketID(2), reopened.TicketOf(carol))
}

func TestService_ReopenWithWrongConfigFails(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()
	_, err := svc.BuyTicket(ctx, alice, 1, facePrice, "")
	require.NoError(t, err)

	_, err = ticketsale.Open(ctx, ticketsale.Config{TotalTickets: 10, TicketPrice: generic.MustAmount("0.02")}, journal, nil)
	assert.ErrorIs(t, err, generic.ErrIncorrectPayment)
}

func TestService_Audit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.BuyTicket(ctx, alice, 1, facePrice, "")
	require.NoError(t, err)
	_, err = svc.CancelSwap(ctx, alice, 1, "")
	require.Error(t, err)

	report, err := svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.True(t, report.Consistent)
	assert.Equal(t, 1, report.EventsReplayed)
	assert.Empty(t, report.Problem)
}

func TestService_Reset(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()
	_, err := svc.BuyTicket(ctx, alice, 1, facePrice, "k1")
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx))
	assert.Equal(t, generic.NoTicket, svc.TicketOf(alice))
	assert.Equal(t, int64(0), svc.LastSeq())
	assert.Equal(t, 0, journal.Len())

	// Idempotency keys go with the journal.
	_, err = svc.BuyTicket(ctx, alice, 1, facePrice, "k1")
	assert.NoError(t, err)
}

func TestService_ResetClearsJournalWithLedger(t *testing.T) {
	// GIVEN: an open swap offer from alice
	// WHEN: the ledger is reset and bob then tries to accept
	// THEN: bob is rejected and the journal still reopens cleanly
	svc, journal := newTestService(t)
	ctx := context.Background()
	_, err := svc.BuyTicket(ctx, alice, 1, facePrice, "")
	require.NoError(t, err)
	_, err = svc.BuyTicket(ctx, bob, 2, facePrice, "")
	require.NoError(t, err)
	_, err = svc.OfferSwap(ctx, alice, 1, "")
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx))
	_, err = svc.AcceptSwap(ctx, bob, 1, "")
	assert.ErrorIs(t, err, generic.ErrNoSwapOffer)
	assert.Equal(t, 0, journal.Len())

	reopened, err := ticketsale.Open(ctx, testConfig(), journal, nil)
	require.NoError(t, err)
	assert.True(t, svc.Snapshot().Equal(reopened.Snapshot()))
}

func TestService_ResetWithSeed(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()
	_, err := svc.BuyTicket(ctx, carol, 5, facePrice, "")
	require.NoError(t, err)

	err = svc.Reset(ctx,
		ticketsale.Command{Kind: generic.EventPurchase, Caller: alice, TicketID: 1, Amount: facePrice},
		ticketsale.Command{Kind: generic.EventPurchase, Caller: bob, TicketID: 2, Amount: facePrice},
		ticketsale.Command{Kind: generic.EventSwapOffered, Caller: alice, TicketID: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(3), svc.LastSeq())
	assert.Equal(t, generic.NoTicket, svc.TicketOf(carol))
	assert.Equal(t, generic.TicketID(2), svc.TicketOf(bob))

	// A rejected seed command stops the reset after the commands before it.
	err = svc.Reset(ctx,
		ticketsale.Command{Kind: generic.EventPurchase, Caller: alice, TicketID: 1, Amount: facePrice},
		ticketsale.Command{Kind: generic.EventPurchase, Caller: bob, TicketID: 1, Amount: facePrice},
	)
	assert.ErrorIs(t, err, generic.ErrTicketAlreadyOwned)
	assert.Equal(t, 1, journal.Len())

	reopened, err := ticketsale.Open(ctx, testConfig(), journal, nil)
	require.NoError(t, err)
	assert.True(t, svc.Snapshot().Equal(reopened.Snapshot()))
}

func TestService_ResetDuringTraffic(t *testing.T) {
	// GIVEN: buyers and swappers running while the ledger is reset repeatedly
	// THEN: the journal always replays to the live ledger
	journal := store.NewMemory()
	cfg := ticketsale.Config{TotalTickets: 8, TicketPrice: facePrice}
	ctx := context.Background()
	svc, err := ticketsale.Open(ctx, cfg, journal, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := generic.AccountID(fmt.Sprintf("fan-%d", i))
			id := generic.TicketID(i + 1)
			other := generic.TicketID((i+1)%8 + 1)
			for n := 0; n < 50; n++ {
				svc.BuyTicket(ctx, who, id, facePrice, "")
				svc.OfferSwap(ctx, who, svc.TicketOf(who), "")
				svc.AcceptSwap(ctx, who, other, "")
			}
		}(i)
	}
	for n := 0; n < 20; n++ {
		require.NoError(t, svc.Reset(ctx))
	}
	wg.Wait()

	reopened, err := ticketsale.Open(ctx, cfg, journal, nil)
	require.NoError(t, err)
	assert.True(t, svc.Snapshot().Equal(reopened.Snapshot()))

	report, err := svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent, report.Problem)
}

func TestService_ConcurrentBuyersGetDistinctTickets(t *testing.T) {
	// GIVEN: 3 tickets and 20 buyers racing for them
	// THEN: exactly 3 purchases succeed, each ticket has one owner
	journal := store.NewMemory()
	svc, err := ticketsale.Open(context.Background(),
		ticketsale.Config{TotalTickets: 3, TicketPrice: facePrice}, journal, nil)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners = map[generic.TicketID]generic.AccountID{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := generic.AccountID(fmt.Sprintf("buyer-%d", i))
			for id := generic.TicketID(1); id <= 3; id++ {
				if _, err := svc.BuyTicket(context.Background(), who, id, facePrice, ""); err == nil {
					mu.Lock()
					winners[id] = who
					mu.Unlock()
					return
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, winners, 3)
	assert.Equal(t, 3, journal.Len())
	svc.View(func(l *ticketsale.TicketLedger) {
		require.NoError(t, l.Verify())
		for id, who := range winners {
			assert.Equal(t, id, l.TicketOf(who))
		}
	})
}
