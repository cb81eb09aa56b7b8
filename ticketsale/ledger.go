/*
ledger.go - Ticket ownership and marketplace state machine

PURPOSE:
  TicketLedger owns the ticket inventory, the ownership index, swap offers
  and resale listings. The manager issues TotalTickets tickets at
  TicketPrice; every account holds at most one ticket; owners may swap
  bilaterally or list for resale, and the manager keeps a fee on resales.

INVARIANTS (hold after every operation):
  1. Bijective ownership: ticketOf[ownerOf[t]] == t for every sold t.
  2. One ticket per account: ticketOf[a] is NoTicket or one valid id.
  3. Exclusive intent: a ticket is in swapOffers or resale only while
     owned, and never in both.
  4. Ticket ids are in [1, TotalTickets].
  5. Payments equal the face or listed price exactly.

ALL-OR-NOTHING:
  Every operation is split in two phases. plan* validates all
  preconditions against the current state and returns a change closure;
  nothing is mutated until the closure runs. A rejected operation leaves
  the ledger exactly as it was.

  The public methods run both phases back to back. ticketsale.Service runs
  the journal append between them.

CONCURRENCY:
  Not safe for concurrent use. The host serializes calls (see service.go).

EXAMPLE:
  l, _ := ticketsale.New(ticketsale.Config{
      TotalTickets: 100000,
      TicketPrice:  generic.MustAmount("0.01"),
  })
  _ = l.BuyTicket("alice", 1, generic.MustAmount("0.01"))
  _ = l.BuyTicket("bob", 2, generic.MustAmount("0.01"))
  _ = l.OfferSwap("alice", 1)
  _ = l.AcceptSwap("bob", 1)
  l.TicketOf("alice") // 2

SEE ALSO:
  - invariants.go: Verify
  - replay.go: Rebuilding a ledger from the journal
  - generic/fee.go: Resale fee policies
*/
package ticketsale

import (
	"fmt"
	"sort"

	"github.com/warp/ticket-ledger/generic"
)

// =============================================================================
// TICKET LEDGER
// =============================================================================

type TicketLedger struct {
	totalTickets uint64
	ticketPrice  generic.Amount
	fees         generic.FeePolicy

	ownerOf  map[generic.TicketID]generic.AccountID
	ticketOf map[generic.AccountID]generic.TicketID

	swapOffers map[generic.TicketID]generic.AccountID

	// resale holds listings; resaleOrder keeps listing order for CheckResale.
	resale      map[generic.TicketID]ResaleListing
	resaleOrder []generic.TicketID

	managerBalance  generic.Amount
	accountBalances map[generic.AccountID]generic.Amount
}

// change is a validated mutation. Running it cannot fail.
type change func()

// New creates a ledger with every ticket unsold and the manager balance at zero.
func New(cfg Config) (*TicketLedger, error) {
	if cfg.TotalTickets == 0 {
		return nil, fmt.Errorf("%w: total tickets must be positive", generic.ErrInvalidConfiguration)
	}
	if cfg.TicketPrice.IsNegative() {
		return nil, fmt.Errorf("%w: ticket price %s is negative", generic.ErrInvalidConfiguration, cfg.TicketPrice)
	}
	fees := cfg.FeePolicy
	if fees == nil {
		fees = generic.DefaultFeePolicy()
	}

	return &TicketLedger{
		totalTickets:    cfg.TotalTickets,
		ticketPrice:     cfg.TicketPrice,
		fees:            fees,
		ownerOf:         make(map[generic.TicketID]generic.AccountID),
		ticketOf:        make(map[generic.AccountID]generic.TicketID),
		swapOffers:      make(map[generic.TicketID]generic.AccountID),
		resale:          make(map[generic.TicketID]ResaleListing),
		managerBalance:  generic.ZeroAmount(),
		accountBalances: make(map[generic.AccountID]generic.Amount),
	}, nil
}

// =============================================================================
// PURCHASE
// =============================================================================

// BuyTicket assigns an unsold ticket to caller for exactly the face price.
// The payment is credited to the manager.
func (l *TicketLedger) BuyTicket(caller generic.AccountID, id generic.TicketID, payment generic.Amount) error {
	apply, err := l.planBuy(caller, id, payment)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (l *TicketLedger) planBuy(caller generic.AccountID, id generic.TicketID, payment generic.Amount) (change, error) {
	const op = "buy"
	if err := l.checkCaller(op, caller, id); err != nil {
		return nil, err
	}
	if err := l.checkRange(op, caller, id); err != nil {
		return nil, err
	}
	if _, sold := l.ownerOf[id]; sold {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrTicketAlreadyOwned}
	}
	if l.ticketOf[caller] != generic.NoTicket {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrAccountAlreadyHasTicket}
	}
	if !payment.Equal(l.ticketPrice) {
		return nil, &generic.PaymentError{TicketID: id, Expected: l.ticketPrice, Got: payment}
	}

	return func() {
		l.assign(id, caller)
		l.managerBalance = l.managerBalance.Add(payment)
	}, nil
}

// =============================================================================
// SWAP
// =============================================================================

// OfferSwap opens ticket id for exchange. Repeating the offer is a no-op.
// Any resale listing of the ticket is withdrawn.
func (l *TicketLedger) OfferSwap(caller generic.AccountID, id generic.TicketID) error {
	apply, err := l.planOfferSwap(caller, id)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (l *TicketLedger) planOfferSwap(caller generic.AccountID, id generic.TicketID) (change, error) {
	const op = "offer swap"
	if err := l.checkOwner(op, caller, id); err != nil {
		return nil, err
	}
	return func() {
		l.removeListing(id)
		l.swapOffers[id] = caller
	}, nil
}

// CancelSwap withdraws the caller's swap offer on ticket id.
func (l *TicketLedger) CancelSwap(caller generic.AccountID, id generic.TicketID) error {
	apply, err := l.planCancelSwap(caller, id)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (l *TicketLedger) planCancelSwap(caller generic.AccountID, id generic.TicketID) (change, error) {
	const op = "cancel swap"
	if err := l.checkOwner(op, caller, id); err != nil {
		return nil, err
	}
	if _, ok := l.swapOffers[id]; !ok {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrNoSwapOffer}
	}
	return func() {
		delete(l.swapOffers, id)
	}, nil
}

// AcceptSwap exchanges the caller's ticket for ticket id, which must be
// offered for swap by another account. Both ownership entries move together.
func (l *TicketLedger) AcceptSwap(caller generic.AccountID, id generic.TicketID) error {
	apply, err := l.planAcceptSwap(caller, id)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (l *TicketLedger) planAcceptSwap(caller generic.AccountID, id generic.TicketID) (change, error) {
	const op = "accept swap"
	if err := l.checkCaller(op, caller, id); err != nil {
		return nil, err
	}
	if err := l.checkRange(op, caller, id); err != nil {
		return nil, err
	}
	offerer, ok := l.swapOffers[id]
	if !ok {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrNoSwapOffer}
	}
	if offerer == caller {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrCannotSwapWithSelf}
	}
	mine := l.ticketOf[caller]
	if mine == generic.NoTicket {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrAccountHasNoTicket}
	}

	return func() {
		delete(l.swapOffers, id)
		// The caller's ticket changes hands too; its standing offers lapse.
		delete(l.swapOffers, mine)
		l.removeListing(mine)

		l.assign(id, caller)
		l.assign(mine, offerer)
	}, nil
}

// =============================================================================
// RESALE
// =============================================================================

// ResaleTicket lists the caller's ticket at price. A price of zero is
// allowed. Relisting updates the price and keeps the listing's position.
// Any swap offer on the ticket is withdrawn.
func (l *TicketLedger) ResaleTicket(caller generic.AccountID, price generic.Amount) error {
	apply, err := l.planResale(caller, price)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (l *TicketLedger) planResale(caller generic.AccountID, price generic.Amount) (change, error) {
	const op = "resale"
	if err := l.checkCaller(op, caller, generic.NoTicket); err != nil {
		return nil, err
	}
	id := l.ticketOf[caller]
	if id == generic.NoTicket {
		return nil, &generic.TicketError{Op: op, Caller: caller, Err: generic.ErrAccountHasNoTicket}
	}
	if price.IsNegative() {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id,
			Err: fmt.Errorf("%w: %s", generic.ErrInvalidPrice, price)}
	}

	return func() {
		delete(l.swapOffers, id)
		if _, listed := l.resale[id]; !listed {
			l.resaleOrder = append(l.resaleOrder, id)
		}
		l.resale[id] = ResaleListing{TicketID: id, Seller: caller, Price: price}
	}, nil
}

// CancelResale withdraws the caller's resale listing.
func (l *TicketLedger) CancelResale(caller generic.AccountID) error {
	apply, err := l.planCancelResale(caller)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (l *TicketLedger) planCancelResale(caller generic.AccountID) (change, error) {
	const op = "cancel resale"
	if err := l.checkCaller(op, caller, generic.NoTicket); err != nil {
		return nil, err
	}
	id := l.ticketOf[caller]
	if id == generic.NoTicket {
		return nil, &generic.TicketError{Op: op, Caller: caller, Err: generic.ErrAccountHasNoTicket}
	}
	if _, listed := l.resale[id]; !listed {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrNoResaleListing}
	}
	return func() {
		l.removeListing(id)
	}, nil
}

// AcceptResale buys listed ticket id for exactly the listed price. The fee
// goes to the manager and the rest to the seller.
func (l *TicketLedger) AcceptResale(caller generic.AccountID, id generic.TicketID, payment generic.Amount) error {
	apply, err := l.planAcceptResale(caller, id, payment)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (l *TicketLedger) planAcceptResale(caller generic.AccountID, id generic.TicketID, payment generic.Amount) (change, error) {
	const op = "accept resale"
	if err := l.checkCaller(op, caller, id); err != nil {
		return nil, err
	}
	if err := l.checkRange(op, caller, id); err != nil {
		return nil, err
	}
	listing, ok := l.resale[id]
	if !ok {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrNoResaleListing}
	}
	if l.ticketOf[caller] != generic.NoTicket {
		return nil, &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrAccountAlreadyHasTicket}
	}
	if !payment.Equal(listing.Price) {
		return nil, &generic.PaymentError{TicketID: id, Expected: listing.Price, Got: payment}
	}

	fee, proceeds := generic.SplitResale(l.fees, payment)
	return func() {
		l.removeListing(id)
		delete(l.ticketOf, listing.Seller)
		l.assign(id, caller)

		l.managerBalance = l.managerBalance.Add(fee)
		l.credit(listing.Seller, proceeds)
	}, nil
}

// CheckResale returns every listed ticket and its price in listing order.
func (l *TicketLedger) CheckResale() ([]generic.TicketID, []generic.Amount) {
	ids := make([]generic.TicketID, 0, len(l.resaleOrder))
	prices := make([]generic.Amount, 0, len(l.resaleOrder))
	for _, id := range l.resaleOrder {
		ids = append(ids, id)
		prices = append(prices, l.resale[id].Price)
	}
	return ids, prices
}

// =============================================================================
// QUERIES
// =============================================================================

// TicketOf returns the caller's ticket, or NoTicket.
func (l *TicketLedger) TicketOf(account generic.AccountID) generic.TicketID {
	return l.ticketOf[account]
}

// OwnerOf returns the owner of ticket id and whether it has one.
func (l *TicketLedger) OwnerOf(id generic.TicketID) (generic.AccountID, bool) {
	owner, ok := l.ownerOf[id]
	return owner, ok
}

// Ticket describes one ticket. Fails only for out-of-range ids.
func (l *TicketLedger) Ticket(id generic.TicketID) (TicketState, error) {
	if id == generic.NoTicket || uint64(id) > l.totalTickets {
		return TicketState{}, fmt.Errorf("%w: %d", generic.ErrInvalidTicketID, id)
	}
	state := TicketState{ID: id, Owner: l.ownerOf[id]}
	_, state.SwapOffered = l.swapOffers[id]
	if listing, ok := l.resale[id]; ok {
		state.Resale = &listing
	}
	return state, nil
}

// SwapOffers returns open swap offers sorted by ticket.
func (l *TicketLedger) SwapOffers() []SwapOffer {
	offers := make([]SwapOffer, 0, len(l.swapOffers))
	for id, owner := range l.swapOffers {
		offers = append(offers, SwapOffer{TicketID: id, Owner: owner})
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].TicketID < offers[j].TicketID })
	return offers
}

func (l *TicketLedger) ManagerBalance() generic.Amount { return l.managerBalance }

// BalanceOf returns the resale proceeds credited to account.
func (l *TicketLedger) BalanceOf(account generic.AccountID) generic.Amount {
	if bal, ok := l.accountBalances[account]; ok {
		return bal
	}
	return generic.ZeroAmount()
}

func (l *TicketLedger) TotalTickets() uint64          { return l.totalTickets }
func (l *TicketLedger) TicketPrice() generic.Amount   { return l.ticketPrice }
func (l *TicketLedger) FeePolicy() generic.FeePolicy  { return l.fees }
func (l *TicketLedger) SoldCount() int                { return len(l.ownerOf) }

// Snapshot returns a deep copy of the ledger state.
func (l *TicketLedger) Snapshot() Snapshot {
	owners := make(map[generic.TicketID]generic.AccountID, len(l.ownerOf))
	for id, a := range l.ownerOf {
		owners[id] = a
	}
	balances := make(map[generic.AccountID]generic.Amount, len(l.accountBalances))
	for a, bal := range l.accountBalances {
		balances[a] = bal
	}
	resale := make([]ResaleListing, 0, len(l.resaleOrder))
	for _, id := range l.resaleOrder {
		resale = append(resale, l.resale[id])
	}
	return Snapshot{
		TotalTickets:   l.totalTickets,
		TicketPrice:    l.ticketPrice,
		Fee:            l.fees.Describe(),
		Owners:         owners,
		SwapOffers:     l.SwapOffers(),
		Resale:         resale,
		ManagerBalance: l.managerBalance,
		Balances:       balances,
	}
}

// =============================================================================
// INTERNALS
// =============================================================================

func (l *TicketLedger) checkCaller(op string, caller generic.AccountID, id generic.TicketID) error {
	if !caller.Valid() {
		return &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrInvalidAccount}
	}
	return nil
}

func (l *TicketLedger) checkRange(op string, caller generic.AccountID, id generic.TicketID) error {
	if id == generic.NoTicket || uint64(id) > l.totalTickets {
		return &generic.TicketError{Op: op, Caller: caller, TicketID: id,
			Err: fmt.Errorf("%w: %d not in [1, %d]", generic.ErrInvalidTicketID, id, l.totalTickets)}
	}
	return nil
}

func (l *TicketLedger) checkOwner(op string, caller generic.AccountID, id generic.TicketID) error {
	if err := l.checkCaller(op, caller, id); err != nil {
		return err
	}
	if err := l.checkRange(op, caller, id); err != nil {
		return err
	}
	if owner, ok := l.ownerOf[id]; !ok || owner != caller {
		return &generic.TicketError{Op: op, Caller: caller, TicketID: id, Err: generic.ErrNotOwner}
	}
	return nil
}

// assign writes both ownership indexes. Callers clear the previous owner's
// entry first when it isn't being overwritten by another assign.
func (l *TicketLedger) assign(id generic.TicketID, owner generic.AccountID) {
	l.ownerOf[id] = owner
	l.ticketOf[owner] = id
}

func (l *TicketLedger) removeListing(id generic.TicketID) {
	if _, ok := l.resale[id]; !ok {
		return
	}
	delete(l.resale, id)
	for i, listed := range l.resaleOrder {
		if listed == id {
			l.resaleOrder = append(l.resaleOrder[:i], l.resaleOrder[i+1:]...)
			break
		}
	}
}

func (l *TicketLedger) credit(account generic.AccountID, amount generic.Amount) {
	l.accountBalances[account] = l.BalanceOf(account).Add(amount)
}
