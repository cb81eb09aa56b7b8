// Package ticketsale implements the ticket ownership and marketplace state machine.
// It builds on the generic amounts, errors, fee policies and journal.
package ticketsale

import (
	"github.com/warp/ticket-ledger/generic"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config fixes the ledger's immutable parameters.
type Config struct {
	TotalTickets uint64
	TicketPrice  generic.Amount
	FeePolicy    generic.FeePolicy // nil means generic.DefaultFeePolicy()
}

// =============================================================================
// MARKETPLACE STATE
// =============================================================================

// ResaleListing is an owner's standing offer to sell at a fixed price.
type ResaleListing struct {
	TicketID generic.TicketID
	Seller   generic.AccountID
	Price    generic.Amount
}

// SwapOffer is an owner's standing offer to exchange its ticket.
type SwapOffer struct {
	TicketID generic.TicketID
	Owner    generic.AccountID
}

// TicketState describes one ticket for queries.
type TicketState struct {
	ID          generic.TicketID
	Owner       generic.AccountID // empty while unsold
	SwapOffered bool
	Resale      *ResaleListing
}

// =============================================================================
// SNAPSHOT - Deep copy of the ledger state
// =============================================================================

// Snapshot is a point-in-time copy of everything the ledger owns.
// Resale is in listing order; SwapOffers is sorted by ticket.
type Snapshot struct {
	TotalTickets   uint64
	TicketPrice    generic.Amount
	Fee            string
	Owners         map[generic.TicketID]generic.AccountID
	SwapOffers     []SwapOffer
	Resale         []ResaleListing
	ManagerBalance generic.Amount
	Balances       map[generic.AccountID]generic.Amount
}

// Equal compares snapshots by value. Amounts compare numerically so
// 0.010 equals 0.01.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.TotalTickets != o.TotalTickets || !s.TicketPrice.Equal(o.TicketPrice) || s.Fee != o.Fee {
		return false
	}
	if !s.ManagerBalance.Equal(o.ManagerBalance) {
		return false
	}
	if len(s.Owners) != len(o.Owners) || len(s.Balances) != len(o.Balances) {
		return false
	}
	for t, a := range s.Owners {
		if o.Owners[t] != a {
			return false
		}
	}
	for a, bal := range s.Balances {
		other, ok := o.Balances[a]
		if !ok || !bal.Equal(other) {
			return false
		}
	}
	if len(s.SwapOffers) != len(o.SwapOffers) || len(s.Resale) != len(o.Resale) {
		return false
	}
	for i := range s.SwapOffers {
		if s.SwapOffers[i] != o.SwapOffers[i] {
			return false
		}
	}
	for i := range s.Resale {
		a, b := s.Resale[i], o.Resale[i]
		if a.TicketID != b.TicketID || a.Seller != b.Seller || !a.Price.Equal(b.Price) {
			return false
		}
	}
	return true
}
