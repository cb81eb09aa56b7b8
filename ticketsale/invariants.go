package ticketsale

import (
	"fmt"

	"github.com/warp/ticket-ledger/generic"
)

// Verify checks the ownership and marketplace invariants and returns the
// first violation found. Used by tests after every mutation and by the
// audit job; a ledger only mutated through its operations always passes.
func (l *TicketLedger) Verify() error {
	for id, owner := range l.ownerOf {
		if id == generic.NoTicket || uint64(id) > l.totalTickets {
			return &generic.InvariantViolation{Invariant: "ticket_range", TicketID: id, Account: owner,
				Detail: fmt.Sprintf("owned ticket outside [1, %d]", l.totalTickets)}
		}
		if got := l.ticketOf[owner]; got != id {
			return &generic.InvariantViolation{Invariant: "bijective_ownership", TicketID: id, Account: owner,
				Detail: fmt.Sprintf("owner's ticketOf is %d", got)}
		}
	}
	for owner, id := range l.ticketOf {
		if id == generic.NoTicket {
			return &generic.InvariantViolation{Invariant: "one_ticket_per_account", Account: owner,
				Detail: "explicit NoTicket entry"}
		}
		if got, ok := l.ownerOf[id]; !ok || got != owner {
			return &generic.InvariantViolation{Invariant: "bijective_ownership", TicketID: id, Account: owner,
				Detail: fmt.Sprintf("ticket owner is %q", got)}
		}
	}

	for id, offerer := range l.swapOffers {
		if owner, ok := l.ownerOf[id]; !ok || owner != offerer {
			return &generic.InvariantViolation{Invariant: "swap_offer_owner", TicketID: id, Account: offerer,
				Detail: "offer by non-owner"}
		}
		if _, listed := l.resale[id]; listed {
			return &generic.InvariantViolation{Invariant: "exclusive_listing", TicketID: id, Account: offerer,
				Detail: "offered for swap and listed for resale"}
		}
	}

	if len(l.resaleOrder) != len(l.resale) {
		return &generic.InvariantViolation{Invariant: "resale_order",
			Detail: fmt.Sprintf("%d ordered, %d listed", len(l.resaleOrder), len(l.resale))}
	}
	for _, id := range l.resaleOrder {
		listing, ok := l.resale[id]
		if !ok {
			return &generic.InvariantViolation{Invariant: "resale_order", TicketID: id, Detail: "ordered but not listed"}
		}
		if owner, owned := l.ownerOf[id]; !owned || owner != listing.Seller {
			return &generic.InvariantViolation{Invariant: "resale_seller", TicketID: id, Account: listing.Seller,
				Detail: "listed by non-owner"}
		}
		if listing.Price.IsNegative() {
			return &generic.InvariantViolation{Invariant: "resale_price", TicketID: id, Account: listing.Seller,
				Detail: "negative price " + listing.Price.String()}
		}
	}
	return nil
}
