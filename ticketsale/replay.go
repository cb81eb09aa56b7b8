package ticketsale

import (
	"fmt"

	"github.com/warp/ticket-ledger/generic"
)

// Command is one externally triggered ledger operation.
//
// TicketID is ignored for resale listing and cancellation, which act on the
// caller's own ticket. Amount is the attached payment for purchases and
// resale acceptance, and the asking price for listings.
type Command struct {
	Kind           generic.EventKind
	Caller         generic.AccountID
	TicketID       generic.TicketID
	Amount         generic.Amount
	IdempotencyKey string
}

// plan validates cmd against l and returns the pending change plus the
// ticket the operation concerns.
func (l *TicketLedger) plan(cmd Command) (change, generic.TicketID, error) {
	switch cmd.Kind {
	case generic.EventPurchase:
		apply, err := l.planBuy(cmd.Caller, cmd.TicketID, cmd.Amount)
		return apply, cmd.TicketID, err
	case generic.EventSwapOffered:
		apply, err := l.planOfferSwap(cmd.Caller, cmd.TicketID)
		return apply, cmd.TicketID, err
	case generic.EventSwapCancelled:
		apply, err := l.planCancelSwap(cmd.Caller, cmd.TicketID)
		return apply, cmd.TicketID, err
	case generic.EventSwapAccepted:
		apply, err := l.planAcceptSwap(cmd.Caller, cmd.TicketID)
		return apply, cmd.TicketID, err
	case generic.EventResaleListed:
		apply, err := l.planResale(cmd.Caller, cmd.Amount)
		return apply, l.ticketOf[cmd.Caller], err
	case generic.EventResaleCancelled:
		apply, err := l.planCancelResale(cmd.Caller)
		return apply, l.ticketOf[cmd.Caller], err
	case generic.EventResaleAccepted:
		apply, err := l.planAcceptResale(cmd.Caller, cmd.TicketID, cmd.Amount)
		return apply, cmd.TicketID, err
	default:
		return nil, generic.NoTicket, fmt.Errorf("unknown operation %q", cmd.Kind)
	}
}

// Apply runs cmd against the ledger directly.
func (l *TicketLedger) Apply(cmd Command) error {
	apply, _, err := l.plan(cmd)
	if err != nil {
		return err
	}
	apply()
	return nil
}

// CommandFromEvent turns a journaled event back into the command that produced it.
func CommandFromEvent(ev generic.Event) Command {
	return Command{
		Kind:           ev.Kind,
		Caller:         ev.Account,
		TicketID:       ev.TicketID,
		Amount:         ev.Amount,
		IdempotencyKey: ev.IdempotencyKey,
	}
}

// Replay builds a fresh ledger from cfg and re-applies events in order.
// Every journaled event was accepted once, so any rejection here means the
// journal and the configuration don't belong together.
func Replay(cfg Config, events []generic.Event) (*TicketLedger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := l.Apply(CommandFromEvent(ev)); err != nil {
			return nil, fmt.Errorf("replay event %d (%s): %w", ev.Seq, ev.Kind, err)
		}
	}
	return l, nil
}
