/*
errors.go - Centralized error types for the ticket ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every rejected ledger operation returns one of these sentinels, either
  directly or wrapped in a structured error that carries context.

ERROR CATEGORIES:
  1. Configuration errors - The ledger cannot be constructed
  2. Validation errors - A precondition of an operation is not met
  3. Journal errors - The committed operation could not be recorded

GUARANTEE:
  A rejected operation leaves the ledger exactly as it was. No error
  here is fatal to the process.

USAGE:
  if errors.Is(err, generic.ErrAccountAlreadyHasTicket) {
      ...
  }

  var payErr *generic.PaymentError
  if errors.As(err, &payErr) {
      log.Printf("expected %s, got %s", payErr.Expected, payErr.Got)
  }

SEE ALSO:
  - ticketsale/ledger.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidConfiguration is returned when a ledger is constructed with a
	// non-positive ticket supply, a negative price or a bad fee policy.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidTicketID is returned for ticket IDs outside [1, totalTickets].
	ErrInvalidTicketID = errors.New("invalid ticket id")

	// ErrTicketAlreadyOwned is returned when buying a ticket that has an owner.
	ErrTicketAlreadyOwned = errors.New("ticket already owned")

	// ErrAccountAlreadyHasTicket enforces the one-ticket-per-account rule.
	ErrAccountAlreadyHasTicket = errors.New("account already has a ticket")

	// ErrAccountHasNoTicket is returned when the caller must own a ticket but doesn't.
	ErrAccountHasNoTicket = errors.New("account has no ticket")

	// ErrNotOwner is returned when the caller acts on a ticket it doesn't own.
	ErrNotOwner = errors.New("caller does not own ticket")

	// ErrNoSwapOffer is returned when the ticket is not offered for swap.
	ErrNoSwapOffer = errors.New("no swap offer for ticket")

	// ErrCannotSwapWithSelf is returned when the offering owner accepts its own offer.
	ErrCannotSwapWithSelf = errors.New("cannot swap with self")

	// ErrNoResaleListing is returned when the ticket is not listed for resale.
	ErrNoResaleListing = errors.New("no resale listing for ticket")

	// ErrIncorrectPayment is returned when the attached payment differs from the price.
	ErrIncorrectPayment = errors.New("incorrect payment")

	// ErrInvalidAccount is returned for an empty account reference.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrInvalidPrice is returned when listing a ticket at a negative price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrDuplicateIdempotencyKey is returned when an operation with the same
	// idempotency key was already committed. Expected on client retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrJournalFailed is returned when a committed operation cannot be recorded.
	// The ledger is left unchanged.
	ErrJournalFailed = errors.New("journal append failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TicketError ties a rejection to the caller and ticket it concerns.
type TicketError struct {
	Op       string
	Caller   AccountID
	TicketID TicketID
	Err      error
}

func (e *TicketError) Error() string {
	if e.TicketID == NoTicket {
		return fmt.Sprintf("%s by %q: %v", e.Op, e.Caller, e.Err)
	}
	return fmt.Sprintf("%s ticket %d by %q: %v", e.Op, e.TicketID, e.Caller, e.Err)
}

func (e *TicketError) Unwrap() error {
	return e.Err
}

// PaymentError provides details about a payment mismatch.
type PaymentError struct {
	TicketID TicketID
	Expected Amount
	Got      Amount
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("incorrect payment for ticket %d: expected %s, got %s",
		e.TicketID, e.Expected, e.Got)
}

func (e *PaymentError) Unwrap() error {
	return ErrIncorrectPayment
}

// InvariantViolation reports a broken ownership or marketplace invariant.
// Only produced by verification; a healthy ledger never returns it.
type InvariantViolation struct {
	Invariant string // e.g., "bijective_ownership", "exclusive_listing"
	TicketID  TicketID
	Account   AccountID
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated (ticket %d, account %q): %s",
		e.Invariant, e.TicketID, e.Account, e.Detail)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTicketID) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrCannotSwapWithSelf) ||
		errors.Is(err, ErrAccountHasNoTicket) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// IsConflict returns true if the error stems from the current ownership state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTicketAlreadyOwned) ||
		errors.Is(err, ErrAccountAlreadyHasTicket) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the referenced offer or listing doesn't exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoSwapOffer) ||
		errors.Is(err, ErrNoResaleListing)
}
