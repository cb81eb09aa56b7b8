/*
Package generic provides the building blocks shared by the ticket ledger.

PURPOSE:
  This package contains the value types, errors, fee policies and the
  append-only journal contract used by the ticket sale state machine. It has
  no knowledge of HTTP, SQL or configuration files.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity (face price, resale price, fee, balance)
  - TicketID: A numbered unit of inventory, 1..totalTickets
  - AccountID: An opaque caller identity, pre-verified by the host

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Distinct types for tickets and accounts
  3. Sentinel zero: TicketID 0 means "no ticket owned"

USAGE:
  price := generic.MustAmount("0.01")
  if payment.Equal(price) {
      ...
  }

SEE ALSO:
  - errors.go: Error taxonomy
  - fee.go: Resale fee policies
  - journal.go: Append-only operation log
*/
package generic

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity
// =============================================================================

// Amount is a monetary quantity. The ledger does not model a currency; the
// host decides what one unit means.
type Amount struct {
	Value decimal.Decimal
}

// AmountPrecision is the number of decimal places kept by fee arithmetic.
// Matches the smallest unit of an 18-decimal token.
const AmountPrecision = 18

// ParseAmount parses a decimal string such as "0.005".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{Value: d}, nil
}

// MustAmount parses s and panics on malformed input. For constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount    { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount    { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) IsNegative() bool       { return a.Value.IsNegative() }
func (a Amount) IsZero() bool           { return a.Value.IsZero() }
func (a Amount) IsPositive() bool       { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool    { return a.Value.Equal(b.Value) }
func (a Amount) LessThan(b Amount) bool { return a.Value.LessThan(b.Value) }
func (a Amount) String() string         { return a.Value.String() }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MarshalText keeps amounts as exact decimal strings in JSON and YAML.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.Value.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// TicketID numbers a ticket. Valid IDs are 1..totalTickets.
type TicketID uint64

// NoTicket is returned for accounts that own nothing.
const NoTicket TicketID = 0

func (t TicketID) String() string { return strconv.FormatUint(uint64(t), 10) }

// ParseTicketID parses a base-10 ticket number. Range checks belong to the ledger.
func ParseTicketID(s string) (TicketID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NoTicket, fmt.Errorf("%w: %q", ErrInvalidTicketID, s)
	}
	return TicketID(n), nil
}

// AccountID is an opaque caller identity. Authentication happens outside
// the ledger; the empty string is the only malformed value.
type AccountID string

func (a AccountID) Valid() bool { return a != "" }
