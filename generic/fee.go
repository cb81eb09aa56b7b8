/*
fee.go - Resale fee policies

PURPOSE:
  The manager keeps a service fee on every resale. A FeePolicy turns a
  resale price into the manager's cut; the seller receives the remainder.

POLICIES:
  BasisPointsFee: price * bps / 10000, truncated to AmountPrecision places
  FlatFee:        a fixed amount, capped at the price

INVARIANT:
  0 <= Fee(price) <= price for every price >= 0. The seller's proceeds are
  never negative.

DEFAULT:
  DefaultFeePolicy is 10% (1000 basis points).

SEE ALSO:
  - factory/fee.go: Builds policies from JSON
  - ticketsale/ledger.go: Applies the policy in AcceptResale
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeePolicy computes the manager's cut of a resale.
type FeePolicy interface {
	// Fee returns the manager's share of price. Must satisfy 0 <= fee <= price.
	Fee(price Amount) Amount

	// Describe returns a short human-readable form, e.g. "1000bps".
	Describe() string
}

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10000

// DefaultFeeBasisPoints is the fee used when no policy is configured.
const DefaultFeeBasisPoints = 1000

// bpsScale is log10(MaxBasisPoints).
const bpsScale = 4

// BasisPointsFee takes a fixed fraction of the price.
type BasisPointsFee struct {
	BasisPoints int64
}

func NewBasisPointsFee(bps int64) (*BasisPointsFee, error) {
	if bps < 0 || bps > MaxBasisPoints {
		return nil, fmt.Errorf("%w: fee basis points %d outside [0, %d]",
			ErrInvalidConfiguration, bps, MaxBasisPoints)
	}
	return &BasisPointsFee{BasisPoints: bps}, nil
}

func (f *BasisPointsFee) Fee(price Amount) Amount {
	if !price.IsPositive() {
		return ZeroAmount()
	}
	// Shift is exact; Div would round to decimal.DivisionPrecision first.
	fee := price.Value.Mul(decimal.NewFromInt(f.BasisPoints)).Shift(-bpsScale).Truncate(AmountPrecision)
	return Amount{Value: fee}
}

func (f *BasisPointsFee) Describe() string {
	return fmt.Sprintf("%dbps", f.BasisPoints)
}

// FlatFee takes a fixed amount per resale.
type FlatFee struct {
	Amount Amount
}

func NewFlatFee(amount Amount) (*FlatFee, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative flat fee %s", ErrInvalidConfiguration, amount)
	}
	return &FlatFee{Amount: amount}, nil
}

func (f *FlatFee) Fee(price Amount) Amount {
	if !price.IsPositive() {
		return ZeroAmount()
	}
	return f.Amount.Min(price)
}

func (f *FlatFee) Describe() string {
	return "flat:" + f.Amount.String()
}

// DefaultFeePolicy returns the 10% policy.
func DefaultFeePolicy() FeePolicy {
	return &BasisPointsFee{BasisPoints: DefaultFeeBasisPoints}
}

// SplitResale divides a resale price between the manager and the seller.
func SplitResale(policy FeePolicy, price Amount) (fee, proceeds Amount) {
	fee = policy.Fee(price)
	return fee, price.Sub(fee)
}
