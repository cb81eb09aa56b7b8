/*
Package factory provides JSON to Go fee policy conversion.

PURPOSE:
  Converts fee definitions into generic.FeePolicy values. The definition
  is stored next to the ledger configuration, so a restarted server
  rebuilds the exact policy the journal was written under.

JSON SCHEMA:
  {"type": "basis_points", "basis_points": 1000}
  {"type": "flat", "amount": "0.001"}

  An empty object (or type "") means the default 10% policy.

USAGE:
  factory := NewFeePolicyFactory()
  policy, err := factory.ParseFee(`{"type":"basis_points","basis_points":250}`)

  // Persist alongside the ledger config
  raw, _ := factory.Marshal(policy)

SEE ALSO:
  - generic/fee.go: Policy implementations
  - store/sqlite/sqlite.go: ledger_config.fee_json
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/ticket-ledger/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

const (
	FeeTypeBasisPoints = "basis_points"
	FeeTypeFlat        = "flat"
)

// FeeJSON is the JSON (and YAML) representation of a fee policy.
type FeeJSON struct {
	Type        string `json:"type" yaml:"type"`
	BasisPoints *int64 `json:"basis_points,omitempty" yaml:"basis_points,omitempty"`
	Amount      string `json:"amount,omitempty" yaml:"amount,omitempty"`
}

// =============================================================================
// FEE POLICY FACTORY
// =============================================================================

// FeePolicyFactory converts fee definitions to generic.FeePolicy.
type FeePolicyFactory struct{}

// NewFeePolicyFactory creates a new fee policy factory.
func NewFeePolicyFactory() *FeePolicyFactory {
	return &FeePolicyFactory{}
}

// ParseFee parses a JSON string into a FeePolicy. An empty string yields
// the default policy.
func (f *FeePolicyFactory) ParseFee(jsonStr string) (generic.FeePolicy, error) {
	if jsonStr == "" {
		return generic.DefaultFeePolicy(), nil
	}
	var fj FeeJSON
	if err := json.Unmarshal([]byte(jsonStr), &fj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse fee JSON: %v", generic.ErrInvalidConfiguration, err)
	}
	return f.FromJSON(fj)
}

// FromJSON converts FeeJSON to a generic.FeePolicy.
func (f *FeePolicyFactory) FromJSON(fj FeeJSON) (generic.FeePolicy, error) {
	switch fj.Type {
	case "":
		if fj.BasisPoints == nil && fj.Amount == "" {
			return generic.DefaultFeePolicy(), nil
		}
		return nil, fmt.Errorf("%w: fee type is required", generic.ErrInvalidConfiguration)

	case FeeTypeBasisPoints:
		if fj.BasisPoints == nil {
			return generic.DefaultFeePolicy(), nil
		}
		return generic.NewBasisPointsFee(*fj.BasisPoints)

	case FeeTypeFlat:
		amount, err := generic.ParseAmount(fj.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", generic.ErrInvalidConfiguration, err)
		}
		return generic.NewFlatFee(amount)

	default:
		return nil, fmt.Errorf("%w: unknown fee type %q", generic.ErrInvalidConfiguration, fj.Type)
	}
}

// ToJSON converts a FeePolicy back to its definition.
func (f *FeePolicyFactory) ToJSON(policy generic.FeePolicy) (FeeJSON, error) {
	switch p := policy.(type) {
	case *generic.BasisPointsFee:
		bps := p.BasisPoints
		return FeeJSON{Type: FeeTypeBasisPoints, BasisPoints: &bps}, nil
	case *generic.FlatFee:
		return FeeJSON{Type: FeeTypeFlat, Amount: p.Amount.String()}, nil
	default:
		return FeeJSON{}, fmt.Errorf("unsupported fee policy %T", policy)
	}
}

// Marshal returns the JSON definition of policy.
func (f *FeePolicyFactory) Marshal(policy generic.FeePolicy) (string, error) {
	fj, err := f.ToJSON(policy)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(fj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
