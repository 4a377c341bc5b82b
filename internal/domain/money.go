package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// CentsPerUnit is the number of minor units stored per currency unit.
	CentsPerUnit = 100
	// MaxBalanceCents caps both a single amount and a stored balance, well
	// below the int64 limit so balance + amount never overflows.
	MaxBalanceCents int64 = 100_000_000_000_000_000
)

var (
	centsFactor = decimal.NewFromInt(CentsPerUnit)
	maxCents    = decimal.NewFromInt(MaxBalanceCents)
)

func init() {
	// balances travel as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

// ValidateAmount checks that amount is strictly positive, representable in
// cents and no larger than MaxBalanceCents.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	if amount.Mul(centsFactor).GreaterThan(maxCents) {
		return fmt.Errorf("%w: %s exceeds the maximum amount", ErrInvalidAmount, amount)
	}
	return nil
}

// ToCents converts a validated amount into integer minor units.
func ToCents(amount decimal.Decimal) (int64, error) {
	if err := ValidateAmount(amount); err != nil {
		return 0, err
	}
	cents := amount.Mul(centsFactor)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return cents.IntPart(), nil
}

// FromCents converts stored minor units back into a decimal balance.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
