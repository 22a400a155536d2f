package budget

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Period string

const Monthly Period = "monthly"

var ErrNegativeLimit = errors.New("budget limit must not be negative")

// Budget is the per-user spending limit. A zero limit means no budget is set.
type Budget struct {
	LimitAmount decimal.Decimal
	Period      Period
}

// Unset is what a user without a stored budget has.
func Unset() Budget {
	return Budget{LimitAmount: decimal.Zero, Period: Monthly}
}

// IsSet reports whether a positive limit is configured.
func (b Budget) IsSet() bool {
	return b.LimitAmount.IsPositive()
}

func (b Budget) Normalize() Budget {
	if b.Period == "" {
		b.Period = Monthly
	}
	return b
}

func (b Budget) Validate() error {
	if b.LimitAmount.IsNegative() {
		return ErrNegativeLimit
	}
	return nil
}
