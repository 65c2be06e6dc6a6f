package calculator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits every stored amount carries.
const Places = 2

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNonPositive      = errors.New("amount must be greater than zero")
	ErrTooFewSplitters  = errors.New("must have at least two splitters")
	ErrNegativeDecimals = errors.New("token decimals cannot be negative")
)

// ParseAmount parses a decimal string such as "50.00".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// Round2 rounds half-up to two decimals. Amounts are never negative, so
// decimal's half-away-from-zero rounding is half-up here.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// IsPositive reports whether s parses to an amount greater than zero.
// Unparseable input is not positive.
func IsPositive(s string) bool {
	d, err := ParseAmount(s)
	return err == nil && d.IsPositive()
}

// SplitEvenly computes each splitter's share of total, rounded to 2 decimals.
// Based on: per_person = round2(total / splitters)
func SplitEvenly(total string, splitters int) (string, error) {
	if splitters < 2 {
		return "", ErrTooFewSplitters
	}
	t, err := ParseAmount(total)
	if err != nil {
		return "", err
	}
	if !t.IsPositive() {
		return "", ErrNonPositive
	}

	// Divide with headroom so Round2 sees the true third decimal.
	share := t.DivRound(decimal.NewFromInt(int64(splitters)), 16)
	return Format(Round2(share)), nil
}

// Sum adds the given amounts and rounds the result to 2 decimals.
func Sum(amounts []string) (string, error) {
	total := decimal.Zero
	for _, a := range amounts {
		d, err := ParseAmount(a)
		if err != nil {
			return "", err
		}
		total = total.Add(d)
	}
	return Format(Round2(total)), nil
}

// ToTokenUnits converts a decimal amount into the token's smallest unit,
// e.g. "50.00" with 6 decimals becomes 50000000. Digits beyond the token's
// precision are truncated.
func ToTokenUnits(amount string, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrNegativeDecimals
	}
	d, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	return d.Shift(decimals).Truncate(0).BigInt(), nil
}
