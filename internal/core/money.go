// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals. Inputs keep up to three fractional digits,
// ledger deltas are rounded to cents.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	// MoneyPlaces is the precision of ledger amounts.
	MoneyPlaces = 2
	// InputPlaces is the precision kept for matrix and cash inputs.
	InputPlaces = 3
	// RatePlaces is the precision of the per-unit profit rate.
	RatePlaces = 16
)

// MaxAmount is the upper clamp for any input amount.
var MaxAmount = decimal.NewFromInt(999999999999)

// ParseAmount converts a decimal string to an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. The value is returned unclamped; callers normalize
// with ClampAmount when the field must be non-negative.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.345, nil
//	ParseAmount("-5")     -> -5, nil
//	ParseAmount("1e3")    -> error (non-numeric)
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Invalid("amount", ReasonNonNumeric, raw)
	}
	s = strings.ReplaceAll(s, ",", ".")
	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 {
		return decimal.Zero, Invalid("amount", ReasonNonNumeric, raw)
	}
	parts := strings.Split(digits, ".")
	if len(parts) > 2 {
		return decimal.Zero, Invalid("amount", ReasonNonNumeric, raw)
	}
	seen := 0
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return decimal.Zero, Invalid("amount", ReasonNonNumeric, raw)
			}
			seen++
		}
	}
	if seen == 0 {
		return decimal.Zero, Invalid("amount", ReasonNonNumeric, raw)
	}
	if strings.HasPrefix(digits, ".") {
		s = strings.Replace(s, ".", "0.", 1)
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Zero, Invalid("amount", ReasonNonNumeric, raw)
	}
	return d, nil
}

// ClampAmount normalizes an input amount into [0, MaxAmount] at InputPlaces.
// This is lossy on purpose: negatives become zero and overflow becomes the max.
func ClampAmount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(MaxAmount) {
		return MaxAmount
	}
	return d.Round(InputPlaces)
}

// ClampSignedAmount bounds a signed amount to [-MaxAmount, MaxAmount] at
// InputPlaces. Used for balances carried between periods, which may be
// negative.
func ClampSignedAmount(d decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(MaxAmount) {
		return MaxAmount
	}
	if d.LessThan(MaxAmount.Neg()) {
		return MaxAmount.Neg()
	}
	return d.Round(InputPlaces)
}

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
