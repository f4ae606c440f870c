package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive with at most two decimal places")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInsufficientCredits = errors.New("insufficient project credits")
)

// ValidInput reports whether d is usable as a client supplied quantity:
// strictly positive and no finer than cents.
func ValidInput(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(2))
}
