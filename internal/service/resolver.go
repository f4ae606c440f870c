package service

import (
	"carbonledger/internal/model"

	"github.com/shopspring/decimal"
)

// Quote is the concrete outcome of a purchase intent.
type Quote struct {
	Credits   decimal.Decimal
	Cost      decimal.Decimal
	Remainder decimal.Decimal
}

// ResolvePurchase turns amount into a credit quantity and its cost at price.
//
// BY_CREDIT reads amount as credits. BY_BUDGET reads it as money and buys the
// largest whole number of hundredths of a credit the budget covers, so cost
// never exceeds amount. The leftover is returned as Remainder and is never
// charged.
func ResolvePurchase(amount decimal.Decimal, mode string, price decimal.Decimal) (Quote, error) {
	if mode != model.PurchaseModeByCredit && mode != model.PurchaseModeByBudget {
		return Quote{}, ErrInvalidMode
	}
	if !model.ValidInput(amount) || !price.IsPositive() {
		return Quote{}, model.ErrInvalidAmount
	}

	if mode == model.PurchaseModeByCredit {
		return Quote{
			Credits:   amount,
			Cost:      amount.Mul(price),
			Remainder: decimal.Zero,
		}, nil
	}

	// floor(amount / price * 100) / 100, done as an integer quotient so no
	// digits are lost to division precision.
	hundredths, _ := amount.Shift(2).QuoRem(price, 0)
	credits := hundredths.Shift(-2)
	if !credits.IsPositive() {
		return Quote{}, model.ErrInvalidAmount
	}
	cost := credits.Mul(price)
	return Quote{
		Credits:   credits,
		Cost:      cost,
		Remainder: amount.Sub(cost),
	}, nil
}
