package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds the monetary balance a user spends on credits.
// Balance is only ever changed through Debit and Credit.
type Wallet struct {
	Base
	UserID  uuid.UUID       `gorm:"type:char(36);uniqueIndex;not null" json:"user_id"`
	Balance decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance"`
	Version int             `gorm:"not null;default:0" json:"version"` // optimistic lock
}

func (Wallet) TableName() string {
	return "wallets"
}

// NewWallet returns an empty wallet owned by userID.
func NewWallet(userID uuid.UUID) *Wallet {
	w := &Wallet{UserID: userID, Balance: decimal.Zero}
	w.Stamp(userID)
	return w
}

func (w *Wallet) HasSufficientBalance(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// Debit removes amount from the balance. The change is in memory only until
// the owning unit of work persists it.
func (w *Wallet) Debit(amount decimal.Decimal, actor uuid.UUID) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !w.HasSufficientBalance(amount) {
		return ErrInsufficientBalance
	}
	w.Balance = w.Balance.Sub(amount)
	w.Touch(actor)
	return nil
}

func (w *Wallet) Credit(amount decimal.Decimal, actor uuid.UUID) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	w.Balance = w.Balance.Add(amount)
	w.Touch(actor)
	return nil
}
