package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionKindTopup    = "TOPUP"
	TransactionKindPurchase = "PURCHASE"
	TransactionKindRefund   = "REFUND"
)

const (
	PurchaseModeByCredit = "BY_CREDIT"
	PurchaseModeByBudget = "BY_BUDGET"
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
	TransactionStatusCancelled = "CANCELLED"
)

// Transaction is one ledger entry. Entries are append only: once COMPLETED
// or FAILED they are never edited and never deleted.
type Transaction struct {
	Base
	TransactionNo    string              `gorm:"type:varchar(32);uniqueIndex;not null" json:"transaction_no"`
	RequestID        *string             `gorm:"type:varchar(64);uniqueIndex:idx_transactions_user_request" json:"request_id,omitempty"`
	UserID           uuid.UUID           `gorm:"type:char(36);index;uniqueIndex:idx_transactions_user_request;not null" json:"user_id"`
	WalletID         uuid.UUID           `gorm:"type:char(36);index;not null" json:"wallet_id"`
	ProjectID        *uuid.UUID          `gorm:"type:char(36);index" json:"project_id,omitempty"`
	Kind             string              `gorm:"type:varchar(16);not null" json:"kind"`
	PurchaseMode     string              `gorm:"type:varchar(16)" json:"purchase_mode,omitempty"`
	CreditAmount     decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"credit_amount"`
	PricePaid        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"price_paid"`
	PricePerCredit   decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"price_per_credit"`
	RequestedCredits decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"requested_credits"`
	RequestedBudget  decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"requested_budget"`
	Remainder        decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"remainder"`
	Status           string              `gorm:"type:varchar(16);index;not null" json:"status"`
	Reference        string              `gorm:"type:varchar(255)" json:"reference,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}
