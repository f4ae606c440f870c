package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	EventLedgerPurchase = "ledger.purchase"
	EventLedgerTopup    = "ledger.topup"
)

// OutboxMessage is written in the same database transaction as the ledger
// entry it announces and relayed to Kafka afterwards.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string    `gorm:"type:varchar(32);not null" json:"event_type"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// LedgerEvent is the payload published for every settled entry.
type LedgerEvent struct {
	EventType     string          `json:"event_type"`
	TransactionNo string          `json:"transaction_no"`
	UserID        uuid.UUID       `json:"user_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	ProjectID     *uuid.UUID      `json:"project_id,omitempty"`
	Kind          string          `json:"kind"`
	PurchaseMode  string          `json:"purchase_mode,omitempty"`
	CreditAmount  decimal.Decimal `json:"credit_amount"`
	PricePaid     decimal.Decimal `json:"price_paid"`
	Status        string          `json:"status"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewLedgerOutbox builds the outbox row announcing entry on topic.
func NewLedgerOutbox(topic, eventType string, entry *Transaction) (*OutboxMessage, error) {
	payload, err := json.Marshal(LedgerEvent{
		EventType:     eventType,
		TransactionNo: entry.TransactionNo,
		UserID:        entry.UserID,
		WalletID:      entry.WalletID,
		ProjectID:     entry.ProjectID,
		Kind:          entry.Kind,
		PurchaseMode:  entry.PurchaseMode,
		CreditAmount:  entry.CreditAmount,
		PricePaid:     entry.PricePaid,
		Status:        entry.Status,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		MessageKey: entry.TransactionNo,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(payload),
		Status:     OutboxStatusPending,
	}, nil
}
