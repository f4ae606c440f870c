package repository

import (
	"context"

	"carbonledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.Transaction) error {
	return conn(r.db, tx).WithContext(ctx).Create(entry).Error
}

// GetByRequestID returns nil, nil when the user never used requestID.
func (r *TransactionRepository) GetByRequestID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, requestID string) (*model.Transaction, error) {
	// Find, not First: a miss is the common case and must not log as an error
	var entries []*model.Transaction
	err := conn(r.db, tx).WithContext(ctx).
		Where("user_id = ? AND request_id = ?", userID, requestID).
		Limit(1).
		Find(&entries).Error
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Transaction, int64, error) {
	var entries []*model.Transaction
	var total int64

	page, pageSize = normalizePage(page, pageSize)
	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// SumCompleted adds up column over the user's COMPLETED entries, optionally
// restricted to one kind. The sum is done in decimal, not by the database.
func (r *TransactionRepository) SumCompleted(ctx context.Context, userID uuid.UUID, column, kind string) (decimal.Decimal, error) {
	var values []decimal.Decimal
	query := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("user_id = ? AND status = ?", userID, model.TransactionStatusCompleted)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.Pluck(column, &values).Error; err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum, nil
}
