package repository

import (
	"context"
	"errors"

	"carbonledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error {
	return conn(r.db, tx).WithContext(ctx).Create(wallet).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	return r.first(r.db.WithContext(ctx), "user_id = ?", userID)
}

// GetByUserIDForUpdate row-locks the wallet until tx ends.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*model.Wallet, error) {
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "user_id = ?", userID)
}

func (r *WalletRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Wallet, error) {
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *WalletRepository) first(q *gorm.DB, cond string, arg interface{}) (*model.Wallet, error) {
	var wallet model.Wallet
	err := q.Where(cond, arg).Where("is_active = ?", true).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// Save persists the in-memory balance, conditioned on the version the wallet
// was loaded with. On success wallet.Version is advanced to match the row.
func (r *WalletRepository) Save(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error {
	result := conn(r.db, tx).WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", wallet.ID, wallet.Version).
		Updates(map[string]interface{}{
			"balance":    wallet.Balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": wallet.UpdatedAt,
			"updated_by": wallet.UpdatedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	wallet.Version++
	return nil
}
