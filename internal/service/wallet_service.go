package service

import (
	"context"

	"carbonledger/internal/model"
	"carbonledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WalletService struct {
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

type WalletSummary struct {
	Wallet        *model.Wallet   `json:"wallet"`
	CreditBalance decimal.Decimal `json:"credit_balance"`
	TotalInvested decimal.Decimal `json:"total_invested"`
}

// GetSummary returns the wallet with the credits the user has bought and the
// money spent on them, both taken from COMPLETED ledger entries.
func (s *WalletService) GetSummary(ctx context.Context, userID uuid.UUID) (*WalletSummary, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	credits, err := s.transactionRepo.SumCompleted(ctx, userID, "credit_amount", "")
	if err != nil {
		return nil, err
	}
	invested, err := s.transactionRepo.SumCompleted(ctx, userID, "price_paid", model.TransactionKindPurchase)
	if err != nil {
		return nil, err
	}
	return &WalletSummary{Wallet: wallet, CreditBalance: credits, TotalInvested: invested}, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Transaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}
