package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"carbonledger/internal/config"
	"carbonledger/internal/infrastructure/lock"
	"carbonledger/internal/logging"
	"carbonledger/internal/model"
	"carbonledger/internal/repository"
	"carbonledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	lockRetryInterval = 50 * time.Millisecond
	lockMaxRetries    = 40
)

// SettlementService applies purchases and topups. Each settlement is one
// database transaction: wallet, project, ledger entry and outbox event are
// committed together or not at all.
type SettlementService struct {
	db          *gorm.DB
	redisClient *redis.Client
	topic       string
	lockTTL     time.Duration
	logger      *slog.Logger

	userRepo        *repository.UserRepository
	walletRepo      *repository.WalletRepository
	projectRepo     *repository.ProjectRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

// NewSettlementService wires the service. redisClient may be nil, in which
// case concurrent settlements are serialized by row locks alone.
func NewSettlementService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *slog.Logger) *SettlementService {
	return &SettlementService{
		db:              db,
		redisClient:     redisClient,
		topic:           cfg.Kafka.Topic.LedgerEvents,
		lockTTL:         cfg.Business.SettlementLockTTL(),
		logger:          logging.Component(logger, "settlement"),
		userRepo:        repository.NewUserRepository(db),
		walletRepo:      repository.NewWalletRepository(db),
		projectRepo:     repository.NewProjectRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type PurchaseRequest struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
	Amount    decimal.Decimal
	Mode      string
	RequestID string // optional idempotency key
	Reference string
}

type PurchaseResult struct {
	Transaction *model.Transaction
	Credits     decimal.Decimal
	Cost        decimal.Decimal
	Remainder   decimal.Decimal
	Replayed    bool // true when RequestID matched an earlier settlement
}

type TopupRequest struct {
	UserID    uuid.UUID
	WalletID  uuid.UUID
	Amount    decimal.Decimal
	RequestID string
	Reference string
}

func (s *SettlementService) SettlePurchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	if replayed, err := s.replayPurchase(ctx, nil, req); err != nil || replayed != nil {
		return replayed, err
	}

	release, err := s.acquire(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *PurchaseResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, user.ID)
		if errors.Is(err, repository.ErrWalletNotFound) {
			// a user without a usable wallet cannot act as a buyer
			return repository.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		// the wallet row lock is held from here on, so a concurrent retry
		// with the same key is visible now
		if replayed, err := s.replayPurchase(ctx, tx, req); err != nil || replayed != nil {
			result = replayed
			return err
		}

		project, err := s.projectRepo.GetByIDForUpdate(ctx, tx, req.ProjectID)
		if err != nil {
			return err
		}

		quote, err := ResolvePurchase(req.Amount, req.Mode, project.PricePerCredit)
		if err != nil {
			return err
		}
		if !project.HasSufficientCredits(quote.Credits) {
			return model.ErrInsufficientCredits
		}
		if !wallet.HasSufficientBalance(quote.Cost) {
			return model.ErrInsufficientBalance
		}

		if err := wallet.Debit(quote.Cost, user.ID); err != nil {
			return err
		}
		if err := project.Reserve(quote.Credits, user.ID); err != nil {
			return err
		}
		if err := s.walletRepo.Save(ctx, tx, wallet); err != nil {
			return err
		}
		if err := s.projectRepo.Save(ctx, tx, project); err != nil {
			return err
		}

		entry := &model.Transaction{
			TransactionNo:  idgen.GeneratePurchaseNo(),
			RequestID:      optionalString(req.RequestID),
			UserID:         user.ID,
			WalletID:       wallet.ID,
			ProjectID:      &project.ID,
			Kind:           model.TransactionKindPurchase,
			PurchaseMode:   req.Mode,
			CreditAmount:   quote.Credits,
			PricePaid:      quote.Cost,
			PricePerCredit: decimal.NewNullDecimal(project.PricePerCredit),
			Status:         model.TransactionStatusCompleted,
			Reference:      req.Reference,
		}
		if req.Mode == model.PurchaseModeByCredit {
			entry.RequestedCredits = decimal.NewNullDecimal(req.Amount)
		} else {
			entry.RequestedBudget = decimal.NewNullDecimal(req.Amount)
			entry.Remainder = decimal.NewNullDecimal(quote.Remainder)
		}
		entry.Stamp(user.ID)

		if err := s.record(ctx, tx, entry, model.EventLedgerPurchase); err != nil {
			return err
		}

		result = &PurchaseResult{
			Transaction: entry,
			Credits:     quote.Credits,
			Cost:        quote.Cost,
			Remainder:   quote.Remainder,
		}
		return nil
	})

	if err != nil {
		if entry := s.replayAfterConflict(ctx, err, req.UserID, req.RequestID); entry != nil {
			if !samePurchase(entry, req) {
				return nil, ErrRequestIDReused
			}
			return purchaseResultFrom(entry), nil
		}
		s.logFailure("purchase", err,
			slog.String("user_id", req.UserID.String()),
			slog.String("project_id", req.ProjectID.String()),
			slog.String("amount", req.Amount.String()),
			slog.String("mode", req.Mode),
		)
		return nil, err
	}

	if !result.Replayed {
		s.logger.Info("purchase settled",
			slog.String("transaction_no", result.Transaction.TransactionNo),
			slog.String("user_id", req.UserID.String()),
			slog.String("project_id", req.ProjectID.String()),
			slog.String("credits", result.Credits.String()),
			slog.String("cost", result.Cost.String()),
		)
	}
	return result, nil
}

// SettleTopup credits amount to the acting user's wallet.
func (s *SettlementService) SettleTopup(ctx context.Context, req *TopupRequest) (*model.Transaction, error) {
	if !model.ValidInput(req.Amount) {
		return nil, model.ErrInvalidAmount
	}
	if entry, err := s.replayTopup(ctx, nil, req); err != nil || entry != nil {
		return entry, err
	}

	release, err := s.acquire(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *model.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, req.WalletID)
		if err != nil {
			return err
		}
		// another user's wallet reads as missing
		if wallet.UserID != req.UserID {
			return repository.ErrWalletNotFound
		}

		if entry, err := s.replayTopup(ctx, tx, req); err != nil || entry != nil {
			result = entry
			return err
		}

		if err := wallet.Credit(req.Amount, req.UserID); err != nil {
			return err
		}
		if err := s.walletRepo.Save(ctx, tx, wallet); err != nil {
			return err
		}

		entry := &model.Transaction{
			TransactionNo: idgen.GenerateTopupNo(),
			RequestID:     optionalString(req.RequestID),
			UserID:        req.UserID,
			WalletID:      wallet.ID,
			Kind:          model.TransactionKindTopup,
			CreditAmount:  decimal.Zero,
			PricePaid:     req.Amount,
			Status:        model.TransactionStatusCompleted,
			Reference:     req.Reference,
		}
		entry.Stamp(req.UserID)

		if err := s.record(ctx, tx, entry, model.EventLedgerTopup); err != nil {
			return err
		}
		result = entry
		return nil
	})

	if err != nil {
		if entry := s.replayAfterConflict(ctx, err, req.UserID, req.RequestID); entry != nil {
			if !sameTopup(entry, req) {
				return nil, ErrRequestIDReused
			}
			return entry, nil
		}
		s.logFailure("topup", err,
			slog.String("user_id", req.UserID.String()),
			slog.String("wallet_id", req.WalletID.String()),
			slog.String("amount", req.Amount.String()),
		)
		return nil, err
	}

	s.logger.Info("topup settled",
		slog.String("transaction_no", result.TransactionNo),
		slog.String("user_id", req.UserID.String()),
		slog.String("amount", req.Amount.String()),
	)
	return result, nil
}

// record appends the ledger entry and its outbox event inside tx.
func (s *SettlementService) record(ctx context.Context, tx *gorm.DB, entry *model.Transaction, eventType string) error {
	if err := s.transactionRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	msg, err := model.NewLedgerOutbox(s.topic, eventType, entry)
	if err != nil {
		return fmt.Errorf("build ledger event: %w", err)
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

func (s *SettlementService) replay(ctx context.Context, tx *gorm.DB, userID uuid.UUID, requestID string) (*model.Transaction, error) {
	if requestID == "" {
		return nil, nil
	}
	entry, err := s.transactionRepo.GetByRequestID(ctx, tx, userID, requestID)
	if err != nil {
		return nil, fmt.Errorf("lookup request id: %w", err)
	}
	return entry, nil
}

// replayPurchase returns the earlier result for req.RequestID. A key that was
// spent on a different operation is a conflict, never a replay.
func (s *SettlementService) replayPurchase(ctx context.Context, tx *gorm.DB, req *PurchaseRequest) (*PurchaseResult, error) {
	entry, err := s.replay(ctx, tx, req.UserID, req.RequestID)
	if err != nil || entry == nil {
		return nil, err
	}
	if !samePurchase(entry, req) {
		return nil, ErrRequestIDReused
	}
	return purchaseResultFrom(entry), nil
}

func (s *SettlementService) replayTopup(ctx context.Context, tx *gorm.DB, req *TopupRequest) (*model.Transaction, error) {
	entry, err := s.replay(ctx, tx, req.UserID, req.RequestID)
	if err != nil || entry == nil {
		return nil, err
	}
	if !sameTopup(entry, req) {
		return nil, ErrRequestIDReused
	}
	return entry, nil
}

func samePurchase(entry *model.Transaction, req *PurchaseRequest) bool {
	if entry.Kind != model.TransactionKindPurchase || entry.PurchaseMode != req.Mode {
		return false
	}
	if entry.ProjectID == nil || *entry.ProjectID != req.ProjectID {
		return false
	}
	requested := entry.RequestedBudget
	if req.Mode == model.PurchaseModeByCredit {
		requested = entry.RequestedCredits
	}
	return requested.Valid && requested.Decimal.Equal(req.Amount)
}

func sameTopup(entry *model.Transaction, req *TopupRequest) bool {
	return entry.Kind == model.TransactionKindTopup &&
		entry.WalletID == req.WalletID &&
		entry.PricePaid.Equal(req.Amount)
}

// replayAfterConflict covers two retries racing past the pre-checks: the
// loser hits the unique (user_id, request_id) index and gets the winner's entry.
func (s *SettlementService) replayAfterConflict(ctx context.Context, err error, userID uuid.UUID, requestID string) *model.Transaction {
	if requestID == "" || !isUniqueViolation(err) {
		return nil
	}
	entry, lookupErr := s.replay(ctx, nil, userID, requestID)
	if lookupErr != nil {
		return nil
	}
	return entry
}

// acquire takes the per-wallet Redis lock when Redis is configured.
func (s *SettlementService) acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	if s.redisClient == nil {
		return func() {}, nil
	}
	l := lock.NewWalletLock(s.redisClient, userID, s.lockTTL)
	if err := l.Lock(ctx, lockRetryInterval, lockMaxRetries); err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("acquire settlement lock: %w", err)
	}
	return func() {
		// the caller's ctx may already be cancelled; the lease must still be released
		if _, err := l.Unlock(context.Background()); err != nil {
			s.logger.Error("release settlement lock", slog.String("key", l.Key()), slog.Any("error", err))
		}
	}, nil
}

func (s *SettlementService) logFailure(op string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("op", op), slog.Any("error", err))
	if IsDomainError(err) {
		s.logger.Warn("settlement rejected", attrs...)
		return
	}
	s.logger.Error("settlement aborted", attrs...)
}

func purchaseResultFrom(entry *model.Transaction) *PurchaseResult {
	if entry == nil {
		return nil
	}
	remainder := decimal.Zero
	if entry.Remainder.Valid {
		remainder = entry.Remainder.Decimal
	}
	return &PurchaseResult{
		Transaction: entry,
		Credits:     entry.CreditAmount,
		Cost:        entry.PricePaid,
		Remainder:   remainder,
		Replayed:    true,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
