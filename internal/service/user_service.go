package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"carbonledger/internal/auth"
	"carbonledger/internal/model"
	"carbonledger/internal/repository"

	"gorm.io/gorm"
)

type UserService struct {
	db         *gorm.DB
	tokens     *auth.TokenManager
	userRepo   *repository.UserRepository
	walletRepo *repository.WalletRepository
}

func NewUserService(db *gorm.DB, tokens *auth.TokenManager) *UserService {
	return &UserService{
		db:         db,
		tokens:     tokens,
		userRepo:   repository.NewUserRepository(db),
		walletRepo: repository.NewWalletRepository(db),
	}
}

type CreateUserInput struct {
	Username string
	Email    string
	Password string
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (in *CreateUserInput) validate() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if n := len(in.Username); n < 3 || n > 50 {
		return &ValidationError{Field: "username", Message: "must be between 3 and 50 characters"}
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	if len(in.Password) < 8 {
		return &ValidationError{Field: "password", Message: "must be at least 8 characters"}
	}
	return nil
}

// Create registers a user and opens their empty wallet in one transaction.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, *model.Wallet, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &model.User{Username: in.Username, Email: in.Email, Password: hash}
	var wallet *model.Wallet

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.Create(ctx, tx, user); err != nil {
			return err
		}
		wallet = model.NewWallet(user.ID)
		return s.walletRepo.Create(ctx, tx, wallet)
	})
	if err != nil {
		return nil, nil, translateIntegrityError(err)
	}
	return user, wallet, nil
}

// SignIn exchanges credentials for a bearer token. Unknown, inactive and
// wrong-password attempts are indistinguishable to the caller.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !auth.CheckPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	signed, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}
