package service

import (
	"errors"
	"fmt"

	"carbonledger/internal/infrastructure/lock"
	"carbonledger/internal/model"
	"carbonledger/internal/repository"
)

var (
	ErrInvalidMode        = errors.New("purchase mode must be BY_CREDIT or BY_BUDGET")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrForbidden          = errors.New("not allowed to modify this resource")
)

// ValidationError rejects a malformed create request before it reaches storage.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError is a storage integrity violation translated for the client.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ErrRequestIDReused rejects an idempotency key that already settled a
// different operation.
var ErrRequestIDReused = &ConflictError{Message: "request_id already used for a different operation"}

// IsDomainError reports whether err is an expected business outcome rather
// than an infrastructure fault.
func IsDomainError(err error) bool {
	var ve *ValidationError
	var ce *ConflictError
	switch {
	case errors.As(err, &ve), errors.As(err, &ce):
		return true
	}
	for _, target := range []error{
		ErrInvalidMode,
		ErrInvalidCredentials,
		ErrForbidden,
		model.ErrInvalidAmount,
		model.ErrInsufficientBalance,
		model.ErrInsufficientCredits,
		repository.ErrUserNotFound,
		repository.ErrWalletNotFound,
		repository.ErrProjectNotFound,
		repository.ErrOptimisticLock,
		lock.ErrLockFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
