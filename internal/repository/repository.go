package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrOptimisticLock  = errors.New("concurrent update detected, please retry")
)

// conn returns tx when the caller is inside a unit of work, db otherwise.
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
