package service

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const genericIntegrityMessage = "Integrity error. Possibly duplicate data."

// Each entry lists the MySQL index name and the SQLite column reference of
// one unique constraint.
var uniqueConstraintMessages = []struct {
	patterns []string
	message  string
}{
	{[]string{"idx_users_email", "users.email"}, "A user with this email already exists."},
	{[]string{"idx_users_username", "users.username"}, "This username is already taken."},
	{[]string{"idx_projects_name", "projects.name"}, "A project with this name already exists."},
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translateIntegrityError turns a unique violation into a ConflictError with
// a client facing message. Any other error is returned unchanged.
func translateIntegrityError(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	text := err.Error()
	for _, entry := range uniqueConstraintMessages {
		for _, p := range entry.patterns {
			if strings.Contains(text, p) {
				return &ConflictError{Message: entry.message}
			}
		}
	}
	return &ConflictError{Message: genericIntegrityMessage}
}
