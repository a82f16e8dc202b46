package db

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes the application reacts to.
const (
	codeUniqueViolation  pq.ErrorCode = "23505"
	codeLockNotAvailable pq.ErrorCode = "55P03"
)

// IsUniqueViolation reports whether err is a unique constraint violation. When constraint
// is non-empty the violated constraint name must match too.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsLockTimeout reports whether err was raised because lock_timeout expired.
func IsLockTimeout(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeLockNotAvailable
}
