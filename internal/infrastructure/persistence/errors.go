package persistence

import (
	"database/sql/driver"
	"errors"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes the repositories react to
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgAdminShutdown        = "57P01"
	pgConnectionClass      = "08"
)

// classifyError maps store errors onto domain errors.
// Aborts that guarantee nothing was committed become clean TransientErrors;
// lost connections become TransientErrors whose outcome is unknown.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}

	var domainErr *shared.DomainError
	var transient *shared.TransientError
	if errors.As(err, &domainErr) || errors.As(err, &transient) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected, pgErr.Code == pgLockNotAvailable:
			return shared.NewTransientError(op, err, true)
		case pgErr.Code == pgUniqueViolation:
			return shared.NewDomainError("ALREADY_EXISTS", "Resource already exists")
		case pgErr.Code == pgCheckViolation:
			return shared.NewDomainError("INVALID_STATE", "Stock quantities violate a store constraint")
		case pgErr.Code == pgAdminShutdown, len(pgErr.Code) == 5 && pgErr.Code[:2] == pgConnectionClass:
			return shared.NewTransientError(op, err, false)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return shared.NewTransientError(op, err, true)
		case sqlite3.ErrConstraint:
			if liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return shared.NewDomainError("ALREADY_EXISTS", "Resource already exists")
			}
			return shared.NewDomainError("INVALID_STATE", "Stock quantities violate a store constraint")
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) {
		return shared.NewTransientError(op, err, false)
	}
	return err
}

// IsExpectedAbort reports whether err is a retryable clean abort, for log level selection
func IsExpectedAbort(err error) bool {
	return shared.IsCleanAbort(classifyError("", err))
}
