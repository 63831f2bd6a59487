package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrLockTimeout reports that a lock wait exceeded the session lock_timeout.
var ErrLockTimeout = errors.New("lock not available")

const (
	pgUniqueViolation  = "23505"
	pgUndefinedTable   = "42P01"
	pgLockNotAvailable = "55P03"
)

// MapError translates database errors to domain errors.
// It maps sql.ErrNoRows to notFoundErr and PostgreSQL unique violation (23505)
// to duplicateErr. Other errors are returned unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	if hasCode(err, pgUniqueViolation) {
		return duplicateErr
	}

	return err
}

// IsUndefinedTable reports whether err is PostgreSQL's undefined_table (42P01).
func IsUndefinedTable(err error) bool {
	return hasCode(err, pgUndefinedTable)
}

// IsLockNotAvailable reports whether err is PostgreSQL's lock_not_available (55P03).
func IsLockNotAvailable(err error) bool {
	return hasCode(err, pgLockNotAvailable)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
