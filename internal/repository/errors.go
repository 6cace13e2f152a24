package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"clinic-frontdesk-server/internal/models"
)

// PostgreSQL SQLSTATE codes and MySQL error numbers that mean another
// transaction won a serialization point.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"

	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205
	mysqlDuplicateEntry  = 1062
)

// isRaceError reports whether err is a lost serialization race: a duplicate
// key on a sequence-backed unique index, a serialization failure or a deadlock.
func isRaceError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return true
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDeadlock, mysqlLockWaitTimeout, mysqlDuplicateEntry:
			return true
		}
	}
	return false
}

// translate maps driver errors to domain errors. Race errors keep the driver
// error in the chain for logging.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if isRaceError(err) {
		return fmt.Errorf("%w: %v", models.ErrRaceLost, err)
	}
	return err
}

// notFound converts gorm's missing-record error to a NotFoundError.
func notFound(err error, resource string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFound(resource, id)
	}
	return translate(err)
}
