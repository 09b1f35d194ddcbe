package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrConflict               = errors.New("record already exists")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// Postgres SQLSTATE codes inspected by Classify.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Classify converts raw gorm/driver errors into the repository error
// taxonomy. Anything that is not a recognised data error is reported as
// ErrPersistenceUnavailable, wrapping the original error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistenceUnavailable) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
}

// IsUnavailable reports whether err classifies as a persistence outage.
func IsUnavailable(err error) bool {
	return errors.Is(Classify(err), ErrPersistenceUnavailable)
}
