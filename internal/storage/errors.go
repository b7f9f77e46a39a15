package storage

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a row expected to exist does not.
	ErrNotFound = errors.New("storage: not found")
	// ErrUniqueViolation wraps UNIQUE and PRIMARY KEY constraint failures.
	ErrUniqueViolation = errors.New("storage: unique constraint violation")
	// ErrForeignKeyViolation wraps FOREIGN KEY constraint failures.
	ErrForeignKeyViolation = errors.New("storage: foreign key constraint violation")
)

// classify tags SQLite constraint failures with one of the sentinel errors
// so callers can use errors.Is. Other errors are returned unchanged.
func classify(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", ErrForeignKeyViolation, err)
	}
	return err
}
