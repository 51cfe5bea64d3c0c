package db

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrConnection is returned when the database cannot be reached.
	ErrConnection = errors.New("database connection unavailable")

	// ErrInvalidArgument is returned when required fields are missing or malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorage is returned for failures reported by the store itself.
	ErrStorage = errors.New("storage error")

	// ErrDuplicateName is a storage error raised when a unique name or login is already taken.
	ErrDuplicateName = fmt.Errorf("%w: name already exists", ErrStorage)

	// ErrUnknownUser is a storage error raised when a group references a user that does not exist.
	ErrUnknownUser = fmt.Errorf("%w: referenced user does not exist", ErrStorage)

	// ErrGroupNotFound is returned by Update when the group id has no row.
	ErrGroupNotFound = errors.New("group not found")
)

// invalidArgument builds an ErrInvalidArgument with a description.
func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// classifyError maps driver errors onto the package error taxonomy.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return fmt.Errorf("%s: %w: %w", op, ErrDuplicateName, err)
		case "foreign_key_violation":
			return fmt.Errorf("%s: %w: %w", op, ErrUnknownUser, err)
		}
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, ErrConnection) {
		return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
	}

	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
