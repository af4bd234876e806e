package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrStorage wraps every failure raised by the underlying database.
	ErrStorage = errors.New("storage failure")

	// ErrNoRows is returned by Row.Scan when the query selected nothing.
	ErrNoRows = sql.ErrNoRows
)

// NotFoundError is returned when a lookup by identity finds no row in the
// caller's scope.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}

	return e.Kind + " not found: " + e.ID
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

func wrap(err error, query string) error {
	if err == nil || errors.Is(err, ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %w (query: %s)", ErrStorage, err, abbreviate(query))
}

func abbreviate(query string) string {
	const limit = 80
	if len(query) <= limit {
		return query
	}
	return query[:limit] + "..."
}
