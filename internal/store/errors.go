package store

import (
	"database/sql"
	"errors"
	"strings"
)

// isUniqueViolation reports whether err is a Postgres or SQLite unique
// constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// isForeignKeyViolation reports whether err is a referential integrity failure
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "violates foreign key constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
