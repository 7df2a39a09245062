package sqlite

import (
	"database/sql"
	"errors"
	"strings"
)

// isUniqueViolation reports whether err is a unique constraint failure.
// modernc.org/sqlite surfaces constraint errors as strings, so this
// matches on the message rather than an error code. Both the username
// index and the link id indexes funnel through here.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// isNoRows reports whether err means the query matched nothing.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
