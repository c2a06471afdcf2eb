package db

import (
	"strings"

	"github.com/teranos/ldschema/errors"
)

// ErrDatabaseClosed marks work skipped because the connection went away,
// usually during shutdown while a bulk run is still in flight.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err is ErrDatabaseClosed or a driver
// error for a closed *sql.DB. database/sql does not export a sentinel for
// the latter, so its message is matched.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
