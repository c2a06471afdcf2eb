package commands

import (
	"database/sql"

	"github.com/teranos/ldschema/db"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/logger"
)

// openDatabase opens and migrates the database at path
func openDatabase(path string) (*sql.DB, error) {
	if path == "" {
		path = "ldschema.db"
	}
	database, err := db.OpenWithMigrations(path, logger.ComponentLogger("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}
