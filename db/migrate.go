package db

import (
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/ldschema/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationDir = "sqlite/migrations"

// migration is one embedded NNN_name.sql file
type migration struct {
	version string
	file    string
}

// bootstrapVersion creates schema_migrations itself and cannot be looked up first
const bootstrapVersion = "000"

func loadMigrations() ([]migration, error) {
	files, err := fs.Glob(migrations, migrationDir+"/*.sql")
	if err != nil {
		return nil, errors.Wrap(err, "list migrations")
	}
	sort.Strings(files)

	out := make([]migration, 0, len(files))
	for _, f := range files {
		name := strings.TrimPrefix(f, migrationDir+"/")
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s is not named NNN_description.sql", name)
		}
		out = append(out, migration{version: version, file: name})
	}
	return out, nil
}

// appliedVersions returns the recorded versions, or an empty set on a fresh
// database where schema_migrations does not exist yet
func appliedVersions(conn *sql.DB) (map[string]bool, error) {
	var n int
	if err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'",
	).Scan(&n); err != nil {
		return nil, errors.Wrap(err, "look up schema_migrations")
	}
	applied := map[string]bool{}
	if n == 0 {
		return applied, nil
	}

	rows, err := conn.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction. logger may be nil.
func Migrate(conn *sql.DB, logger *zap.SugaredLogger) error {
	all, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(conn)
	if err != nil {
		return err
	}
	if len(applied) == 0 && len(all) > 0 && all[0].version != bootstrapVersion {
		return errors.Newf("first migration must be %s, got %s", bootstrapVersion, all[0].file)
	}

	pending := 0
	for _, m := range all {
		if applied[m.version] {
			continue
		}
		if logger != nil {
			logger.Infow("Applying migration", "migration", m.file, "version", m.version)
		}
		if err := apply(conn, m); err != nil {
			return err
		}
		pending++
	}

	if logger != nil {
		logger.Infow("Migrations complete", "applied", pending, "total_migrations", len(all))
	}
	return nil
}

func apply(conn *sql.DB, m migration) error {
	body, err := migrations.ReadFile(migrationDir + "/" + m.file)
	if err != nil {
		return errors.Wrapf(err, "read %s", m.file)
	}

	tx, err := conn.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.file)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", m.file)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return errors.Wrapf(err, "record %s", m.file)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.file)
}
