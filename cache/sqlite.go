package cache

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/teranos/ldschema/errors"
)

const versionSettingKey = "cache_version"

// SQLiteStore persists entries in the cache_entries table and the version in settings
type SQLiteStore struct {
	db      *sql.DB
	timeNow func() time.Time
}

// NewSQLiteStore uses a migrated database
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, timeNow: time.Now}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, s.timeNow().Unix(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "query cache entry")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expires := s.timeNow().Add(ttl).Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return errors.Wrap(err, "upsert cache entry")
	}
	return nil
}

func (s *SQLiteStore) Version(ctx context.Context) (int64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, versionSettingKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "query cache version")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "cache version %q is not an integer", raw)
	}
	return v, nil
}

func (s *SQLiteStore) BumpVersion(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin version bump")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, '1')
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)`,
		versionSettingKey,
	)
	if err != nil {
		return 0, errors.Wrap(err, "bump cache version")
	}

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, versionSettingKey).Scan(&raw); err != nil {
		return 0, errors.Wrap(err, "read bumped version")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit version bump")
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Purge deletes expired rows and returns how many were removed
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, s.timeNow().Unix())
	if err != nil {
		return 0, errors.Wrap(err, "purge cache entries")
	}
	return res.RowsAffected()
}
