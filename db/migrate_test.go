package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		"schema_migrations",
		"content_schema",
		"schema_history",
		"review_queue",
		"validation_log",
		"ai_model_usage",
		"cache_entries",
		"settings",
	} {
		t.Run(table, func(t *testing.T) {
			var n int
			err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestMigrate(t *testing.T) {
	t.Run("records every migration", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))

		entries, err := migrations.ReadDir("sqlite/migrations")
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, len(entries), count)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")
	})

	t.Run("closed database fails with context", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
	})

	t.Run("conflicting table fails with stack", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		_, err = db.Exec("CREATE TABLE content_schema (x TEXT)")
		require.NoError(t, err)
		db.Close()

		db, err = OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)
		assert.Contains(t, err.Error(), "001_create_content_schema.sql")
		assert.Contains(t, fmt.Sprintf("%+v", err), "migrate.go")
	})
}

func TestLoadMigrations(t *testing.T) {
	all, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	assert.Equal(t, bootstrapVersion, all[0].version)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].version, all[i].version, "migrations sort by version")
	}
}
