package am

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ldschema/errors"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "ldschema.db", cfg.Database.Path)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Completion.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.Equal(t, 0.7, cfg.Completion.Temperature)
	assert.Equal(t, 60*time.Second, cfg.CompletionTimeout())
	assert.Equal(t, 3, cfg.Completion.MaxAttempts)
	assert.Equal(t, 2, cfg.Repair.MaxRetries)
	assert.Equal(t, 0.7, cfg.Review.Threshold)
	assert.Equal(t, 10, cfg.History.Limit)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout())
	assert.Equal(t, ":8077", cfg.ServerAddr())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[completion]
model = "gpt-4o"
max_attempts = 2

[review]
threshold = 0.8
`), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	assert.Equal(t, 2, cfg.Completion.MaxAttempts)
	assert.Equal(t, 0.8, cfg.Review.Threshold)
	// untouched keys keep defaults
	assert.Equal(t, 10, cfg.History.Limit)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := LoadWithViper(v)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "too many transport attempts",
			mutate:  func(c *Config) { c.Completion.MaxAttempts = 4 },
			wantErr: "completion.max_attempts",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Review.Threshold = 1.5 },
			wantErr: "review.threshold",
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "cache.backend",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: "cache.redis_url",
		},
		{
			name: "redis with url",
			mutate: func(c *Config) {
				c.Cache.Backend = "redis"
				c.Cache.RedisURL = "redis://localhost:6379/0"
			},
		},
		{
			name:    "blocklist must be toml",
			mutate:  func(c *Config) { c.Policy.BlocklistPath = "blocked.json" },
			wantErr: "policy.blocklist_path",
		},
		{
			name:    "zero history limit",
			mutate:  func(c *Config) { c.History.Limit = 0 },
			wantErr: "history.limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
		})
	}
}

func TestFileWatcherFiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.toml")
	require.NoError(t, os.WriteFile(path, []byte("types = []\n"), DefaultFilePermissions))

	fw, err := NewFileWatcher(path)
	require.NoError(t, err)
	fw.SetDebounce(20 * time.Millisecond)

	var fired atomic.Int32
	fw.OnChange(func(string) error {
		fired.Add(1)
		return nil
	})
	fw.Start()
	defer fw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("types = [\"Hotel\"]\n"), DefaultFilePermissions))

	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.toml")
	require.NoError(t, os.WriteFile(path, nil, DefaultFilePermissions))

	fw, err := NewFileWatcher(path)
	require.NoError(t, err)
	fw.SetDebounce(10 * time.Millisecond)

	var fired atomic.Int32
	fw.OnChange(func(string) error {
		fired.Add(1)
		return nil
	})
	fw.Start()
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), DefaultFilePermissions))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
