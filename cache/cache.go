// Package cache stores completion and inspection results under content-hash
// keys with a TTL. Every key carries a namespace and a version number;
// clearing the cache bumps the version so old entries are never read again
// and simply age out.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ldschema/errors"
)

// Store is a TTL key-value backend with a monotonically increasing version counter
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Version(ctx context.Context) (int64, error)
	BumpVersion(ctx context.Context) (int64, error)
}

// Observer is notified of hits and misses
type Observer interface {
	CacheLookup(hit bool)
}

// Cache namespaces and versions keys on top of a Store
type Cache struct {
	store     Store
	namespace string
	ttl       time.Duration
	observer  Observer
	logger    *zap.SugaredLogger
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger (nop by default)
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver reports lookups, typically to metrics
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New wraps store. A non-positive ttl falls back to one hour.
func New(store Store, namespace string, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hash returns the hex SHA-256 of parts joined with a NUL separator
func Hash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) fullKey(ctx context.Context, key string) (string, error) {
	v, err := c.store.Version(ctx)
	if err != nil {
		return "", errors.Wrap(err, "read cache version")
	}
	return fmt.Sprintf("%s:v%d:%s", c.namespace, v, key), nil
}

// Get returns the raw value for key under the current version
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full, err := c.fullKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	val, ok, err := c.store.Get(ctx, full)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cache get %s", key)
	}
	if c.observer != nil {
		c.observer.CacheLookup(ok)
	}
	c.logger.Debugw("Cache lookup", "key", full, "hit", ok)
	return val, ok, nil
}

// Set stores value under key with the cache TTL
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	full, err := c.fullKey(ctx, key)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, full, value, c.ttl); err != nil {
		return errors.Wrapf(err, "cache set %s", key)
	}
	return nil
}

// GetJSON decodes a cached value into dst. A miss leaves dst untouched.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	val, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, errors.Wrapf(err, "decode cached %s", key)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s for cache", key)
	}
	return c.Set(ctx, key, data)
}

// Clear invalidates every entry by bumping the version and returns the new version
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	v, err := c.store.BumpVersion(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "bump cache version")
	}
	c.logger.Infow("Cache cleared", "namespace", c.namespace, "version", v)
	return v, nil
}

// Version returns the current key version
func (c *Cache) Version(ctx context.Context) (int64, error) {
	return c.store.Version(ctx)
}

// TTL returns the entry lifetime
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
