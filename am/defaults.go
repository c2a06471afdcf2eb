package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "ldschema.db")

	// Completion service defaults
	v.SetDefault("completion.base_url", "https://api.openai.com/v1")
	v.SetDefault("completion.model", "gpt-4o-mini")
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.timeout_seconds", 60)
	v.SetDefault("completion.max_attempts", 3)     // transport retries: 2s, 4s, 8s
	v.SetDefault("completion.calls_per_minute", 20) // sliding window gate

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.namespace", "ldschema")

	v.SetDefault("repair.max_retries", 2) // three attempts in total
	v.SetDefault("review.threshold", 0.7)
	v.SetDefault("history.limit", 10)

	v.SetDefault("fetch.timeout_seconds", 5)
	v.SetDefault("fetch.requests_per_second", 2.0)

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("bulk.concurrency", 4)
	v.SetDefault("content.dir", "content")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("completion.api_key", "LDSCHEMA_COMPLETION_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("server.debug_token", "LDSCHEMA_SERVER_DEBUG_TOKEN")
	v.BindEnv("database.path", "LDSCHEMA_DATABASE_PATH")
	v.BindEnv("cache.redis_url", "LDSCHEMA_CACHE_REDIS_URL")
}

// CompletionTimeout returns the per-request timeout for the completion service
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.Completion.TimeoutSeconds) * time.Second
}

// CacheTTL returns the cache entry lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// FetchTimeout returns the live page fetch timeout
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ServerAddr returns the listen address for the HTTP API
func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Completion: {Model: %s}, Cache: {Backend: %s}}",
		c.Database.Path, c.Completion.Model, c.Cache.Backend)
}
