// Package am holds ldschema configuration: the Config struct, defaults,
// viper loading from TOML files and LDSCHEMA_ environment variables,
// validation, and a file watcher for hot reload.
package am

// Config represents the ldschema configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Completion CompletionConfig `mapstructure:"completion" toml:"completion" json:"completion" yaml:"completion"`
	Cache      CacheConfig      `mapstructure:"cache" toml:"cache" json:"cache" yaml:"cache"`
	Repair     RepairConfig     `mapstructure:"repair" toml:"repair" json:"repair" yaml:"repair"`
	Review     ReviewConfig     `mapstructure:"review" toml:"review" json:"review" yaml:"review"`
	History    HistoryConfig    `mapstructure:"history" toml:"history" json:"history" yaml:"history"`
	Policy     PolicyConfig     `mapstructure:"policy" toml:"policy" json:"policy" yaml:"policy"`
	Fetch      FetchConfig      `mapstructure:"fetch" toml:"fetch" json:"fetch" yaml:"fetch"`
	Server     ServerConfig     `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Bulk       BulkConfig       `mapstructure:"bulk" toml:"bulk" json:"bulk" yaml:"bulk"`
	Content    ContentConfig    `mapstructure:"content" toml:"content" json:"content" yaml:"content"`
	Site       SiteConfig       `mapstructure:"site" toml:"site" json:"site" yaml:"site"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path" validate:"required"`
}

// CompletionConfig configures the chat-completions service used for repair and generation
type CompletionConfig struct {
	BaseURL        string  `mapstructure:"base_url" toml:"base_url" json:"base_url" yaml:"base_url" validate:"required,url"`
	APIKey         string  `mapstructure:"api_key" toml:"api_key" json:"-" yaml:"-"`
	Model          string  `mapstructure:"model" toml:"model" json:"model" yaml:"model" validate:"required"`
	Temperature    float64 `mapstructure:"temperature" toml:"temperature" json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=5,lte=120"`
	MaxAttempts    int     `mapstructure:"max_attempts" toml:"max_attempts" json:"max_attempts" yaml:"max_attempts" validate:"gte=1,lte=3"`
	CallsPerMinute int     `mapstructure:"calls_per_minute" toml:"calls_per_minute" json:"calls_per_minute" yaml:"calls_per_minute" validate:"gte=0"` // 0 = unlimited
}

// CacheConfig configures the result cache
type CacheConfig struct {
	Backend    string `mapstructure:"backend" toml:"backend" json:"backend" yaml:"backend" validate:"oneof=memory sqlite redis"`
	TTLSeconds int    `mapstructure:"ttl_seconds" toml:"ttl_seconds" json:"ttl_seconds" yaml:"ttl_seconds" validate:"gt=0"`
	RedisURL   string `mapstructure:"redis_url" toml:"redis_url" json:"redis_url" yaml:"redis_url"`
	Namespace  string `mapstructure:"namespace" toml:"namespace" json:"namespace" yaml:"namespace" validate:"required"`
}

// RepairConfig configures the validation-convergence loop
type RepairConfig struct {
	MaxRetries int `mapstructure:"max_retries" toml:"max_retries" json:"max_retries" yaml:"max_retries" validate:"gte=0,lte=5"`
}

// ReviewConfig configures confidence gating
type ReviewConfig struct {
	Threshold float64 `mapstructure:"threshold" toml:"threshold" json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
}

// HistoryConfig configures schema version history
type HistoryConfig struct {
	Limit int `mapstructure:"limit" toml:"limit" json:"limit" yaml:"limit" validate:"gte=1"`
}

// PolicyConfig points at the optional type blocklist file
type PolicyConfig struct {
	BlocklistPath string `mapstructure:"blocklist_path" toml:"blocklist_path" json:"blocklist_path" yaml:"blocklist_path"` // empty = built-in list
}

// FetchConfig configures live page inspection
type FetchConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds" validate:"gt=0"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"` // 0 = unlimited
	AllowPrivateIPs   bool    `mapstructure:"allow_private_ips" toml:"allow_private_ips" json:"allow_private_ips" yaml:"allow_private_ips"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port       int    `mapstructure:"port" toml:"port" json:"port" yaml:"port" validate:"gt=0,lte=65535"`
	DebugToken string `mapstructure:"debug_token" toml:"debug_token" json:"-" yaml:"-"` // empty = debug view disabled
}

// BulkConfig configures bulk repair runs
type BulkConfig struct {
	Concurrency int `mapstructure:"concurrency" toml:"concurrency" json:"concurrency" yaml:"concurrency" validate:"gte=1,lte=32"`
}

// ContentConfig points at the directory-backed content source
type ContentConfig struct {
	Dir string `mapstructure:"dir" toml:"dir" json:"dir" yaml:"dir"`
}

// SiteConfig names the organization that publishes the content; the
// generation prompt uses it as default publisher, provider and hiring org
type SiteConfig struct {
	Name string `mapstructure:"name" toml:"name" json:"name" yaml:"name"`
	URL  string `mapstructure:"url" toml:"url" json:"url" yaml:"url" validate:"omitempty,url"`
}

// Server port constants
const (
	DefaultServerPort = 8077
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
