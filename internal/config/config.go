package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	Provider   ProviderConfig   `mapstructure:"provider" validate:"required"`
	KeyPool    KeyPoolConfig    `mapstructure:"keypool" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Enhance    EnhanceConfig    `mapstructure:"enhance" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFile, when set, receives a rotated copy of the JSON log stream.
	LogFile string `mapstructure:"log_file"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains the settings for the administrative API.
type AuthConfig struct {
	AdminJWTSecret       string `mapstructure:"admin_jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// ProviderConfig describes the upstream generation provider.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// FallbackAPIKey is used when no credential has been stored yet.
	FallbackAPIKey        string `mapstructure:"fallback_api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" validate:"required,gt=0"`
}

// RequestTimeout returns the per-request timeout for upstream calls.
func (c ProviderConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// KeyPoolConfig controls credit caching and the background refresh cadence.
type KeyPoolConfig struct {
	CacheTTLSeconds        int `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
	RefreshIntervalSeconds int `mapstructure:"refresh_interval_seconds" validate:"required,gt=0"`
}

// CacheTTL returns the credit cache freshness window.
func (c KeyPoolConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RefreshInterval returns the delay between background refresh passes.
func (c KeyPoolConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// GenerationConfig holds per-model policy and the polling cadence advertised
// to clients.
type GenerationConfig struct {
	PollIntervalSeconds int                    `mapstructure:"poll_interval_seconds" validate:"required,gt=0"`
	DefaultModel        string                 `mapstructure:"default_model" validate:"required"`
	Models              map[string]ModelConfig `mapstructure:"models" validate:"required,min=1,dive"`
}

// PollInterval returns the client polling cadence.
func (c GenerationConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ModelConfig is the policy attached to one upstream model name.
type ModelConfig struct {
	// Enhance marks models whose results go through the enhancement pipeline.
	Enhance            bool `mapstructure:"enhance"`
	CreditCost         int  `mapstructure:"credit_cost" validate:"gte=0"`
	PollTimeoutMinutes int  `mapstructure:"poll_timeout_minutes" validate:"required,gt=0"`
}

// PollTimeout returns the client-side wall-clock limit for this model.
func (m ModelConfig) PollTimeout() time.Duration {
	return time.Duration(m.PollTimeoutMinutes) * time.Minute
}

// EnhanceConfig configures the enhancement workers and artifact publishing.
type EnhanceConfig struct {
	WorkerCount    int    `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize      int    `mapstructure:"queue_size" validate:"required,gt=0"`
	FFmpegPath     string `mapstructure:"ffmpeg_path" validate:"required"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	// WorkDir is the parent of per-task temp directories; empty means os.TempDir.
	WorkDir       string `mapstructure:"work_dir"`
	PublicDir     string `mapstructure:"public_dir" validate:"required"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
	// MaxArtifactMB caps the size of a downloaded source artifact.
	MaxArtifactMB int `mapstructure:"max_artifact_mb" validate:"required,gt=0"`
}

// Timeout returns the upper bound for one enhancement run.
func (c EnhanceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxArtifactBytes returns MaxArtifactMB in bytes.
func (c EnhanceConfig) MaxArtifactBytes() int64 {
	return int64(c.MaxArtifactMB) << 20
}
