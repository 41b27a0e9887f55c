package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. GENRELAY_SERVER_PORT.
const EnvPrefix = "GENRELAY"

// Default model names shipped with the service.
const (
	ModelPremium = "veo3"
	ModelFast    = "veo3_fast"
)

// Load configuration from environment variables and optionally a config.yaml
// file in the working directory. A .env file, if present, is loaded into the
// process environment first. Environment variables take precedence over
// values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadAuth reads the same sources as Load but validates only the auth
// section, for tools that mint admin tokens without running the server.
func LoadAuth() (*AuthConfig, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg.Auth); err != nil {
		return nil, fmt.Errorf("auth config validation failed: %w", err)
	}

	return &cfg.Auth, nil
}

func read() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if _, ok := cfg.Generation.Models[cfg.Generation.DefaultModel]; !ok {
		return fmt.Errorf("config validation failed: default model %q is not configured",
			cfg.Generation.DefaultModel)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")

	// Keys without a usable default are still registered so AutomaticEnv
	// picks them up during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.admin_jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("provider.base_url", "https://api.kie.ai")
	v.SetDefault("provider.fallback_api_key", "")
	v.SetDefault("provider.request_timeout_seconds", 30)

	v.SetDefault("keypool.cache_ttl_seconds", 300)
	v.SetDefault("keypool.refresh_interval_seconds", 120)

	v.SetDefault("generation.poll_interval_seconds", 5)
	v.SetDefault("generation.default_model", ModelFast)
	v.SetDefault("generation.models", map[string]any{
		ModelPremium: map[string]any{
			"enhance":              true,
			"credit_cost":          400,
			"poll_timeout_minutes": 12,
		},
		ModelFast: map[string]any{
			"enhance":              false,
			"credit_cost":          80,
			"poll_timeout_minutes": 8,
		},
	})

	v.SetDefault("enhance.worker_count", 2)
	v.SetDefault("enhance.queue_size", 32)
	v.SetDefault("enhance.ffmpeg_path", "ffmpeg")
	v.SetDefault("enhance.timeout_seconds", 600)
	v.SetDefault("enhance.work_dir", "")
	v.SetDefault("enhance.public_dir", "./media")
	v.SetDefault("enhance.public_base_url", "http://localhost:8080/media")
	v.SetDefault("enhance.max_artifact_mb", 512)
}
