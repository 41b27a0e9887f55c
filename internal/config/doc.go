// Package config loads and validates service configuration from environment
// variables (GENRELAY_ prefix), an optional config.yaml and an optional .env
// file. It provides type-safe access to settings needed by the key pool, the
// generation service and the enhancement workers while keeping configuration
// details separate from business logic.
package config
