// Package config loads application configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
//
//   - the default .env file in the working directory is loaded once per
//     process, silently skipped when absent;
//   - LoadEnv loads additional dotenv files on request;
//   - Load parses the environment into any struct through `env` field tags,
//     with optional key prefixes and an isolated variable map for tests;
//   - MustLoad panics on failure for configuration a process cannot run without.
//
// # Usage
//
//	type Config struct {
//		APIKey string `env:"PUSH_GCM_API_KEY,required"`
//		Debug  bool   `env:"PUSH_DEBUG" envDefault:"false"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// # Error Handling
//
// Parsing failures are joined with ErrParsingConfig, so callers can use
// errors.Is while still seeing the field-level cause.
package config
