package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults match the original local-first setup: an LM Studio style
// endpoint on localhost that requires no real API key.
const (
	DefaultAPIEndpoint  = "http://localhost:1234/v1"
	DefaultAPIKey       = "notrequired"
	DefaultModel        = "qwen/qwen3-8b"
	DefaultTemperature  = 0.7
	DefaultPollInterval = 15
)

// Load reads configuration from <home>/.sokq/.env and SOKQ_-prefixed
// environment variables, applies defaults, and validates the result.
// Environment variables take precedence over the .env file.
func Load() (*Config, error) {
	home, err := homeDir()
	if err != nil {
		return nil, err
	}

	// The .env file populates the process environment so viper's env
	// binding picks its values up; real environment variables win
	// because godotenv never overwrites existing ones.
	envFile := filepath.Join(home, ".env")
	if _, statErr := os.Stat(envFile); statErr == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetDefault("daemon.poll_interval_seconds", DefaultPollInterval)
	v.SetDefault("daemon.log_level", "info")
	v.SetDefault("daemon.http_addr", "")
	v.SetDefault("queue.database_path", filepath.Join(home, "sokq.db"))
	v.SetDefault("queue.default_max_attempts", 3)
	v.SetDefault("queue.backoff_base_seconds", 2)
	v.SetDefault("queue.backoff_cap_seconds", 300)
	v.SetDefault("queue.claim_ttl_minutes", 30)
	v.SetDefault("queue.retention_days", 0)
	v.SetDefault("llm.api_endpoint", DefaultAPIEndpoint)
	v.SetDefault("llm.api_key", DefaultAPIKey)
	v.SetDefault("llm.model", DefaultModel)
	v.SetDefault("llm.temperature", DefaultTemperature)
	v.SetDefault("llm.max_tokens", 20000)

	v.SetEnvPrefix("SOKQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	cfg.Home = home

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}

	return &cfg, nil
}

// homeDir resolves the per-user configuration directory, honoring the
// SOKQ_HOME override.
func homeDir() (string, error) {
	if dir := os.Getenv("SOKQ_HOME"); dir != "" {
		return dir, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home directory: %w", err)
	}
	return filepath.Join(userHome, ".sokq"), nil
}

// PIDFilePath returns the daemon process marker location.
func (c *Config) PIDFilePath() string {
	return filepath.Join(c.Home, "daemon.pid")
}

// DaemonLogPath returns the file the detached daemon writes its logs to.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Home, "logs", "daemon.log")
}
