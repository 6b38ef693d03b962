// Package config loads and validates application configuration from
// the per-user configuration directory and SOKQ_-prefixed environment
// variables.
package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Daemon DaemonConfig `mapstructure:"daemon" validate:"required"`
	Queue  QueueConfig  `mapstructure:"queue" validate:"required"`
	LLM    LLMConfig    `mapstructure:"llm" validate:"required"`

	// Home is the per-user configuration directory holding the
	// database, pidfile, and logs. Derived, not user-set.
	Home string `mapstructure:"-"`
}

// DaemonConfig contains daemon loop and lifecycle settings.
type DaemonConfig struct {
	// PollIntervalSeconds is how long the loop sleeps when the queue is
	// drained. Lower values reduce dequeue latency at the cost of more
	// store polling; this is the documented latency/efficiency knob.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"required,gte=1"`

	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// HTTPAddr, when non-empty, enables the loopback status endpoint
	// (e.g. "127.0.0.1:4673").
	HTTPAddr string `mapstructure:"http_addr"`
}

// QueueConfig contains persistence and retry policy settings.
type QueueConfig struct {
	// DatabasePath overrides the default <home>/sokq.db location.
	DatabasePath string `mapstructure:"database_path"`

	DefaultMaxAttempts int `mapstructure:"default_max_attempts" validate:"required,gte=1"`

	// BackoffBaseSeconds and BackoffCapSeconds parameterize the retry
	// delay: min(base * 2^attempts, cap), with jitter.
	BackoffBaseSeconds int `mapstructure:"backoff_base_seconds" validate:"required,gte=1"`
	BackoffCapSeconds  int `mapstructure:"backoff_cap_seconds"  validate:"required,gte=1"`

	// ClaimTTLMinutes bounds how long a claim is honored before crash
	// recovery treats the task as abandoned.
	ClaimTTLMinutes int `mapstructure:"claim_ttl_minutes" validate:"required,gte=1"`

	// RetentionDays, when > 0, lets the daemon delete terminal tasks
	// older than the window at startup. 0 keeps audit history forever.
	RetentionDays int `mapstructure:"retention_days" validate:"gte=0"`
}

// LLMConfig contains settings for the OpenAI-compatible endpoint the
// task handlers call.
type LLMConfig struct {
	APIEndpoint string  `mapstructure:"api_endpoint" validate:"required,url"`
	APIKey      string  `mapstructure:"api_key" validate:"required"`
	Model       string  `mapstructure:"model" validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `mapstructure:"max_tokens" validate:"gte=0"`
}

// PollInterval returns the poll interval as a duration.
func (c DaemonConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// BackoffBase returns the backoff base as a duration.
func (c QueueConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the backoff cap as a duration.
func (c QueueConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

// ClaimTTL returns the claim time-to-live as a duration.
func (c QueueConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLMinutes) * time.Minute
}
