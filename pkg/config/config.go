// Package config loads and validates the service configuration from
// bridgecall.yaml plus environment variables.
package config

import "os"

// Config is the fully resolved service configuration.
type Config struct {
	Telegram *TelegramConfig `yaml:"telegram"`
	Server   *ServerConfig   `yaml:"server"`
	Engine   *EngineConfig   `yaml:"engine"`
}

// TelegramConfig holds Bot API settings. Secrets stay in the environment;
// the YAML names the variables to read.
type TelegramConfig struct {
	// TokenEnv is the environment variable holding the bot token.
	TokenEnv string `yaml:"token_env"`
	// WebhookSecretEnv is the environment variable holding the secret path
	// segment Telegram is configured to POST updates to.
	WebhookSecretEnv string `yaml:"webhook_secret_env"`
	// APIBase overrides the Bot API endpoint; empty means the public API.
	APIBase string `yaml:"api_base,omitempty"`
}

// Token reads the bot token from the environment.
func (c *TelegramConfig) Token() string {
	return os.Getenv(c.TokenEnv)
}

// WebhookSecret reads the webhook secret from the environment.
func (c *TelegramConfig) WebhookSecret() string {
	return os.Getenv(c.WebhookSecretEnv)
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EngineConfig holds the matching-engine queue sizes.
type EngineConfig struct {
	// UpdateQueueDepth bounds the inbound update buffer between the webhook
	// handler and the scheduler loop.
	UpdateQueueDepth int `yaml:"update_queue_depth"`
	// WriteQueueDepth bounds how many committed batches the persistence
	// writer may have in flight.
	WriteQueueDepth int `yaml:"write_queue_depth"`
}
