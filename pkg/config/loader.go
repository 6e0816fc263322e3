package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const configFileName = "bridgecall.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load bridgecall.yaml from configDir (optional; defaults apply)
//  2. Expand environment variables
//  3. Merge user YAML over built-in defaults
//  4. Validate the result
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"listen_host", cfg.Server.Host,
		"listen_port", cfg.Server.Port)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := DefaultConfig()

	user, err := loadYAML(filepath.Join(configDir, configFileName))
	if err != nil {
		return nil, NewLoadError(configFileName, err)
	}
	if user == nil {
		// No config file; run on defaults plus environment.
		return cfg, nil
	}

	// User-provided values override defaults, unset values fall through.
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML reads and parses the config file. A missing file is not an
// error: the defaults are a complete configuration.
func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No configuration file found, using defaults", "path", path)
			return nil, nil
		}
		return nil, err
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Telegram.TokenEnv == "" {
		return NewValidationError("telegram", "token_env", ErrMissingRequiredField)
	}
	if cfg.Telegram.WebhookSecretEnv == "" {
		return NewValidationError("telegram", "webhook_secret_env", ErrMissingRequiredField)
	}
	if cfg.Telegram.Token() == "" {
		return NewValidationError("telegram", "token_env",
			fmt.Errorf("%w: environment variable %s is empty", ErrInvalidValue, cfg.Telegram.TokenEnv))
	}
	if cfg.Telegram.WebhookSecret() == "" {
		return NewValidationError("telegram", "webhook_secret_env",
			fmt.Errorf("%w: environment variable %s is empty", ErrInvalidValue, cfg.Telegram.WebhookSecretEnv))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return NewValidationError("server", "port",
			fmt.Errorf("%w: %d", ErrInvalidValue, cfg.Server.Port))
	}
	if cfg.Engine.UpdateQueueDepth <= 0 {
		return NewValidationError("engine", "update_queue_depth",
			fmt.Errorf("%w: %d", ErrInvalidValue, cfg.Engine.UpdateQueueDepth))
	}
	if cfg.Engine.WriteQueueDepth <= 0 {
		return NewValidationError("engine", "write_queue_depth",
			fmt.Errorf("%w: %d", ErrInvalidValue, cfg.Engine.WriteQueueDepth))
	}
	return nil
}
