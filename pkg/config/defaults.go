package config

// DefaultConfig returns the built-in configuration. User YAML is merged on
// top; anything left unset here must be provided explicitly.
func DefaultConfig() *Config {
	return &Config{
		Telegram: &TelegramConfig{
			TokenEnv:         "TG_TOKEN",
			WebhookSecretEnv: "TG_WEBHOOK_SECRET",
		},
		Server: &ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Engine: &EngineConfig{
			UpdateQueueDepth: 256,
			WriteQueueDepth:  64,
		},
	}
}
