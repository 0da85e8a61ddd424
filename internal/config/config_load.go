package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://gptcloud.arc53.com",
		},
		Storage: StorageConfig{
			Type:       "memory",
			Database:   "discord_bot_memory",
			Collection: "chat_histories",
		},
		Relay: RelayConfig{
			CommandPrefix: "!",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "goanswer",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	// A token supplied through the environment also enables the channel.
	// A file-configured token keeps the file's own enabled value.
	if v := os.Getenv("GOANSWER_DISCORD_TOKEN"); v != "" {
		c.Channels.Discord.Token = v
		c.Channels.Discord.Enabled = true
	}

	envStr("GOANSWER_API_KEY", &c.API.Key)
	envStr("GOANSWER_API_BASE", &c.API.BaseURL)

	envStr("GOANSWER_STORAGE_TYPE", &c.Storage.Type)
	envStr("GOANSWER_MONGODB_URI", &c.Storage.MongoURI)
	envStr("GOANSWER_MONGODB_DB", &c.Storage.Database)
	envStr("GOANSWER_MONGODB_COLLECTION", &c.Storage.Collection)

	envStr("GOANSWER_COMMAND_PREFIX", &c.Relay.CommandPrefix)

	envStr("GOANSWER_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GOANSWER_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GOANSWER_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("GOANSWER_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GOANSWER_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by the startup debug log to avoid leaking credentials.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Channels.Discord.Token)
	maskNonEmpty(&cp.API.Key)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
