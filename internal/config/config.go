package config

import "sync"

// Config is the root configuration for the GoAnswer relay.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	API       APIConfig       `json:"api"`
	Storage   StorageConfig   `json:"storage"`
	Relay     RelayConfig     `json:"relay"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// APIConfig configures the upstream answer service.
type APIConfig struct {
	BaseURL string `json:"base_url,omitempty"` // answer service root (default https://gptcloud.arc53.com)
	Key     string `json:"api_key"`
}

// StorageConfig selects the conversation history backend.
// MongoURI is NEVER read from config.json (it is a secret DSN) and comes
// only from env GOANSWER_MONGODB_URI.
type StorageConfig struct {
	Type       string `json:"type,omitempty"`       // "memory" (default) or "mongodb"
	MongoURI   string `json:"-"`                    // from env GOANSWER_MONGODB_URI only
	Database   string `json:"database,omitempty"`   // default "discord_bot_memory"
	Collection string `json:"collection,omitempty"` // default "chat_histories"
}

// RelayConfig tunes message handling.
type RelayConfig struct {
	CommandPrefix string `json:"command_prefix,omitempty"` // default "!"
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport (set true for local collectors)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "goanswer")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}
