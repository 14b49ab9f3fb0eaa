package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(cfg)
	applyTokenDefaults(&cfg.Token)
	applyBlobStoreDefaults(&cfg.BlobStore)
	applyManifestStoreDefaults(&cfg.ManifestStore)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets upload server defaults.
func applyServerDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 60 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 5 * time.Second
	}
}

// applyTokenDefaults sets token defaults.
// Secret has no default - it is required and must be configured.
func applyTokenDefaults(cfg *TokenConfig) {
	if cfg.Issuer == "" {
		cfg.Issuer = "chunkflow"
	}
	if cfg.Duration == 0 {
		cfg.Duration = 24 * time.Hour
	}
}

// applyBlobStoreDefaults sets blob store defaults.
func applyBlobStoreDefaults(cfg *BlobStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "fs"
	}
	if cfg.Type == "fs" && cfg.Path == "" {
		cfg.Path = "/var/lib/chunkflow/blobs"
	}
}

// applyManifestStoreDefaults sets manifest store defaults.
func applyManifestStoreDefaults(cfg *ManifestStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	if cfg.Type == "badger" && cfg.Path == "" {
		cfg.Path = "/var/lib/chunkflow/manifests"
	}
}

// GetDefaultConfig returns a Config struct with all default values
// applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
