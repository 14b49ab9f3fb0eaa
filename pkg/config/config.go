// Package config loads and validates the ChunkFlow server configuration
// from file, environment and defaults, and builds the stores the server
// runs on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SajanLamichhane/chunkflow/pkg/api"
	s3blob "github.com/SajanLamichhane/chunkflow/pkg/store/blob/s3"
)

// Config represents the ChunkFlow server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CHUNKFLOW_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains the upload HTTP server configuration
	Server api.Config `mapstructure:"server" yaml:"server"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Token configures upload token signing.
	// Environment variable override: CHUNKFLOW_TOKEN_SECRET
	Token TokenConfig `mapstructure:"token" yaml:"token"`

	// BlobStore configures where chunk bytes live
	BlobStore BlobStoreConfig `mapstructure:"blob_store" yaml:"blob_store"`

	// ManifestStore configures where sessions and file manifests live
	ManifestStore ManifestStoreConfig `mapstructure:"manifest_store" yaml:"manifest_store"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead) and
// /metrics is not mounted.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// TokenConfig configures upload token signing.
type TokenConfig struct {
	// Secret is the HMAC signing key for upload tokens.
	// Required; must be at least 32 characters.
	// Override: CHUNKFLOW_TOKEN_SECRET
	Secret string `mapstructure:"secret" validate:"required,min=32" yaml:"secret"`

	// Issuer is the token issuer claim.
	// Default: "chunkflow"
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// Duration is the upload token lifetime. An interrupted upload must
	// resume within this window.
	// Default: 24h
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
}

// BlobStoreConfig selects and configures the chunk blob store backend.
type BlobStoreConfig struct {
	// Type selects the backend.
	// Valid values: memory, fs, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory fs s3" yaml:"type"`

	// Path is the root directory for the fs backend.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// S3 configures the s3 backend.
	S3 s3blob.Config `mapstructure:"s3" yaml:"s3,omitempty"`
}

// ManifestStoreConfig selects and configures the session and manifest
// store backend.
type ManifestStoreConfig struct {
	// Type selects the backend.
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type"`

	// Path is the database directory for the badger backend.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		bindEnvOverrides(v, cfg)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  chunkflow init\n\n"+
				"Or specify a custom config file:\n"+
				"  chunkflow <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  chunkflow init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file carries the token signing secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config
// file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use CHUNKFLOW_ prefix and underscores
	// Example: CHUNKFLOW_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CHUNKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvOverrides applies environment overrides that matter even when
// no config file exists, notably the token secret.
func bindEnvOverrides(v *viper.Viper, cfg *Config) {
	if secret := v.GetString("token.secret"); secret != "" {
		cfg.Token.Secret = secret
	}
	if level := v.GetString("logging.level"); level != "" {
		cfg.Logging.Level = strings.ToUpper(level)
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// the current directory if home cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "chunkflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "chunkflow")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for
// the init command).
func GetConfigDir() string {
	return getConfigDir()
}
