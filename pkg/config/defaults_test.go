package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format text, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output stdout, got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected default shutdown timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Token.Issuer != "chunkflow" {
		t.Errorf("Expected default token issuer chunkflow, got %q", cfg.Token.Issuer)
	}
	if cfg.Token.Duration != 24*time.Hour {
		t.Errorf("Expected default token duration 24h, got %v", cfg.Token.Duration)
	}
	if cfg.BlobStore.Type != "fs" {
		t.Errorf("Expected default blob store type fs, got %q", cfg.BlobStore.Type)
	}
	if cfg.BlobStore.Path == "" {
		t.Error("Expected default fs blob store path to be set")
	}
	if cfg.ManifestStore.Type != "badger" {
		t.Errorf("Expected default manifest store type badger, got %q", cfg.ManifestStore.Type)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Server.Port = 9999
	cfg.BlobStore.Type = "memory"
	cfg.ManifestStore.Type = "memory"

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected explicit port preserved, got %d", cfg.Server.Port)
	}
	if cfg.BlobStore.Path != "" {
		t.Errorf("Expected no path default for memory blob store, got %q", cfg.BlobStore.Path)
	}
	if cfg.ManifestStore.Path != "" {
		t.Errorf("Expected no path default for memory manifest store, got %q", cfg.ManifestStore.Path)
	}
}

func TestGetDefaultConfig_FailsValidationWithoutSecret(t *testing.T) {
	// The token secret has no default; operators must configure it.
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected default config to fail validation without a token secret")
	}
}
