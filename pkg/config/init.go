package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfigTemplate is the commented configuration file written by
// `chunkflow init`. %s is replaced with a generated token secret.
const sampleConfigTemplate = `# ChunkFlow Configuration File
#
# All values can be overridden with environment variables:
#   CHUNKFLOW_<SECTION>_<KEY> (use underscores for nested keys)
#   Example: CHUNKFLOW_LOGGING_LEVEL=DEBUG

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Output format: text, json
  format: text
  # Destination: stdout, stderr, or a file path
  output: stdout

server:
  # HTTP port for the upload endpoints
  port: 8080
  read_timeout: 60s
  write_timeout: 120s
  idle_timeout: 60s
  # Maximum time to wait for graceful shutdown
  shutdown_timeout: 5s

metrics:
  # Expose Prometheus metrics at /metrics
  enabled: true

token:
  # HMAC signing key for upload tokens (min 32 characters).
  # A random development secret is generated below; for production,
  # set CHUNKFLOW_TOKEN_SECRET instead of storing it here:
  #   export CHUNKFLOW_TOKEN_SECRET=$(openssl rand -hex 32)
  secret: "%s"
  # Upload token lifetime; interrupted uploads must resume within
  # this window
  duration: 24h

blob_store:
  # Backend for chunk bytes: memory, fs, s3
  type: fs
  path: /var/lib/chunkflow/blobs
  # s3:
  #   bucket: my-chunks
  #   region: us-east-1
  #   endpoint: http://localhost:9000
  #   key_prefix: chunks/
  #   force_path_style: true

manifest_store:
  # Backend for sessions and file manifests: memory, badger
  type: badger
  path: /var/lib/chunkflow/manifests
`

// InitConfig creates a sample configuration file at the default
// location. Returns the path of the created file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given
// path. Refuses to overwrite an existing file unless force is set.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	content := fmt.Sprintf(sampleConfigTemplate, secret)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateSecret returns 32 bytes of entropy as a 64-character hex
// string.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
