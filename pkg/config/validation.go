package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	switch cfg.BlobStore.Type {
	case "fs":
		if cfg.BlobStore.Path == "" {
			return fmt.Errorf("blob_store: fs backend requires path")
		}
	case "s3":
		if cfg.BlobStore.S3.Bucket == "" {
			return fmt.Errorf("blob_store: s3 backend requires bucket")
		}
	}

	if cfg.ManifestStore.Type == "badger" && cfg.ManifestStore.Path == "" {
		return fmt.Errorf("manifest_store: badger backend requires path")
	}

	return nil
}
