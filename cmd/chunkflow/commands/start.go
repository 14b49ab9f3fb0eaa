package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/api"
	"github.com/SajanLamichhane/chunkflow/pkg/config"
	chunkprom "github.com/SajanLamichhane/chunkflow/pkg/metrics/prometheus"
	"github.com/SajanLamichhane/chunkflow/pkg/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ChunkFlow server",
	Long: `Start the ChunkFlow upload server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/chunkflow/config.yaml.

Examples:
  # Start with default config location
  chunkflow start

  # Start with custom config file
  chunkflow start --config /etc/chunkflow/config.yaml

  # Start with environment variable overrides
  CHUNKFLOW_LOGGING_LEVEL=DEBUG chunkflow start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Cancelled on SIGINT/SIGTERM; drives graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("configuration loaded",
		"source", getConfigSource(GetConfigFile()),
		"log_level", cfg.Logging.Level)

	blobs, err := config.CreateBlobStore(ctx, cfg.BlobStore)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			logger.Error("blob store close error", logger.KeyError, err)
		}
	}()
	logger.Info("blob store ready", "type", cfg.BlobStore.Type)

	manifests, err := config.CreateManifestStore(cfg.ManifestStore)
	if err != nil {
		return fmt.Errorf("failed to create manifest store: %w", err)
	}
	defer func() {
		if err := manifests.Close(); err != nil {
			logger.Error("manifest store close error", logger.KeyError, err)
		}
	}()
	logger.Info("manifest store ready", "type", cfg.ManifestStore.Type)

	tokens, err := config.CreateTokenService(cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	svc, err := service.New(blobs, manifests, tokens)
	if err != nil {
		return fmt.Errorf("failed to create upload service: %w", err)
	}

	routerCfg := api.RouterConfig{
		Service: svc,
		Blobs:   blobs,
	}
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		routerCfg.Metrics = chunkprom.NewUploadMetrics(registry)
		routerCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		logger.Info("metrics enabled", "endpoint", "/metrics")
	} else {
		logger.Info("metrics collection disabled")
	}

	server := api.NewServer(cfg.Server, api.NewRouter(routerCfg))

	logger.Info("server is running, press Ctrl+C to stop", "port", server.Port())
	return server.Start(ctx)
}

// getConfigSource returns a description of where the config was loaded
// from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
