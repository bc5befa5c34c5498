// Fraudgate - Real-time transaction fraud scoring
package main

import (
	"context"
	"os"

	"github.com/okanzdmr/fraudgate/internal/config"
	"github.com/okanzdmr/fraudgate/internal/logging"
	"github.com/okanzdmr/fraudgate/internal/server"
	"github.com/okanzdmr/fraudgate/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting fraudgate",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"allow_below", cfg.AllowBelow,
		"block_above", cfg.BlockAbove,
	)

	ctx := context.Background()

	// Initialize tracing (no-op when OTEL_EXPORTER_OTLP_ENDPOINT is unset)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTraces(context.Background()); err != nil {
			logger.Error("trace shutdown error", "error", err)
		}
	}()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
