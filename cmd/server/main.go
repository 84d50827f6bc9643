// Command server runs the riskd transaction risk decisioning API.
package main

import (
	"context"
	"os"

	"github.com/transflow/riskd/internal/config"
	"github.com/transflow/riskd/internal/logging"
	"github.com/transflow/riskd/internal/server"
)

// set via -ldflags at build time
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("load config", "error", err)
		os.Exit(1)
	}

	format := "text"
	if cfg.IsProduction() {
		format = "json"
	}
	logger := logging.New(cfg.LogLevel, format)

	logger.Info("starting riskd",
		"version", version,
		"commit", commit,
		"env", cfg.Env,
		"ml_service", cfg.MLServiceURL,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("initialize server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
