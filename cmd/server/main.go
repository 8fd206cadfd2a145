// TxSentinel - wallet transaction risk scoring and AI explanations
package main

import (
	"context"
	"os"
	"time"

	"github.com/mbd888/txsentinel/internal/config"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/server"
	"github.com/mbd888/txsentinel/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var initTraces = traces.Init

func main() {
	os.Exit(run(context.Background()))
}

// run starts the service and returns the process exit code. Deferred
// cleanup, the trace exporter flush included, runs before main exits.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		return 1
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting txsentinel",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"chain_id", cfg.ChainID,
		"max_transactions", cfg.MaxTxs,
		"ai_enabled", cfg.AIEnabled(),
	)

	shutdownTraces, err := initTraces(ctx, cfg.OTLPEndpoint, Version, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(sctx); err != nil {
			logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}()

	server.Version = Version
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return 1
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}
