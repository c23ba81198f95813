package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/prerender-gate/internal/config"
	"github.com/JakeFAU/prerender-gate/internal/logging"
	"github.com/JakeFAU/prerender-gate/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}

	app, err := server.BuildGate(cfg, logger.Named("gate"))
	if err != nil {
		logger.Error("gate init failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	if err := app.Run(context.Background()); err != nil {
		logger.Error("gate stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
