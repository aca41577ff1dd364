package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/edupgarcia/bulk-processing/internal/app"
	"github.com/edupgarcia/bulk-processing/internal/config"
	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
	"github.com/edupgarcia/bulk-processing/internal/logger"
)

func main() {
	envFile := pflag.String("env-file", "./.env.local", "path to an env file loaded before reading the environment")
	pflag.Parse()

	loaded, envErr := config.LoadEnvFile(*envFile)

	cfg, cfgErr := config.Load(entity.StageTransform)
	level := "info"
	if cfg != nil {
		level = cfg.LogLevel
	}

	log, err := logger.New(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	if envErr != nil {
		log.Warn("Failed to load env file, falling back to OS environment", zap.Error(envErr))
	} else if !loaded {
		log.Debug("No env file found, using OS environment", zap.String("path", *envFile))
	}
	if cfgErr != nil {
		log.Error("Invalid configuration", zap.Error(cfgErr))
		logger.Sync(log)
		os.Exit(app.ExitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("Transform worker failed", zap.Error(err))
		stop()
		logger.Sync(log)
		os.Exit(app.ExitCode(err))
	}
}
