package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"churnpredict/internal/app"
	"churnpredict/internal/commander"
	"churnpredict/internal/config"
)

func main() {
	configFile := flag.String("config", "config/config.yaml", "Path to configuration file")
	original := flag.String("original", "", "Original training dataset to register with the in-memory store")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise application", zap.Error(err))
	}
	defer container.Close()

	if _, err := container.SeedDefaults(ctx, *original); err != nil {
		logger.Warn("failed to seed default models", zap.Error(err))
	}

	commander.NewCommander(container, os.Stdout).Start(os.Stdin)
}
