// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/dmelnik/pairsniper/internal/bot"
	"github.com/dmelnik/pairsniper/internal/config"
	"github.com/dmelnik/pairsniper/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load config", zap.Error(err))
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}

	log, err := logger.New(logCfg)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to create logger", zap.Error(err))
	}
	defer log.Sync()

	log.Info("Starting pair sniper")

	runner, err := bot.NewRunner(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize bot", zap.Error(err))
	}
	defer runner.Shutdown()

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Bot execution error", zap.Error(err))
	}
}
