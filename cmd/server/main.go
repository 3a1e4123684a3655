package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/api"
	"github.com/voislab/soundflow/internal/app"
	"github.com/voislab/soundflow/internal/config"
	"github.com/voislab/soundflow/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer zlog.Sync()

	application, err := app.New(ctx, cfg, zlog)
	if err != nil {
		log.Fatalf("wire application: %v", err)
	}
	defer application.Close()
	if err := application.EnsureInfrastructure(ctx); err != nil {
		log.Fatalf("ensure infrastructure: %v", err)
	}

	server := api.New(cfg, application.SourceRepo, application.Uploads,
		application.SourceMedia, application.Queue, application.Orchestrator, zlog)
	if err := server.Run(ctx); err != nil {
		zlog.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
