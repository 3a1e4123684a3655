package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/app"
	"github.com/voislab/soundflow/internal/config"
	"github.com/voislab/soundflow/internal/logger"
	"github.com/voislab/soundflow/internal/queue"
	"github.com/voislab/soundflow/internal/worker"
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

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.IngestConcurrency + cfg.PromoteConcurrency,
		Queues:      map[string]int{"default": 1},
	})

	processor := worker.NewProcessor(application.Ingester, application.Enricher,
		application.Orchestrator, zlog)
	mux := processor.Handler()

	// Bridge direct bucket writes into the ingest queue.
	listener := worker.NewUploadListener(application.Uploads, application.Queue, "audio/", zlog)
	go listener.Run(ctx)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	zlog.Info("worker starting",
		zap.Bool("promotionEnabled", cfg.PromotionEnabled()),
		zap.Strings("tasks", registeredTasks(cfg)))
	if err := server.Run(mux); err != nil {
		zlog.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func registeredTasks(cfg *config.Config) []string {
	tasks := []string{queue.IngestObjectTask, queue.EnrichTrackTask}
	if cfg.PromotionEnabled() {
		tasks = append(tasks, queue.PromoteTrackTask, queue.PromoteBatchTask)
	}
	return tasks
}
