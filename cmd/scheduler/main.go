package main

import (
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/config"
	"github.com/voislab/soundflow/internal/logger"
	"github.com/voislab/soundflow/internal/queue"
)

// The scheduler enqueues the periodic batch promotion task. It runs as its
// own small process so exactly one instance owns the cadence.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer zlog.Sync()

	if !cfg.PromotionEnabled() {
		log.Fatal("scheduler requires a configured target environment")
	}

	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil)

	task, err := queue.NewBatchTask(cfg.MaxPromotions)
	if err != nil {
		log.Fatalf("build batch task: %v", err)
	}
	spec := fmt.Sprintf("@every %s", cfg.BatchInterval)
	entryID, err := scheduler.Register(spec, task)
	if err != nil {
		log.Fatalf("register batch schedule: %v", err)
	}

	zlog.Info("scheduler starting",
		zap.String("entryId", entryID),
		zap.String("interval", spec),
		zap.Int("maxPromotions", cfg.MaxPromotions))
	if err := scheduler.Run(); err != nil {
		log.Fatalf("scheduler stopped: %v", err)
	}
}
