// Package app is the composition root shared by the binaries. It wires the
// stores, the queue and the pipeline components from one Config, and omits
// the promotion side entirely when the target environment is not configured.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/blobstore"
	"github.com/voislab/soundflow/internal/config"
	"github.com/voislab/soundflow/internal/database"
	"github.com/voislab/soundflow/internal/enrich"
	"github.com/voislab/soundflow/internal/ingest"
	"github.com/voislab/soundflow/internal/notify"
	"github.com/voislab/soundflow/internal/orchestrator"
	"github.com/voislab/soundflow/internal/promoter"
	"github.com/voislab/soundflow/internal/queue"
	"github.com/voislab/soundflow/internal/repository"
	"github.com/voislab/soundflow/internal/validator"
)

// App holds the wired components of one deployment.
type App struct {
	Cfg *config.Config
	Log *zap.Logger

	SourceRepo *repository.TrackRepository
	// TargetRepo is nil when promotion is disabled.
	TargetRepo *repository.TrackRepository

	Uploads     *blobstore.Store
	SourceMedia *blobstore.Store
	// TargetMedia is nil when promotion is disabled.
	TargetMedia *blobstore.Store

	Queue     *queue.Client
	Validator *validator.Validator
	Ingester  *ingest.Handler
	Enricher  *enrich.Enricher

	// Promoter and Orchestrator are nil when promotion is disabled.
	Promoter     *promoter.Promoter
	Orchestrator *orchestrator.Orchestrator

	sourcePool  *pgxpool.Pool
	targetPool  *pgxpool.Pool
	redisClient *redis.Client
	asynqClient *asynq.Client
}

// New wires an App from the Config. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	pool, err := database.Connect(ctx, cfg.Source.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect source database: %w", err)
	}
	a.sourcePool = pool
	a.SourceRepo = repository.NewTrackRepository(pool)

	s3, err := blobstore.NewClient(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Uploads = blobstore.NewStore(s3, cfg.UploadBucket, "", cfg.S3Region)
	a.SourceMedia = blobstore.NewStore(s3, cfg.Source.MediaBucket, cfg.Source.MediaBaseURL, cfg.S3Region)

	a.asynqClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.Queue = queue.NewClient(a.asynqClient)

	a.Validator = validator.New(a.SourceMedia, cfg.MinSoak)

	intake := &blobstore.Intake{Uploads: a.Uploads, Media: a.SourceMedia}
	a.Ingester = ingest.New(intake, a.SourceRepo, a.Queue, cfg.MinFileBytes, cfg.MaxFileBytes, log)
	a.Enricher = enrich.New(a.SourceMedia, a.SourceRepo, enrich.FFProbe{Path: cfg.FFprobePath}, log)

	if cfg.PromotionEnabled() {
		targetPool, err := database.Connect(ctx, cfg.Target.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect target database: %w", err)
		}
		a.targetPool = targetPool
		a.TargetRepo = repository.NewTrackRepository(targetPool)
		a.TargetMedia = blobstore.NewStore(s3, cfg.Target.MediaBucket, cfg.Target.MediaBaseURL, cfg.S3Region)

		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		notifier := notify.NewRedisNotifier(a.redisClient, cfg.NotifyChannel)

		mirror := &blobstore.Mirror{
			Source:    a.SourceMedia,
			Target:    a.TargetMedia,
			SourceEnv: cfg.Source.Name,
		}
		a.Promoter = promoter.New(promoter.Config{
			Source:        a.SourceRepo,
			Target:        a.TargetRepo,
			Blobs:         mirror,
			Validator:     a.Validator,
			Notifier:      notifier,
			SourceEnv:     cfg.Source.Name,
			TargetEnv:     cfg.Target.Name,
			SourceBaseURL: cfg.Source.MediaBaseURL,
			TargetBaseURL: cfg.Target.MediaBaseURL,
			Log:           log,
		})
		a.Orchestrator = orchestrator.New(a.SourceRepo, a.Promoter, a.Validator,
			cfg.MaxPromotions, cfg.PromoteConcurrency, log)
	}

	return a, nil
}

// EnsureInfrastructure creates the schema and buckets this deployment uses.
func (a *App) EnsureInfrastructure(ctx context.Context) error {
	if err := database.EnsureSchema(ctx, a.sourcePool); err != nil {
		return fmt.Errorf("ensure source schema: %w", err)
	}
	for _, store := range []*blobstore.Store{a.Uploads, a.SourceMedia} {
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
	}
	if a.targetPool != nil {
		if err := database.EnsureSchema(ctx, a.targetPool); err != nil {
			return fmt.Errorf("ensure target schema: %w", err)
		}
	}
	if a.TargetMedia != nil {
		if err := a.TargetMedia.EnsureBucket(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases pools and clients. Safe on a partially wired App.
func (a *App) Close() {
	if a.asynqClient != nil {
		_ = a.asynqClient.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.targetPool != nil {
		a.targetPool.Close()
	}
	if a.sourcePool != nil {
		a.sourcePool.Close()
	}
}
