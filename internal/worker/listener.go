package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/blobstore"
	"github.com/voislab/soundflow/internal/queue"
)

// UploadListener turns upload-area object-created notifications into ingest
// tasks, so ingestion keeps its short-lived, queue-driven invocation model
// even when objects are written to the bucket directly.
type UploadListener struct {
	uploads *blobstore.Store
	client  *queue.Client
	prefix  string
	log     *zap.Logger
}

// NewUploadListener constructs an UploadListener watching the given prefix.
func NewUploadListener(uploads *blobstore.Store, client *queue.Client, prefix string, log *zap.Logger) *UploadListener {
	return &UploadListener{uploads: uploads, client: client, prefix: prefix, log: log}
}

// Run blocks until the context is cancelled.
func (l *UploadListener) Run(ctx context.Context) {
	events := l.uploads.ListenUploads(ctx, l.prefix, l.log)
	for event := range events {
		if err := l.client.EnqueueIngest(ctx, event.Bucket, event.Key); err != nil {
			l.log.Error("enqueue ingest for upload event",
				zap.String("key", event.Key), zap.Error(err))
			continue
		}
		l.log.Debug("queued upload for ingestion", zap.String("key", event.Key))
	}
}
