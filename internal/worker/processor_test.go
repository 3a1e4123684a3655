package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/ingest"
	"github.com/voislab/soundflow/internal/queue"
	"github.com/voislab/soundflow/internal/testsupport"
)

func ingestTask(t *testing.T, bucket, key string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(queue.IngestPayload{Bucket: bucket, ObjectKey: key})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(queue.IngestObjectTask, data)
}

func newIngestProcessor(objects map[string][]byte) (*Processor, *testsupport.MemoryTrackStore) {
	store := testsupport.NewMemoryTrackStore()
	uploads := testsupport.NewMemoryUploads(objects)
	ingester := ingest.New(uploads, store, nil, 1024, 1<<20, zap.NewNop())
	return NewProcessor(ingester, nil, nil, zap.NewNop()), store
}

func TestHandleIngestSizeRejectionIsPermanent(t *testing.T) {
	p, store := newIngestProcessor(map[string][]byte{
		"audio/tiny.mp3": []byte("x"),
	})

	err := p.handleIngest(context.Background(), ingestTask(t, "uploads", "audio/tiny.mp3"))
	if err == nil {
		t.Fatalf("undersized upload must fail the task")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("size rejection must not be retried, got %v", err)
	}
	if failures := store.Failures(); len(failures) != 1 {
		t.Fatalf("expected exactly one failure row, got %v", failures)
	}
}

func TestHandleIngestScanRejectionIsPermanent(t *testing.T) {
	payload := append([]byte("<script>alert(1)</script>"), bytes.Repeat([]byte{0xF7}, 2048)...)
	p, _ := newIngestProcessor(map[string][]byte{
		"audio/evil.mp3": payload,
	})

	err := p.handleIngest(context.Background(), ingestTask(t, "uploads", "audio/evil.mp3"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("scan rejection must not be retried, got %v", err)
	}
}

func TestHandleIngestTransientErrorIsRetriable(t *testing.T) {
	p, store := newIngestProcessor(map[string][]byte{
		"audio/ok.mp3": bytes.Repeat([]byte{0xF7}, 2048),
	})
	store.CreateErr = errors.New("store unavailable")

	err := p.handleIngest(context.Background(), ingestTask(t, "uploads", "audio/ok.mp3"))
	if err == nil {
		t.Fatalf("store failure must fail the task")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("transient store failure must stay retriable, got %v", err)
	}
}
