// Package worker binds the pipeline handlers into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/blobstore"
	"github.com/voislab/soundflow/internal/enrich"
	"github.com/voislab/soundflow/internal/ingest"
	"github.com/voislab/soundflow/internal/orchestrator"
	"github.com/voislab/soundflow/internal/queue"
)

// Processor routes queued tasks to the pipeline components. The orchestrator
// is nil on deployments without the promotion capability; promotion tasks are
// then simply not registered.
type Processor struct {
	ingester *ingest.Handler
	enricher *enrich.Enricher
	orch     *orchestrator.Orchestrator
	log      *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(ingester *ingest.Handler, enricher *enrich.Enricher, orch *orchestrator.Orchestrator, log *zap.Logger) *Processor {
	return &Processor{ingester: ingester, enricher: enricher, orch: orch, log: log}
}

// Handler registers the task handlers this deployment carries.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.IngestObjectTask, p.handleIngest)
	mux.HandleFunc(queue.EnrichTrackTask, p.handleEnrich)
	if p.orch != nil {
		mux.HandleFunc(queue.PromoteTrackTask, p.handlePromote)
		mux.HandleFunc(queue.PromoteBatchTask, p.handleBatch)
	}
	return mux
}

func (p *Processor) handleIngest(ctx context.Context, task *asynq.Task) error {
	var payload queue.IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode ingest payload: %w", err)
	}
	_, err := p.ingester.HandleObject(ctx, blobstore.ObjectEvent{
		Bucket: payload.Bucket,
		Key:    payload.ObjectKey,
	})
	if err != nil {
		// Input rejections are final; retrying cannot fix the payload, and
		// each retry would write another failure audit row.
		if errors.Is(err, ingest.ErrSecurityScan) || errors.Is(err, ingest.ErrSizeOutOfBounds) {
			p.log.Error("ingest rejected permanently", zap.String("key", payload.ObjectKey), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (p *Processor) handleEnrich(ctx context.Context, task *asynq.Task) error {
	var payload queue.EnrichPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode enrich payload: %w", err)
	}
	if err := p.enricher.Enrich(ctx, payload.TrackID, payload.ObjectKey); err != nil {
		p.log.Warn("enrichment failed, record stays processed",
			zap.String("trackId", payload.TrackID), zap.Error(err))
		return err
	}
	return nil
}

func (p *Processor) handlePromote(ctx context.Context, task *asynq.Task) error {
	var payload queue.PromotePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode promote payload: %w", err)
	}
	resp, err := p.orch.HandleAction(ctx, orchestrator.ActionRequest{
		Action:        orchestrator.ActionPromoteTrack,
		TrackID:       payload.TrackID,
		BypassAgeGate: payload.BypassAgeGate,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("promotion of %s failed transiently: %s", payload.TrackID, resp.Body.Message)
	}
	// 4xx means a validation failure; retrying without a metadata fix cannot
	// succeed, so the task completes and the verdict lives in the outcome.
	return nil
}

func (p *Processor) handleBatch(ctx context.Context, task *asynq.Task) error {
	var payload queue.BatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode batch payload: %w", err)
	}
	_, err := p.orch.RunBatch(ctx, payload.MaxPromotions)
	return err
}
