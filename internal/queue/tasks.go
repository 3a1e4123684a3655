// Package queue defines the asynq task types connecting the pipeline's
// short-lived invocations.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// IngestObjectTask fires when a new object lands in the upload area.
	IngestObjectTask = "track:ingest"
	// EnrichTrackTask is scheduled after ingestion writes the initial record.
	EnrichTrackTask = "track:enrich"
	// PromoteTrackTask promotes one validated track.
	PromoteTrackTask = "promotion:track"
	// PromoteBatchTask runs one orchestrator batch.
	PromoteBatchTask = "promotion:batch"
)

// IngestPayload identifies a newly created upload object.
type IngestPayload struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
}

// EnrichPayload tells the enricher which media object backs a track.
type EnrichPayload struct {
	TrackID   string `json:"track_id"`
	ObjectKey string `json:"object_key"`
}

// PromotePayload requests promotion of one track.
type PromotePayload struct {
	TrackID string `json:"track_id"`
	// BypassAgeGate is only ever set by the manual promotion path.
	BypassAgeGate bool `json:"bypass_age_gate,omitempty"`
}

// BatchPayload requests one bounded batch run.
type BatchPayload struct {
	MaxPromotions int `json:"max_promotions"`
}

// Client wraps the asynq client with typed enqueue helpers.
type Client struct {
	inner *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(inner *asynq.Client) *Client {
	return &Client{inner: inner}
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.inner.Close() }

// EnqueueIngest schedules ingestion of a fresh upload.
func (c *Client) EnqueueIngest(ctx context.Context, bucket, objectKey string) error {
	return c.enqueue(ctx, IngestObjectTask, IngestPayload{Bucket: bucket, ObjectKey: objectKey},
		asynq.MaxRetry(5), asynq.Timeout(5*time.Minute))
}

// EnqueueEnrich schedules the metadata enrichment pass for a track.
func (c *Client) EnqueueEnrich(ctx context.Context, trackID, objectKey string) error {
	return c.enqueue(ctx, EnrichTrackTask, EnrichPayload{TrackID: trackID, ObjectKey: objectKey},
		asynq.MaxRetry(3), asynq.Timeout(5*time.Minute))
}

// EnqueuePromote schedules promotion of one track.
func (c *Client) EnqueuePromote(ctx context.Context, trackID string, bypassAgeGate bool) error {
	return c.enqueue(ctx, PromoteTrackTask, PromotePayload{TrackID: trackID, BypassAgeGate: bypassAgeGate},
		asynq.MaxRetry(3), asynq.Timeout(15*time.Minute))
}

// EnqueueBatch schedules one batch promotion run.
func (c *Client) EnqueueBatch(ctx context.Context, maxPromotions int) error {
	return c.enqueue(ctx, PromoteBatchTask, BatchPayload{MaxPromotions: maxPromotions},
		asynq.MaxRetry(1), asynq.Timeout(15*time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.inner.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

// NewBatchTask builds the periodic task the scheduler registers.
func NewBatchTask(maxPromotions int) (*asynq.Task, error) {
	data, err := json.Marshal(BatchPayload{MaxPromotions: maxPromotions})
	if err != nil {
		return nil, fmt.Errorf("marshal batch payload: %w", err)
	}
	return asynq.NewTask(PromoteBatchTask, data, asynq.MaxRetry(1), asynq.Timeout(15*time.Minute)), nil
}
