// Package orchestrator selects bounded batches of promotion candidates and
// drives the promoter, on a schedule or on demand.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/promoter"
	"github.com/voislab/soundflow/internal/repository"
	"github.com/voislab/soundflow/internal/validator"
)

// CandidateStore is the orchestrator's view of the source metadata store.
type CandidateStore interface {
	ListByStatuses(ctx context.Context, statuses []model.Status, limit int) ([]*model.Track, error)
	GetByID(ctx context.Context, id string) (*model.Track, error)
	MarkRejected(ctx context.Context, id string, created time.Time) error
}

// TrackPromoter executes one promotion attempt.
type TrackPromoter interface {
	Promote(ctx context.Context, trackID string, opts promoter.Options) model.Outcome
}

// Skip records a candidate the pre-filter excluded from a batch.
type Skip struct {
	TrackID string   `json:"trackId"`
	Checks  []string `json:"failedChecks"`
}

// BatchSummary aggregates one batch run.
type BatchSummary struct {
	StartedAt     time.Time       `json:"startedAt"`
	FinishedAt    time.Time       `json:"finishedAt"`
	MaxPromotions int             `json:"maxPromotions"`
	Scanned       int             `json:"scanned"`
	Promoted      int             `json:"promoted"`
	Failed        int             `json:"failed"`
	Skipped       []Skip          `json:"skipped,omitempty"`
	Outcomes      []model.Outcome `json:"outcomes"`
}

// Orchestrator runs scheduled and manual promotion work.
type Orchestrator struct {
	store       CandidateStore
	promoter    TrackPromoter
	validate    *validator.Validator
	maxDefault  int
	maxParallel int
	log         *zap.Logger
}

// New constructs an Orchestrator.
func New(store CandidateStore, trackPromoter TrackPromoter, validate *validator.Validator, maxDefault, maxParallel int, log *zap.Logger) *Orchestrator {
	if maxDefault <= 0 {
		maxDefault = 10
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Orchestrator{
		store:       store,
		promoter:    trackPromoter,
		validate:    validate,
		maxDefault:  maxDefault,
		maxParallel: maxParallel,
		log:         log,
	}
}

// RunBatch selects up to max eligible candidates oldest-first and promotes
// them with bounded parallelism. Per-track failures are isolated; an already
// succeeded promotion is never rolled back by a later failure in the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, max int) (*BatchSummary, error) {
	if max <= 0 {
		max = o.maxDefault
	}
	summary := &BatchSummary{
		StartedAt:     time.Now().UTC(),
		MaxPromotions: max,
	}

	// Scan wider than the batch bound so pre-filter skips don't starve it.
	scanLimit := max * 5
	candidates, err := o.store.ListByStatuses(ctx,
		[]model.Status{model.StatusProcessed, model.StatusEnhanced}, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	summary.Scanned = len(candidates)

	// Cheap pre-filter: the non-bypassable checks minus the blob probe. The
	// promoter re-validates in full, so a stale pass here cannot slip through.
	var eligible []*model.Track
	for _, track := range candidates {
		verdict := o.validate.Validate(ctx, track, validator.Options{SkipBlobCheck: true})
		if !verdict.Valid {
			summary.Skipped = append(summary.Skipped, Skip{TrackID: track.ID, Checks: verdict.FailedChecks()})
			continue
		}
		eligible = append(eligible, track)
		if len(eligible) == max {
			break
		}
	}

	summary.Outcomes = o.promoteAll(ctx, eligible)
	for _, outcome := range summary.Outcomes {
		if outcome.Succeeded() {
			summary.Promoted++
		} else {
			summary.Failed++
		}
	}
	summary.FinishedAt = time.Now().UTC()

	o.log.Info("batch promotion finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("promoted", summary.Promoted),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", len(summary.Skipped)))
	return summary, nil
}

// promoteAll starts promotions in ascending createdDate order under a
// concurrency bound. Outcomes keep candidate order.
func (o *Orchestrator) promoteAll(ctx context.Context, tracks []*model.Track) []model.Outcome {
	outcomes := make([]model.Outcome, len(tracks))
	sem := make(chan struct{}, o.maxParallel)
	var wg sync.WaitGroup
	for i, track := range tracks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			outcomes[i] = model.Outcome{TrackID: track.ID, Err: ctx.Err().Error()}
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = o.promoter.Promote(ctx, id, promoter.Options{})
		}(i, track.ID)
	}
	wg.Wait()
	return outcomes
}

// Action names accepted by HandleAction.
const (
	ActionPromoteTrack  = "promote_track"
	ActionBatch         = "batch_promotion"
	ActionValidateTrack = "validate_track"
	ActionRejectTrack   = "reject_track"
)

// ActionRequest is the manual trigger payload.
type ActionRequest struct {
	Action        string `json:"action"`
	TrackID       string `json:"trackId,omitempty"`
	MaxPromotions int    `json:"maxPromotions,omitempty"`
	// BypassAgeGate lets an explicit operator request skip the soak window.
	BypassAgeGate bool `json:"bypassAgeGate,omitempty"`
}

// ActionBody is the structured response payload.
type ActionBody struct {
	Message    string          `json:"message"`
	TrackID    string          `json:"trackId,omitempty"`
	Validation *model.Verdict  `json:"validation,omitempty"`
	Promotion  *model.Outcome  `json:"promotion,omitempty"`
	Batch      *BatchSummary   `json:"batch,omitempty"`
	Outcomes   []model.Outcome `json:"outcomes,omitempty"`
}

// ActionResponse pairs an HTTP-shaped status code with the body.
type ActionResponse struct {
	StatusCode int        `json:"statusCode"`
	Body       ActionBody `json:"body"`
}

// HandleAction performs a manual trigger synchronously and returns the
// outcome to the caller in addition to the usual notification path.
func (o *Orchestrator) HandleAction(ctx context.Context, req ActionRequest) (*ActionResponse, error) {
	switch req.Action {
	case ActionPromoteTrack:
		if req.TrackID == "" {
			return badRequest("trackId is required for promote_track"), nil
		}
		outcome := o.promoter.Promote(ctx, req.TrackID, promoter.Options{BypassAgeGate: req.BypassAgeGate})
		resp := &ActionResponse{
			StatusCode: http.StatusOK,
			Body: ActionBody{
				Message:    "track promoted",
				TrackID:    req.TrackID,
				Validation: outcome.Verdict,
				Promotion:  &outcome,
			},
		}
		if !outcome.Succeeded() {
			resp.StatusCode = http.StatusBadRequest
			resp.Body.Message = outcome.Err
			if outcome.Verdict == nil {
				resp.StatusCode = http.StatusInternalServerError
			}
		} else if !outcome.RecordCreated {
			resp.Body.Message = "track already promoted"
		}
		return resp, nil

	case ActionBatch:
		summary, err := o.RunBatch(ctx, req.MaxPromotions)
		if err != nil {
			return nil, err
		}
		return &ActionResponse{
			StatusCode: http.StatusOK,
			Body: ActionBody{
				Message: fmt.Sprintf("batch finished: %d promoted, %d failed", summary.Promoted, summary.Failed),
				Batch:   summary,
			},
		}, nil

	case ActionValidateTrack:
		if req.TrackID == "" {
			return badRequest("trackId is required for validate_track"), nil
		}
		track, err := o.store.GetByID(ctx, req.TrackID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &ActionResponse{
					StatusCode: http.StatusNotFound,
					Body:       ActionBody{Message: "track not found", TrackID: req.TrackID},
				}, nil
			}
			return nil, err
		}
		verdict := o.validate.Validate(ctx, track, validator.Options{BypassAgeGate: req.BypassAgeGate})
		msg := "track is promotable"
		if !verdict.Valid {
			msg = "track failed validation"
		}
		return &ActionResponse{
			StatusCode: http.StatusOK,
			Body:       ActionBody{Message: msg, TrackID: req.TrackID, Validation: &verdict},
		}, nil

	case ActionRejectTrack:
		if req.TrackID == "" {
			return badRequest("trackId is required for reject_track"), nil
		}
		track, err := o.store.GetByID(ctx, req.TrackID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &ActionResponse{
					StatusCode: http.StatusNotFound,
					Body:       ActionBody{Message: "track not found", TrackID: req.TrackID},
				}, nil
			}
			return nil, err
		}
		if err := o.store.MarkRejected(ctx, track.ID, track.CreatedDate); err != nil {
			return nil, err
		}
		o.log.Info("track rejected by operator", zap.String("trackId", track.ID))
		return &ActionResponse{
			StatusCode: http.StatusOK,
			Body:       ActionBody{Message: "track rejected", TrackID: req.TrackID},
		}, nil

	default:
		return badRequest(fmt.Sprintf("unknown action %q", req.Action)), nil
	}
}

func badRequest(msg string) *ActionResponse {
	return &ActionResponse{
		StatusCode: http.StatusBadRequest,
		Body:       ActionBody{Message: msg},
	}
}
