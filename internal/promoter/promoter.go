// Package promoter copies a validated track's blobs and metadata from the
// source environment to the target environment, idempotently.
package promoter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/notify"
	"github.com/voislab/soundflow/internal/repository"
	"github.com/voislab/soundflow/internal/validator"
)

// SourceStore is the promoter's view of the source metadata store.
type SourceStore interface {
	GetByID(ctx context.Context, id string) (*model.Track, error)
	MarkPromoted(ctx context.Context, id string, created time.Time, at time.Time) error
}

// TargetStore is the promoter's view of the target metadata store. Access to
// it is a deployment-time capability; the underlying credential mechanism
// lives behind the pool this store was built on.
type TargetStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, t *model.Track) error
}

// Blobs mirrors objects from the source media area into the target's.
type Blobs interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Mirror(ctx context.Context, key string) error
}

// Options tune one promotion attempt.
type Options struct {
	// BypassAgeGate allows an operator-invoked promotion to skip the soak
	// window. All other checks still apply.
	BypassAgeGate bool
}

// Promoter executes promotions for one fixed environment pair.
type Promoter struct {
	source    SourceStore
	target    TargetStore
	blobs     Blobs
	validate  *validator.Validator
	notifier  notify.Notifier
	sourceEnv string
	targetEnv string

	// URL bases used to rewrite fileUrl/thumbnailUrl into the target's
	// media area.
	sourceBaseURL string
	targetBaseURL string

	log *zap.Logger
	now func() time.Time
}

// Config wires a Promoter.
type Config struct {
	Source        SourceStore
	Target        TargetStore
	Blobs         Blobs
	Validator     *validator.Validator
	Notifier      notify.Notifier
	SourceEnv     string
	TargetEnv     string
	SourceBaseURL string
	TargetBaseURL string
	Log           *zap.Logger
}

// New constructs a Promoter.
func New(cfg Config) *Promoter {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Promoter{
		source:        cfg.Source,
		target:        cfg.Target,
		blobs:         cfg.Blobs,
		validate:      cfg.Validator,
		notifier:      notifier,
		sourceEnv:     cfg.SourceEnv,
		targetEnv:     cfg.TargetEnv,
		sourceBaseURL: strings.TrimRight(cfg.SourceBaseURL, "/"),
		targetBaseURL: strings.TrimRight(cfg.TargetBaseURL, "/"),
		log:           cfg.Log,
		now:           time.Now,
	}
}

// WithClock returns a copy using the given clock.
func (p *Promoter) WithClock(now func() time.Time) *Promoter {
	out := *p
	out.now = now
	return &out
}

// Promote runs one promotion attempt. It is safe to call speculatively: an
// invalid track produces a failure outcome with no side effects, and an
// already-promoted track is a success no-op. The outcome is always published
// to the notification channel and logged before returning.
func (p *Promoter) Promote(ctx context.Context, trackID string, opts Options) model.Outcome {
	outcome := model.Outcome{
		TrackID:   trackID,
		SourceEnv: p.sourceEnv,
		TargetEnv: p.targetEnv,
	}

	track, err := p.source.GetByID(ctx, trackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			outcome.Err = fmt.Sprintf("track %s not found in %s", trackID, p.sourceEnv)
		} else {
			outcome.Err = fmt.Sprintf("load track: %v", err)
		}
		return p.finish(ctx, outcome)
	}

	// Idempotence before validation: the same id in the target store means a
	// prior attempt already committed and flipped the source to promoted.
	// Re-invocation is a no-op success, not a duplicate and not a stale
	// processing_status failure.
	exists, err := p.target.Exists(ctx, trackID)
	if err != nil {
		outcome.Err = fmt.Sprintf("check target store: %v", err)
		return p.finish(ctx, outcome)
	}
	if exists {
		outcome.RecordCreated = false
		outcome.PromotionDate = p.now().UTC()
		p.log.Info("track already promoted", zap.String("trackId", trackID))
		return p.finish(ctx, outcome)
	}

	verdict := p.validate.Validate(ctx, track, validator.Options{BypassAgeGate: opts.BypassAgeGate})
	outcome.Verdict = &verdict
	if !verdict.Valid {
		outcome.Err = fmt.Sprintf("validation failed: %s", strings.Join(verdict.FailedChecks(), ", "))
		return p.finish(ctx, outcome)
	}

	copied, err := p.copyBlobs(ctx, trackID)
	outcome.FilesCopied = copied
	if err != nil {
		// No metadata is written on a partial copy; leftover target blobs
		// are overwritten by the next attempt.
		outcome.Err = fmt.Sprintf("copy blobs: %v", err)
		return p.finish(ctx, outcome)
	}

	promotedAt := p.now().UTC()
	targetTrack := track.Clone()
	targetTrack.FileURL = p.rewriteURL(track.FileURL)
	targetTrack.ThumbnailURL = p.rewriteURL(track.ThumbnailURL)
	targetTrack.PromotedAt = &promotedAt
	if err := p.target.Upsert(ctx, targetTrack); err != nil {
		outcome.Err = fmt.Sprintf("write target record: %v", err)
		return p.finish(ctx, outcome)
	}

	if err := p.source.MarkPromoted(ctx, trackID, track.CreatedDate, promotedAt); err != nil {
		// The target side committed; surface the source-side failure so the
		// next batch retries (the idempotence check turns it into a no-op).
		outcome.Err = fmt.Sprintf("mark source promoted: %v", err)
		return p.finish(ctx, outcome)
	}

	outcome.RecordCreated = true
	outcome.PromotionDate = promotedAt
	return p.finish(ctx, outcome)
}

func (p *Promoter) copyBlobs(ctx context.Context, trackID string) (int, error) {
	copied := 0
	for _, prefix := range []string{validator.TrackPrefix(trackID), validator.ArtworkPrefix(trackID)} {
		keys, err := p.blobs.List(ctx, prefix)
		if err != nil {
			return copied, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, key := range keys {
			if err := p.blobs.Mirror(ctx, key); err != nil {
				return copied, err
			}
			copied++
		}
	}
	if copied == 0 {
		return 0, fmt.Errorf("no blobs under %s", validator.TrackPrefix(trackID))
	}
	return copied, nil
}

func (p *Promoter) rewriteURL(u string) string {
	if u == "" || p.sourceBaseURL == "" || p.targetBaseURL == "" {
		return u
	}
	return strings.Replace(u, p.sourceBaseURL, p.targetBaseURL, 1)
}

// finish logs the outcome (the durable audit trail) and publishes it to the
// notification channel regardless of success or failure.
func (p *Promoter) finish(ctx context.Context, outcome model.Outcome) model.Outcome {
	fields := []zap.Field{
		zap.String("trackId", outcome.TrackID),
		zap.String("source", outcome.SourceEnv),
		zap.String("target", outcome.TargetEnv),
		zap.Int("filesCopied", outcome.FilesCopied),
		zap.Bool("recordCreated", outcome.RecordCreated),
	}
	if outcome.Succeeded() {
		p.log.Info("promotion outcome", fields...)
	} else {
		p.log.Error("promotion outcome", append(fields, zap.String("error", outcome.Err))...)
	}
	if err := p.notifier.Publish(ctx, outcome); err != nil {
		p.log.Warn("publish promotion outcome", zap.String("trackId", outcome.TrackID), zap.Error(err))
	}
	return outcome
}
