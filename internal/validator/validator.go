// Package validator decides whether a track may be promoted. It never
// mutates state and produces a fresh verdict on every call so approvals can
// never go stale.
package validator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voislab/soundflow/internal/model"
)

// Check names, stable because operators and tests key off them.
const (
	CheckProcessingStatus = "processing_status"
	CheckRequiredFields   = "required_fields"
	CheckAgeGate          = "age_gate"
	CheckBlobExistence    = "blob_existence"
)

// BlobChecker answers whether any blob exists under a track's media prefix.
type BlobChecker interface {
	HasPrefix(ctx context.Context, prefix string) (bool, error)
}

// Options tune a single validation call.
type Options struct {
	// BypassAgeGate skips the soak-time check. Only the manual promotion
	// path sets this; batch promotion never does.
	BypassAgeGate bool
	// SkipBlobCheck omits the blob existence probe. The orchestrator's
	// cheap pre-filter uses it; the promoter always runs the full set.
	SkipBlobCheck bool
}

// Validator applies the promotion quality gate.
type Validator struct {
	blobs   BlobChecker
	minSoak time.Duration
	now     func() time.Time
}

// New constructs a Validator. now is overridable for tests via WithClock.
func New(blobs BlobChecker, minSoak time.Duration) *Validator {
	return &Validator{blobs: blobs, minSoak: minSoak, now: time.Now}
}

// WithClock returns a copy using the given clock.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	out := *v
	out.now = now
	return &out
}

// Validate runs the rule set in order. A track that already left the
// promotable statuses fails fast; the remaining checks run independently so
// the verdict lists everything an operator must fix.
func (v *Validator) Validate(ctx context.Context, t *model.Track, opts Options) model.Verdict {
	verdict := model.Verdict{Valid: true}
	fail := func(c model.Check) {
		verdict.Checks = append(verdict.Checks, c)
		if !c.Passed {
			verdict.Valid = false
		}
	}

	switch t.Status {
	case model.StatusProcessed, model.StatusEnhanced:
		fail(model.Check{Name: CheckProcessingStatus, Passed: true,
			Detail: fmt.Sprintf("status is %q", t.Status)})
	default:
		// Terminal statuses are never re-promoted; nothing else is worth
		// reporting on such a record.
		fail(model.Check{Name: CheckProcessingStatus, Passed: false,
			Detail: fmt.Sprintf("status is %q, expected processed or enhanced", t.Status)})
		return verdict
	}

	if missing := missingFields(t); len(missing) > 0 {
		fail(model.Check{Name: CheckRequiredFields, Passed: false,
			Detail: "missing: " + strings.Join(missing, ", ")})
	} else {
		fail(model.Check{Name: CheckRequiredFields, Passed: true, Detail: "all required fields present"})
	}

	if opts.BypassAgeGate {
		verdict.Checks = append(verdict.Checks, model.Check{
			Name: CheckAgeGate, Passed: true, Detail: "bypassed by operator request",
		})
	} else {
		age := v.now().Sub(t.CreatedDate)
		if age < v.minSoak {
			fail(model.Check{Name: CheckAgeGate, Passed: false,
				Detail: fmt.Sprintf("track age %s is below the %s soak window", age.Truncate(time.Second), v.minSoak)})
		} else {
			fail(model.Check{Name: CheckAgeGate, Passed: true,
				Detail: fmt.Sprintf("soaked for %s", age.Truncate(time.Second))})
		}
	}

	if !opts.SkipBlobCheck {
		prefix := TrackPrefix(t.ID)
		exists, err := v.blobs.HasPrefix(ctx, prefix)
		switch {
		case err != nil:
			fail(model.Check{Name: CheckBlobExistence, Passed: false,
				Detail: fmt.Sprintf("blob check failed: %v", err)})
		case !exists:
			fail(model.Check{Name: CheckBlobExistence, Passed: false,
				Detail: fmt.Sprintf("no objects under %s", prefix)})
		default:
			fail(model.Check{Name: CheckBlobExistence, Passed: true,
				Detail: "audio blobs present"})
		}
	}

	return verdict
}

// TrackPrefix is the media-area prefix a track's audio lives under.
func TrackPrefix(id string) string {
	return "audio/" + id + "/"
}

// ArtworkPrefix is the media-area prefix a track's extracted artwork lives under.
func ArtworkPrefix(id string) string {
	return "artwork/" + id + "/"
}

func missingFields(t *model.Track) []string {
	var missing []string
	if strings.TrimSpace(t.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(t.FileURL) == "" {
		missing = append(missing, "fileUrl")
	}
	if t.Duration <= 0 {
		missing = append(missing, "duration")
	}
	return missing
}
