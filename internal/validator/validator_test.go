package validator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/voislab/soundflow/internal/model"
)

type stubBlobs struct {
	present bool
	err     error
}

func (s stubBlobs) HasPrefix(ctx context.Context, prefix string) (bool, error) {
	return s.present, s.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func soakedTrack(now time.Time) *model.Track {
	return &model.Track{
		ID:          "t1",
		CreatedDate: now.Add(-48 * time.Hour),
		Title:       "Evening Drive",
		FileURL:     "https://media.dev.test/audio/t1/evening-drive.mp3",
		Duration:    215,
		Status:      model.StatusEnhanced,
	}
}

func TestValidatePromotableTrack(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	v := New(stubBlobs{present: true}, 24*time.Hour).WithClock(fixedClock(now))

	verdict := v.Validate(context.Background(), soakedTrack(now), Options{})
	if !verdict.Valid {
		t.Fatalf("expected valid verdict, failed checks: %v", verdict.FailedChecks())
	}
	if len(verdict.Checks) != 4 {
		t.Fatalf("expected all 4 checks to run, got %d", len(verdict.Checks))
	}
}

func TestValidateTerminalStatusFailsFast(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	v := New(stubBlobs{present: true}, 24*time.Hour).WithClock(fixedClock(now))

	track := soakedTrack(now)
	track.Status = model.StatusPromoted
	verdict := v.Validate(context.Background(), track, Options{})
	if verdict.Valid {
		t.Fatalf("promoted track must not validate again")
	}
	if len(verdict.Checks) != 1 || verdict.Checks[0].Name != CheckProcessingStatus {
		t.Fatalf("expected only the status check to report, got %+v", verdict.Checks)
	}
}

func TestValidateMissingFields(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	v := New(stubBlobs{present: true}, 24*time.Hour).WithClock(fixedClock(now))

	track := soakedTrack(now)
	track.Title = ""
	track.Duration = 0
	verdict := v.Validate(context.Background(), track, Options{})
	if verdict.Valid {
		t.Fatalf("expected invalid verdict")
	}
	var detail string
	for _, c := range verdict.Checks {
		if c.Name == CheckRequiredFields {
			detail = c.Detail
		}
	}
	if !strings.Contains(detail, "title") || !strings.Contains(detail, "duration") {
		t.Fatalf("expected title and duration in detail, got %q", detail)
	}
}

func TestValidateAgeGate(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	v := New(stubBlobs{present: true}, 24*time.Hour).WithClock(fixedClock(now))

	track := soakedTrack(now)
	track.CreatedDate = now.Add(-1 * time.Hour)
	verdict := v.Validate(context.Background(), track, Options{})
	if verdict.Valid {
		t.Fatalf("track inside the soak window must fail")
	}
	failed := verdict.FailedChecks()
	if len(failed) != 1 || failed[0] != CheckAgeGate {
		t.Fatalf("expected only the age gate to fail, got %v", failed)
	}

	// A bypassed gate passes with the bypass recorded in the verdict.
	verdict = v.Validate(context.Background(), track, Options{BypassAgeGate: true})
	if !verdict.Valid {
		t.Fatalf("bypassed age gate should validate, failed: %v", verdict.FailedChecks())
	}
	for _, c := range verdict.Checks {
		if c.Name == CheckAgeGate && !strings.Contains(c.Detail, "bypassed") {
			t.Fatalf("expected bypass to be recorded, got %q", c.Detail)
		}
	}
}

func TestValidateMissingBlobs(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	v := New(stubBlobs{present: false}, 24*time.Hour).WithClock(fixedClock(now))

	verdict := v.Validate(context.Background(), soakedTrack(now), Options{})
	if verdict.Valid {
		t.Fatalf("missing blobs must fail validation")
	}
	failed := verdict.FailedChecks()
	if len(failed) != 1 || failed[0] != CheckBlobExistence {
		t.Fatalf("expected only blob existence to fail, got %v", failed)
	}

	// The pre-filter variant skips the probe entirely.
	verdict = v.Validate(context.Background(), soakedTrack(now), Options{SkipBlobCheck: true})
	if !verdict.Valid {
		t.Fatalf("blob probe should have been skipped, failed: %v", verdict.FailedChecks())
	}
	for _, c := range verdict.Checks {
		if c.Name == CheckBlobExistence {
			t.Fatalf("blob check ran despite SkipBlobCheck")
		}
	}
}

func TestVerdictIsFreshPerCall(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	v := New(stubBlobs{present: true}, 24*time.Hour).WithClock(fixedClock(now))

	track := soakedTrack(now)
	first := v.Validate(context.Background(), track, Options{})
	track.Status = model.StatusRejected
	second := v.Validate(context.Background(), track, Options{})
	if !first.Valid || second.Valid {
		t.Fatalf("verdicts must reflect the state at call time: first=%v second=%v", first.Valid, second.Valid)
	}
}
