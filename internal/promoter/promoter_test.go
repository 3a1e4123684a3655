package promoter

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/testsupport"
	"github.com/voislab/soundflow/internal/validator"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func promotableTrack(id string) *model.Track {
	return &model.Track{
		ID:          id,
		CreatedDate: testClock().Add(-48 * time.Hour),
		Title:       "Evening Drive",
		Genre:       "electronic",
		Filename:    "evening-drive.mp3",
		FileURL:     "https://media.dev.test/audio/" + id + "/evening-drive.mp3",
		Duration:    215,
		Status:      model.StatusEnhanced,
	}
}

type fixture struct {
	source   *testsupport.MemoryTrackStore
	target   *testsupport.MemoryTrackStore
	blobs    *testsupport.MemoryBlobs
	notifier *testsupport.MemoryNotifier
	promoter *Promoter
}

func newFixture(t *testing.T, blobKeys ...string) *fixture {
	t.Helper()
	f := &fixture{
		source:   testsupport.NewMemoryTrackStore(),
		target:   testsupport.NewMemoryTrackStore(),
		blobs:    testsupport.NewMemoryBlobs(blobKeys...),
		notifier: &testsupport.MemoryNotifier{},
	}
	v := validator.New(f.blobs, 24*time.Hour).WithClock(testClock)
	f.promoter = New(Config{
		Source:        f.source,
		Target:        f.target,
		Blobs:         f.blobs,
		Validator:     v,
		Notifier:      f.notifier,
		SourceEnv:     "dev",
		TargetEnv:     "prod",
		SourceBaseURL: "https://media.dev.test",
		TargetBaseURL: "https://media.prod.test",
		Log:           zap.NewNop(),
	}).WithClock(testClock)
	return f
}

func TestPromoteSuccess(t *testing.T) {
	f := newFixture(t, "audio/t1/evening-drive.mp3", "artwork/t1/cover.jpg")
	f.source.Seed(promotableTrack("t1"))

	outcome := f.promoter.Promote(context.Background(), "t1", Options{})
	if !outcome.Succeeded() {
		t.Fatalf("promotion failed: %s", outcome.Err)
	}
	if !outcome.RecordCreated {
		t.Fatalf("expected a fresh target record")
	}
	if outcome.FilesCopied != 2 {
		t.Fatalf("expected 2 blobs copied, got %d", outcome.FilesCopied)
	}

	promoted := f.target.Get("t1")
	if promoted == nil {
		t.Fatalf("target record missing")
	}
	if want := "https://media.prod.test/audio/t1/evening-drive.mp3"; promoted.FileURL != want {
		t.Fatalf("fileUrl not rewritten: got %q want %q", promoted.FileURL, want)
	}
	if promoted.PromotedAt == nil || !promoted.PromotedAt.Equal(testClock()) {
		t.Fatalf("promotedAt not stamped: %v", promoted.PromotedAt)
	}

	src := f.source.Get("t1")
	if src.Status != model.StatusPromoted {
		t.Fatalf("source status is %q, want promoted", src.Status)
	}
	if got := f.notifier.Outcomes(); len(got) != 1 || !got[0].Succeeded() {
		t.Fatalf("expected one success notification, got %+v", got)
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	f := newFixture(t, "audio/t1/evening-drive.mp3")
	f.source.Seed(promotableTrack("t1"))

	first := f.promoter.Promote(context.Background(), "t1", Options{})
	if !first.Succeeded() || !first.RecordCreated {
		t.Fatalf("first attempt should create the record: %+v", first)
	}

	// No state reset between calls: the source record is now promoted, and a
	// straight re-invocation must still converge to a success no-op.
	second := f.promoter.Promote(context.Background(), "t1", Options{})
	if !second.Succeeded() {
		t.Fatalf("second attempt must succeed as a no-op: %s", second.Err)
	}
	if second.RecordCreated {
		t.Fatalf("second attempt must not create a record")
	}
	if second.FilesCopied != 0 {
		t.Fatalf("no-op attempt copied %d blobs", second.FilesCopied)
	}
	if f.target.Len() != 1 {
		t.Fatalf("target has %d records, want 1", f.target.Len())
	}
	if got := f.notifier.Outcomes(); len(got) != 2 {
		t.Fatalf("every attempt must notify, got %d", len(got))
	}
	if f.source.Get("t1").Status != model.StatusPromoted {
		t.Fatalf("source must stay promoted after the no-op")
	}
}

func TestPromoteInvalidTrackHasNoSideEffects(t *testing.T) {
	f := newFixture(t, "audio/t1/evening-drive.mp3")
	track := promotableTrack("t1")
	track.Duration = 0
	f.source.Seed(track)

	outcome := f.promoter.Promote(context.Background(), "t1", Options{})
	if outcome.Succeeded() {
		t.Fatalf("expected validation failure")
	}
	if outcome.Verdict == nil || outcome.Verdict.Valid {
		t.Fatalf("expected an invalid verdict on the outcome")
	}
	if len(f.blobs.Copied()) != 0 {
		t.Fatalf("invalid track must not copy blobs")
	}
	if f.target.Len() != 0 {
		t.Fatalf("invalid track must not write a target record")
	}
	if f.source.Get("t1").Status != model.StatusEnhanced {
		t.Fatalf("source status must stay untouched")
	}
}

func TestPromoteCopyFailureWritesNoMetadata(t *testing.T) {
	f := newFixture(t, "audio/t1/a.mp3", "audio/t1/b.mp3")
	f.blobs.FailKey = "audio/t1/b.mp3"
	f.source.Seed(promotableTrack("t1"))

	outcome := f.promoter.Promote(context.Background(), "t1", Options{})
	if outcome.Succeeded() {
		t.Fatalf("expected copy failure")
	}
	if f.target.Len() != 0 {
		t.Fatalf("no metadata may be committed after a partial copy")
	}
	if f.source.Get("t1").Status != model.StatusEnhanced {
		t.Fatalf("source must not be marked promoted")
	}
	if got := f.notifier.Outcomes(); len(got) != 1 || got[0].Succeeded() {
		t.Fatalf("failure must still notify, got %+v", got)
	}
}

func TestPromoteUnknownTrack(t *testing.T) {
	f := newFixture(t)

	outcome := f.promoter.Promote(context.Background(), "missing", Options{})
	if outcome.Succeeded() {
		t.Fatalf("expected failure for unknown track")
	}
	if !strings.Contains(outcome.Err, "not found") {
		t.Fatalf("expected not-found error, got %q", outcome.Err)
	}
}

func TestPromoteBypassAgeGate(t *testing.T) {
	f := newFixture(t, "audio/t1/evening-drive.mp3")
	track := promotableTrack("t1")
	track.CreatedDate = testClock().Add(-1 * time.Hour)
	f.source.Seed(track)

	outcome := f.promoter.Promote(context.Background(), "t1", Options{})
	if outcome.Succeeded() {
		t.Fatalf("fresh track must fail the age gate")
	}

	outcome = f.promoter.Promote(context.Background(), "t1", Options{BypassAgeGate: true})
	if !outcome.Succeeded() {
		t.Fatalf("bypassed promotion failed: %s", outcome.Err)
	}
}
