package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/promoter"
	"github.com/voislab/soundflow/internal/testsupport"
	"github.com/voislab/soundflow/internal/validator"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

type stubPromoter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (s *stubPromoter) Promote(ctx context.Context, trackID string, opts promoter.Options) model.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, trackID)
	outcome := model.Outcome{TrackID: trackID, SourceEnv: "dev", TargetEnv: "prod",
		RecordCreated: true, FilesCopied: 1, PromotionDate: testClock(),
		Verdict: &model.Verdict{Valid: true}}
	if s.fail[trackID] {
		outcome.RecordCreated = false
		outcome.FilesCopied = 0
		outcome.Err = "copy blobs: injected failure"
	}
	return outcome
}

func candidate(id string, age time.Duration) *model.Track {
	return &model.Track{
		ID:          id,
		CreatedDate: testClock().Add(-age),
		Title:       "Track " + id,
		FileURL:     "https://media.dev.test/audio/" + id + "/file.mp3",
		Duration:    180,
		Status:      model.StatusEnhanced,
	}
}

func newOrchestrator(store *testsupport.MemoryTrackStore, p TrackPromoter, blobs *testsupport.MemoryBlobs) *Orchestrator {
	v := validator.New(blobs, 24*time.Hour).WithClock(testClock)
	return New(store, p, v, 10, 1, zap.NewNop())
}

func TestRunBatchOldestFirstBounded(t *testing.T) {
	store := testsupport.NewMemoryTrackStore()
	store.Seed(
		candidate("t3", 30*time.Hour),
		candidate("t1", 72*time.Hour),
		candidate("t2", 48*time.Hour),
	)
	stub := &stubPromoter{}
	orch := newOrchestrator(store, stub, testsupport.NewMemoryBlobs())

	summary, err := orch.RunBatch(context.Background(), 2)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if summary.Scanned != 3 {
		t.Fatalf("scanned %d, want 3", summary.Scanned)
	}
	if len(stub.calls) != 2 || stub.calls[0] != "t1" || stub.calls[1] != "t2" {
		t.Fatalf("expected oldest-first bound of [t1 t2], got %v", stub.calls)
	}
	if summary.Promoted != 2 || summary.Failed != 0 {
		t.Fatalf("summary promoted=%d failed=%d", summary.Promoted, summary.Failed)
	}
	if len(summary.Outcomes) != 2 || summary.Outcomes[0].TrackID != "t1" {
		t.Fatalf("outcomes must keep candidate order, got %+v", summary.Outcomes)
	}
}

func TestRunBatchSkipsIneligible(t *testing.T) {
	store := testsupport.NewMemoryTrackStore()
	unready := candidate("t1", 72*time.Hour)
	unready.Duration = 0 // never enriched with a real duration
	store.Seed(unready, candidate("t2", 48*time.Hour))
	stub := &stubPromoter{}
	orch := newOrchestrator(store, stub, testsupport.NewMemoryBlobs())

	summary, err := orch.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(stub.calls) != 1 || stub.calls[0] != "t2" {
		t.Fatalf("expected only t2 promoted, got %v", stub.calls)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].TrackID != "t1" {
		t.Fatalf("expected t1 skipped, got %+v", summary.Skipped)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	store := testsupport.NewMemoryTrackStore()
	store.Seed(candidate("t1", 72*time.Hour), candidate("t2", 48*time.Hour), candidate("t3", 30*time.Hour))
	stub := &stubPromoter{fail: map[string]bool{"t2": true}}
	orch := newOrchestrator(store, stub, testsupport.NewMemoryBlobs())

	summary, err := orch.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if summary.Promoted != 2 || summary.Failed != 1 {
		t.Fatalf("summary promoted=%d failed=%d, want 2/1", summary.Promoted, summary.Failed)
	}
	// t2's failure did not stop t3, and t1's success stands.
	if len(stub.calls) != 3 {
		t.Fatalf("expected all three attempts, got %v", stub.calls)
	}
}

func TestHandleActionPromoteTrack(t *testing.T) {
	store := testsupport.NewMemoryTrackStore()
	store.Seed(candidate("t1", 72*time.Hour))
	stub := &stubPromoter{}
	orch := newOrchestrator(store, stub, testsupport.NewMemoryBlobs())

	resp, err := orch.HandleAction(context.Background(), ActionRequest{Action: ActionPromoteTrack, TrackID: "t1"})
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	if resp.Body.Promotion == nil || !resp.Body.Promotion.Succeeded() {
		t.Fatalf("expected promotion outcome in body: %+v", resp.Body)
	}

	// A failed promotion with a verdict maps to a client error.
	stub.fail = map[string]bool{"t2": true}
	resp, err = orch.HandleAction(context.Background(), ActionRequest{Action: ActionPromoteTrack, TrackID: "t2"})
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestHandleActionValidateTrack(t *testing.T) {
	store := testsupport.NewMemoryTrackStore()
	store.Seed(candidate("t1", 72*time.Hour))
	blobs := testsupport.NewMemoryBlobs("audio/t1/file.mp3")
	orch := newOrchestrator(store, &stubPromoter{}, blobs)

	resp, err := orch.HandleAction(context.Background(), ActionRequest{Action: ActionValidateTrack, TrackID: "t1"})
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body.Validation == nil || !resp.Body.Validation.Valid {
		t.Fatalf("expected valid verdict, got %+v", resp)
	}

	resp, err = orch.HandleAction(context.Background(), ActionRequest{Action: ActionValidateTrack, TrackID: "missing"})
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestHandleActionRejectTrack(t *testing.T) {
	store := testsupport.NewMemoryTrackStore()
	store.Seed(candidate("t1", 72*time.Hour))
	orch := newOrchestrator(store, &stubPromoter{}, testsupport.NewMemoryBlobs("audio/t1/file.mp3"))

	resp, err := orch.HandleAction(context.Background(), ActionRequest{Action: ActionRejectTrack, TrackID: "t1"})
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	if store.Get("t1").Status != model.StatusRejected {
		t.Fatalf("track not marked rejected")
	}

	// A rejected track fails validation and never enters a batch again.
	resp, err = orch.HandleAction(context.Background(), ActionRequest{Action: ActionValidateTrack, TrackID: "t1"})
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}
	if resp.Body.Validation == nil || resp.Body.Validation.Valid {
		t.Fatalf("rejected track must fail validation, got %+v", resp.Body.Validation)
	}
	summary, err := orch.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if summary.Scanned != 0 {
		t.Fatalf("rejected track must not be scanned as a candidate, got %d", summary.Scanned)
	}

	resp, err = orch.HandleAction(context.Background(), ActionRequest{Action: ActionRejectTrack, TrackID: "missing"})
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown track must 404, got %+v err=%v", resp, err)
	}
}

func TestHandleActionRejectsMalformedRequests(t *testing.T) {
	orch := newOrchestrator(testsupport.NewMemoryTrackStore(), &stubPromoter{}, testsupport.NewMemoryBlobs())

	resp, err := orch.HandleAction(context.Background(), ActionRequest{Action: ActionPromoteTrack})
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing trackId must 400, got %+v err=%v", resp, err)
	}
	resp, err = orch.HandleAction(context.Background(), ActionRequest{Action: "delete_everything"})
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action must 400, got %+v err=%v", resp, err)
	}
}
