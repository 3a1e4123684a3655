package enrich

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/model"
)

type stubMedia struct {
	content []byte
	puts    map[string][]byte
}

func (m *stubMedia) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.content)), nil
}

func (m *stubMedia) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[key] = data
	return nil
}

func (m *stubMedia) URL(key string) string { return "https://media.test/" + key }

type stubRecords struct {
	track   *model.Track
	applied *model.Enrichment
}

func (r *stubRecords) GetByID(ctx context.Context, id string) (*model.Track, error) {
	if r.track == nil || r.track.ID != id {
		return nil, errors.New("not found")
	}
	return r.track.Clone(), nil
}

func (r *stubRecords) UpdateEnrichment(ctx context.Context, id string, created time.Time, e model.Enrichment) error {
	r.applied = &e
	return nil
}

type stubProber struct {
	result ProbeResult
	err    error
}

func (p stubProber) Probe(ctx context.Context, path string) (ProbeResult, error) {
	return p.result, p.err
}

func TestEnrichAppliesProbeResult(t *testing.T) {
	records := &stubRecords{track: &model.Track{
		ID:          "t1",
		CreatedDate: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		Status:      model.StatusProcessed,
	}}
	media := &stubMedia{content: []byte("untagged audio bytes")}
	e := New(media, records, stubProber{result: ProbeResult{DurationSeconds: 215, Bitrate: 320000}}, zap.NewNop())

	if err := e.Enrich(context.Background(), "t1", "audio/t1/file.mp3"); err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	if records.applied == nil {
		t.Fatalf("enrichment not applied")
	}
	if records.applied.Duration != 215 || records.applied.Bitrate != 320000 {
		t.Fatalf("probe result not carried: %+v", records.applied)
	}
	// No readable tag block: the tag fields stay zero so existing values hold.
	if records.applied.Title != "" || records.applied.Genre != "" {
		t.Fatalf("expected empty tag fields for untagged audio: %+v", records.applied)
	}
}

func TestEnrichProbeFailureIsHard(t *testing.T) {
	records := &stubRecords{track: &model.Track{ID: "t1", Status: model.StatusProcessed}}
	media := &stubMedia{content: []byte("not audio at all")}
	e := New(media, records, stubProber{err: errors.New("invalid data")}, zap.NewNop())

	if err := e.Enrich(context.Background(), "t1", "audio/t1/file.mp3"); err == nil {
		t.Fatalf("unreadable audio must fail enrichment")
	}
	if records.applied != nil {
		t.Fatalf("no enrichment may be applied after a probe failure")
	}
}

func TestEnrichNeverReversesTerminalStatus(t *testing.T) {
	records := &stubRecords{track: &model.Track{ID: "t1", Status: model.StatusPromoted}}
	// A prober that fails proves the skip happens before any audio work.
	e := New(&stubMedia{}, records, stubProber{err: errors.New("must not probe")}, zap.NewNop())

	if err := e.Enrich(context.Background(), "t1", "audio/t1/file.mp3"); err != nil {
		t.Fatalf("terminal record must be a silent no-op, got %v", err)
	}
	if records.applied != nil {
		t.Fatalf("no enrichment may be applied to a promoted record")
	}

	records.track.Status = model.StatusRejected
	if err := e.Enrich(context.Background(), "t1", "audio/t1/file.mp3"); err != nil {
		t.Fatalf("rejected record must be a silent no-op, got %v", err)
	}
}

func TestEnrichUnknownTrack(t *testing.T) {
	e := New(&stubMedia{}, &stubRecords{}, stubProber{}, zap.NewNop())
	if err := e.Enrich(context.Background(), "missing", "audio/missing/file.mp3"); err == nil {
		t.Fatalf("expected failure for unknown track")
	}
}

func TestExtFromMIME(t *testing.T) {
	cases := map[string]string{
		"image/png":  "png",
		"image/webp": "webp",
		"image/jpeg": "jpg",
		"":           "jpg",
	}
	for mime, want := range cases {
		if got := extFromMIME(mime); got != want {
			t.Errorf("extFromMIME(%q) = %q, want %q", mime, got, want)
		}
	}
}
