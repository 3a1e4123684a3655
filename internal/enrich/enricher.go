// Package enrich runs the best-effort second pass over ingested audio:
// exact duration and bitrate via ffprobe, embedded tags and artwork via the
// tag parser.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/validator"
)

// Media reads ingested audio and stores extracted artwork.
type Media interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	URL(key string) string
}

// Records loads and updates track metadata.
type Records interface {
	GetByID(ctx context.Context, id string) (*model.Track, error)
	UpdateEnrichment(ctx context.Context, id string, created time.Time, e model.Enrichment) error
}

// Enricher performs the enrichment pass.
type Enricher struct {
	media   Media
	records Records
	prober  Prober
	log     *zap.Logger
}

// New constructs an Enricher.
func New(media Media, records Records, prober Prober, log *zap.Logger) *Enricher {
	return &Enricher{media: media, records: records, prober: prober, log: log}
}

// Enrich downloads the track's audio, extracts what it can, and moves the
// record to enhanced. Absent tags or artwork are fine; unreadable audio is
// the only hard failure, leaving the record at processed.
func (e *Enricher) Enrich(ctx context.Context, trackID, objectKey string) error {
	track, err := e.records.GetByID(ctx, trackID)
	if err != nil {
		return fmt.Errorf("load track %s: %w", trackID, err)
	}
	if track.Status == model.StatusPromoted || track.Status == model.StatusRejected {
		// A retried or late enrichment must never reverse a terminal status.
		e.log.Info("skipping enrichment for terminal record",
			zap.String("trackId", trackID), zap.String("status", string(track.Status)))
		return nil
	}

	tmpPath, err := e.download(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("download %s: %w", objectKey, err)
	}
	defer os.Remove(tmpPath)

	probe, err := e.prober.Probe(ctx, tmpPath)
	if err != nil {
		return fmt.Errorf("probe %s: %w", objectKey, err)
	}

	enrichment := model.Enrichment{
		Duration: probe.DurationSeconds,
		Bitrate:  probe.Bitrate,
	}
	e.applyTags(ctx, track, tmpPath, &enrichment)

	if err := e.records.UpdateEnrichment(ctx, trackID, track.CreatedDate, enrichment); err != nil {
		return fmt.Errorf("apply enrichment for %s: %w", trackID, err)
	}
	e.log.Info("enriched track",
		zap.String("trackId", trackID),
		zap.Int("duration", enrichment.Duration),
		zap.Int("bitrate", enrichment.Bitrate))
	return nil
}

func (e *Enricher) download(ctx context.Context, objectKey string) (string, error) {
	obj, err := e.media.Open(ctx, objectKey)
	if err != nil {
		return "", err
	}
	defer obj.Close()
	tmp, err := os.CreateTemp("", "soundflow-enrich-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// applyTags fills the enrichment from embedded tags where present. Tag
// parsing failures only mean the file carries no readable tag block.
func (e *Enricher) applyTags(ctx context.Context, track *model.Track, tmpPath string, enrichment *model.Enrichment) {
	f, err := os.Open(tmpPath)
	if err != nil {
		e.log.Warn("reopen audio for tags", zap.Error(err))
		return
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		e.log.Debug("no readable tags", zap.String("trackId", track.ID), zap.Error(err))
		return
	}

	enrichment.Title = strings.TrimSpace(meta.Title())
	enrichment.Artist = strings.TrimSpace(meta.Artist())
	enrichment.Genre = strings.TrimSpace(meta.Genre())
	enrichment.Description = strings.TrimSpace(meta.Comment())
	if album := strings.TrimSpace(meta.Album()); album != "" {
		enrichment.Tags = []string{album}
	}

	if pic := meta.Picture(); pic != nil && len(pic.Data) > 0 {
		if url := e.storeArtwork(ctx, track.ID, pic); url != "" {
			enrichment.ThumbnailURL = url
		}
	}
}

func (e *Enricher) storeArtwork(ctx context.Context, trackID string, pic *tag.Picture) string {
	ext := pic.Ext
	if ext == "" {
		ext = extFromMIME(pic.MIMEType)
	}
	key := validator.ArtworkPrefix(trackID) + "cover." + ext
	contentType := pic.MIMEType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if err := e.media.Put(ctx, key, bytes.NewReader(pic.Data), int64(len(pic.Data)), contentType); err != nil {
		e.log.Warn("store artwork", zap.String("trackId", trackID), zap.Error(err))
		return ""
	}
	return e.media.URL(key)
}

func extFromMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}
