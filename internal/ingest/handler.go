// Package ingest validates newly uploaded audio objects and writes their
// initial metadata records.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/voislab/soundflow/internal/blobstore"
	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/validator"
)

// supportedExtensions maps recognized audio extensions to their content types.
var supportedExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
}

// securityScanBytes is how much of the object head gets scanned.
const securityScanBytes = 1024

// suspiciousPatterns are payload markers that never belong in audio data.
var suspiciousPatterns = [][]byte{
	[]byte("<script"),
	[]byte("javascript:"),
	[]byte("<?php"),
	[]byte("#!/bin/"),
	[]byte("cmd.exe"),
	[]byte("powershell"),
}

// ErrSecurityScan marks an upload rejected by the content scan. Not retriable.
var ErrSecurityScan = errors.New("security scan rejected upload")

// ErrSizeOutOfBounds marks an upload outside the configured size window.
// Retrying cannot change the object's size, so this is permanent too.
var ErrSizeOutOfBounds = errors.New("upload size out of bounds")

// Uploads reads the upload-area object under validation.
type Uploads interface {
	Size(ctx context.Context, key string) (int64, error)
	Peek(ctx context.Context, key string, n int64) ([]byte, error)
	Hash(ctx context.Context, key string) (string, error)
	Accept(ctx context.Context, uploadKey, mediaKey, trackID, filename, fileHash string) error
	MediaURL(key string) string
}

// Records writes the initial track record and failure audit rows.
type Records interface {
	Create(ctx context.Context, t *model.Track) error
	RecordFailure(ctx context.Context, objectKey, msg string) error
}

// EnrichQueue schedules the optional second pass.
type EnrichQueue interface {
	EnqueueEnrich(ctx context.Context, trackID, objectKey string) error
}

// Handler processes object-created events for the upload area.
type Handler struct {
	intake  Uploads
	records Records
	enrich  EnrichQueue
	min     int64
	max     int64
	log     *zap.Logger

	titleCaser cases.Caser
}

// New constructs an ingestion Handler. enrich may be nil when no queue is
// wired (the record then stays at processed until enrichment is requested).
func New(intake Uploads, records Records, enrich EnrichQueue, minBytes, maxBytes int64, log *zap.Logger) *Handler {
	return &Handler{
		intake:     intake,
		records:    records,
		enrich:     enrich,
		min:        minBytes,
		max:        maxBytes,
		log:        log,
		titleCaser: cases.Title(language.Und),
	}
}

// HandleObject ingests one upload-area object. Non-audio keys are skipped
// silently since not every upload event is audio. Returns the created track
// on success and nil, nil on a silent skip.
func (h *Handler) HandleObject(ctx context.Context, event blobstore.ObjectEvent) (*model.Track, error) {
	key := event.Key
	filename := path.Base(key)
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := supportedExtensions[ext]; !ok {
		h.log.Debug("skipping non-audio object", zap.String("key", key))
		return nil, nil
	}

	size, err := h.intake.Size(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stat upload %s: %w", key, err)
	}
	if size < h.min || size > h.max {
		msg := fmt.Sprintf("file size %d outside [%d, %d]", size, h.min, h.max)
		h.log.Warn("rejecting upload", zap.String("key", key), zap.String("reason", msg))
		if err := h.records.RecordFailure(ctx, key, msg); err != nil {
			h.log.Error("record failure row", zap.Error(err))
		}
		return nil, fmt.Errorf("ingest %s: %s: %w", key, msg, ErrSizeOutOfBounds)
	}

	head, err := h.intake.Peek(ctx, key, securityScanBytes)
	if err != nil {
		return nil, fmt.Errorf("peek upload %s: %w", key, err)
	}
	if pattern := scanHead(head); pattern != "" {
		h.log.Warn("security scan rejected upload",
			zap.String("key", key), zap.String("pattern", pattern))
		if err := h.records.RecordFailure(ctx, key, "suspicious pattern: "+pattern); err != nil {
			h.log.Error("record failure row", zap.Error(err))
		}
		return nil, fmt.Errorf("ingest %s: %w", key, ErrSecurityScan)
	}

	trackID := uuid.NewString()
	title, artist := h.deriveTitle(filename)
	fileHash, err := h.intake.Hash(ctx, key)
	if err != nil {
		// Hash failure does not block ingestion; integrity checks just lose
		// their reference point for this track.
		h.log.Warn("hash upload failed", zap.String("key", key), zap.Error(err))
		fileHash = ""
	}

	mediaKey := validator.TrackPrefix(trackID) + filename
	if err := h.intake.Accept(ctx, key, mediaKey, trackID, filename, fileHash); err != nil {
		return nil, fmt.Errorf("copy to media area: %w", err)
	}

	track := &model.Track{
		ID:          trackID,
		CreatedDate: time.Now().UTC(),
		Title:       title,
		Artist:      artist,
		Genre:       model.GenreUnknown,
		Filename:    filename,
		FileURL:     h.intake.MediaURL(mediaKey),
		FileSize:    size,
		Duration:    0, // populated by the enricher
		Status:      model.StatusProcessed,
		FileHash:    fileHash,
	}
	if err := h.records.Create(ctx, track); err != nil {
		// The media blob already landed; the store write is retriable and the
		// blob/store listing reconciliation covers the inconsistency window.
		return nil, fmt.Errorf("write track record: %w", err)
	}

	h.log.Info("ingested upload",
		zap.String("trackId", trackID),
		zap.String("key", key),
		zap.Int64("size", size))

	if h.enrich != nil {
		if err := h.enrich.EnqueueEnrich(ctx, trackID, mediaKey); err != nil {
			h.log.Error("enqueue enrichment", zap.String("trackId", trackID), zap.Error(err))
		}
	}
	return track, nil
}

// scanHead returns the first suspicious pattern found, or "".
func scanHead(head []byte) string {
	lowered := bytes.ToLower(head)
	for _, pattern := range suspiciousPatterns {
		if bytes.Contains(lowered, pattern) {
			return string(pattern)
		}
	}
	return ""
}

// deriveTitle turns a filename into a best-effort title, splitting an
// "Artist - Title" pattern when present.
func (h *Handler) deriveTitle(filename string) (title, artist string) {
	name := strings.TrimSuffix(filename, path.Ext(filename))
	for _, sep := range []string{"_", ".", "-"} {
		name = strings.ReplaceAll(name, sep, " ")
	}
	name = strings.Join(strings.Fields(name), " ")
	title = h.titleCaser.String(name)

	// The separator replacement above already ate " - "; split on the raw
	// filename instead so "Artist - Title.mp3" keeps both halves.
	raw := strings.TrimSuffix(filename, path.Ext(filename))
	if parts := strings.SplitN(raw, " - ", 2); len(parts) == 2 {
		artist = strings.TrimSpace(parts[0])
		title = h.titleCaser.String(strings.TrimSpace(parts[1]))
	}
	return title, artist
}
