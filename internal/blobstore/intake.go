package blobstore

import (
	"context"
	"fmt"
	"time"
)

// Intake binds the upload area to the source media area for the ingestion
// handler: validation reads happen against uploads, the accepted object is
// copied into media.
type Intake struct {
	Uploads *Store
	Media   *Store
}

// Size returns the upload object's size.
func (i *Intake) Size(ctx context.Context, key string) (int64, error) {
	return i.Uploads.Size(ctx, key)
}

// Peek reads the upload object's leading bytes for the security scan.
func (i *Intake) Peek(ctx context.Context, key string, n int64) ([]byte, error) {
	return i.Uploads.Peek(ctx, key, n)
}

// Hash computes the upload object's content hash.
func (i *Intake) Hash(ctx context.Context, key string) (string, error) {
	return i.Uploads.Hash(ctx, key)
}

// Accept copies a validated upload into the managed media area, stamping
// provenance metadata onto the media object.
func (i *Intake) Accept(ctx context.Context, uploadKey, mediaKey, trackID, filename, fileHash string) error {
	meta := map[string]string{
		"track-id":          trackID,
		"original-filename": filename,
		"file-hash":         fileHash,
		"processed-date":    time.Now().UTC().Format(time.RFC3339),
	}
	if err := i.Media.CopyFrom(ctx, i.Uploads, uploadKey, mediaKey, meta); err != nil {
		return fmt.Errorf("accept upload: %w", err)
	}
	return nil
}

// MediaURL returns the canonical locator of a media object.
func (i *Intake) MediaURL(key string) string {
	return i.Media.URL(key)
}
