package blobstore

import (
	"context"
	"time"
)

// Mirror copies a track's blobs from the source media area to the target
// media area under identical keys. Per-object copies are idempotent, so a
// retry after partial failure simply overwrites what already landed.
type Mirror struct {
	Source *Store
	Target *Store

	// SourceEnv labels provenance metadata on promoted objects.
	SourceEnv string
}

// List returns the source keys under a track prefix.
func (m *Mirror) List(ctx context.Context, prefix string) ([]string, error) {
	return m.Source.List(ctx, prefix)
}

// Mirror copies one object source -> target, same key.
func (m *Mirror) Mirror(ctx context.Context, key string) error {
	meta := map[string]string{
		"promoted-from":  m.SourceEnv,
		"promotion-date": time.Now().UTC().Format(time.RFC3339),
	}
	return m.Target.CopyFrom(ctx, m.Source, key, key, meta)
}
