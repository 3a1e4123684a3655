package blobstore

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ObjectEvent describes one newly created object in the upload area.
type ObjectEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ListenUploads subscribes to object-created notifications under the given
// prefix and delivers decoded events until the context is cancelled. Keys
// arrive transport-escaped (encoded spaces), so they are unescaped here once.
func (s *Store) ListenUploads(ctx context.Context, prefix string, log *zap.Logger) <-chan ObjectEvent {
	out := make(chan ObjectEvent)
	notifications := s.client.ListenBucketNotification(ctx, s.bucket, prefix, "", []string{
		"s3:ObjectCreated:*",
	})
	go func() {
		defer close(out)
		for info := range notifications {
			if info.Err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("bucket notification error", zap.Error(info.Err))
				continue
			}
			for _, record := range info.Records {
				key := unescapeKey(record.S3.Object.Key)
				select {
				case out <- ObjectEvent{Bucket: record.S3.Bucket.Name, Key: key}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// unescapeKey reverses the query-style escaping notification payloads apply
// to object keys ("my+track.mp3", "my%20track.mp3").
func unescapeKey(key string) string {
	if unescaped, err := url.QueryUnescape(key); err == nil {
		return unescaped
	}
	// Fall back to the raw key with plus-decoding only.
	return strings.ReplaceAll(key, "+", " ")
}
