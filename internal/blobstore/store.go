// Package blobstore wraps MinIO/S3 access to the upload area and each
// environment's media area.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/voislab/soundflow/internal/config"
)

// Store is typed access to one bucket.
type Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
	region  string
}

// NewClient builds the shared MinIO client from the Config.
func NewClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return client, nil
}

// NewStore wraps one bucket on an existing client.
func NewStore(client *minio.Client, bucket, baseURL, region string) *Store {
	return &Store{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/"), region: region}
}

// Bucket returns the wrapped bucket name.
func (s *Store) Bucket() string { return s.bucket }

// URL returns the canonical public locator for an object key.
func (s *Store) URL(key string) string {
	if s.baseURL == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, key)
	}
	return s.baseURL + "/" + key
}

// EnsureBucket makes sure the bucket exists before use.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads an object.
func (s *Store) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Open returns a reader over the full object.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

// Size returns the object's content length via a HEAD-equivalent call.
func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat object %s: %w", key, err)
	}
	return info.Size, nil
}

// Peek reads at most n leading bytes of the object.
func (s *Store) Peek(ctx context.Context, key string, n int64) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(0, n-1); err != nil {
		return nil, fmt.Errorf("set range: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("get object head %s: %w", key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(io.LimitReader(obj, n))
	if err != nil {
		return nil, fmt.Errorf("read object head %s: %w", key, err)
	}
	return buf, nil
}

// Hash streams the object through SHA-256 for later integrity checks.
func (s *Store) Hash(ctx context.Context, key string) (string, error) {
	obj, err := s.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer obj.Close()
	h := sha256.New()
	if _, err := io.Copy(h, obj); err != nil {
		return "", fmt.Errorf("hash object %s: %w", key, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HasPrefix reports whether at least one object exists under the prefix.
func (s *Store) HasPrefix(ctx context.Context, prefix string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true, MaxKeys: 1}) {
		if obj.Err != nil {
			return false, fmt.Errorf("list prefix %s: %w", prefix, obj.Err)
		}
		return true, nil
	}
	return false, nil
}

// List returns every object key under the prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list prefix %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// CopyFrom server-side copies an object from another store into this one,
// replacing user metadata when meta is non-nil.
func (s *Store) CopyFrom(ctx context.Context, src *Store, srcKey, dstKey string, meta map[string]string) error {
	dst := minio.CopyDestOptions{
		Bucket: s.bucket,
		Object: dstKey,
	}
	if meta != nil {
		dst.UserMetadata = meta
		dst.ReplaceMetadata = true
	}
	if _, err := s.client.CopyObject(ctx, dst, minio.CopySrcOptions{Bucket: src.bucket, Object: srcKey}); err != nil {
		return fmt.Errorf("copy %s/%s -> %s/%s: %w", src.bucket, srcKey, s.bucket, dstKey, err)
	}
	return nil
}
