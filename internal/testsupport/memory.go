// Package testsupport provides in-memory fakes for the pipeline's store and
// transport dependencies.
package testsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/repository"
)

// MemoryTrackStore is an in-memory track metadata store keyed by id.
type MemoryTrackStore struct {
	mu       sync.Mutex
	tracks   map[string]*model.Track
	failures []string

	// CreateErr, when set, is returned by Create.
	CreateErr error
	// UpsertErr, when set, is returned by Upsert.
	UpsertErr error
	// MarkPromotedErr, when set, is returned by MarkPromoted.
	MarkPromotedErr error
}

// NewMemoryTrackStore builds an empty store.
func NewMemoryTrackStore() *MemoryTrackStore {
	return &MemoryTrackStore{tracks: make(map[string]*model.Track)}
}

// Seed inserts tracks directly.
func (s *MemoryTrackStore) Seed(tracks ...*model.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tracks {
		s.tracks[t.ID] = t.Clone()
	}
}

// Create writes a new track record.
func (s *MemoryTrackStore) Create(ctx context.Context, t *model.Track) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t.ID]; ok {
		return fmt.Errorf("track %s already exists", t.ID)
	}
	s.tracks[t.ID] = t.Clone()
	return nil
}

// GetByID returns a copy of the stored track.
func (s *MemoryTrackStore) GetByID(ctx context.Context, id string) (*model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.Clone(), nil
}

// Exists reports whether the id is present.
func (s *MemoryTrackStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[id]
	return ok, nil
}

// Upsert inserts or replaces a track.
func (s *MemoryTrackStore) Upsert(ctx context.Context, t *model.Track) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[t.ID] = t.Clone()
	return nil
}

// MarkPromoted flips the status to promoted and stamps the promotion time.
func (s *MemoryTrackStore) MarkPromoted(ctx context.Context, id string, created time.Time, at time.Time) error {
	if s.MarkPromotedErr != nil {
		return s.MarkPromotedErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = model.StatusPromoted
	t.PromotedAt = &at
	return nil
}

// MarkRejected flips the status to rejected.
func (s *MemoryTrackStore) MarkRejected(ctx context.Context, id string, created time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = model.StatusRejected
	return nil
}

// ListByStatuses returns matching tracks ordered by CreatedDate ascending.
func (s *MemoryTrackStore) ListByStatuses(ctx context.Context, statuses []model.Status, limit int) ([]*model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[model.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var out []*model.Track
	for _, t := range s.tracks {
		if wanted[t.Status] {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.Before(out[j].CreatedDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordFailure remembers the audit message.
func (s *MemoryTrackStore) RecordFailure(ctx context.Context, objectKey, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, objectKey+": "+msg)
	return nil
}

// Failures returns recorded failure messages.
func (s *MemoryTrackStore) Failures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failures...)
}

// Get returns the stored track without the not-found error dance.
func (s *MemoryTrackStore) Get(id string) *model.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// Len returns the number of stored tracks.
func (s *MemoryTrackStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// MemoryBlobs fakes the source-to-target blob mirror and the blob existence
// probe. Keys are plain strings; Mirror records what was copied.
type MemoryBlobs struct {
	mu     sync.Mutex
	keys   []string
	copied []string

	// FailKey, when non-empty, makes Mirror fail for that exact key.
	FailKey string
}

// NewMemoryBlobs builds a blob fake holding the given source keys.
func NewMemoryBlobs(keys ...string) *MemoryBlobs {
	return &MemoryBlobs{keys: keys}
}

// HasPrefix reports whether any key starts with prefix.
func (b *MemoryBlobs) HasPrefix(ctx context.Context, prefix string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range b.keys {
		if strings.HasPrefix(k, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// List returns source keys under the prefix.
func (b *MemoryBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, k := range b.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Mirror records the copy, or fails if the key matches FailKey.
func (b *MemoryBlobs) Mirror(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailKey != "" && key == b.FailKey {
		return fmt.Errorf("mirror %s: injected failure", key)
	}
	b.copied = append(b.copied, key)
	return nil
}

// Copied returns the keys Mirror accepted.
func (b *MemoryBlobs) Copied() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.copied...)
}

// MemoryNotifier collects published outcomes.
type MemoryNotifier struct {
	mu       sync.Mutex
	outcomes []model.Outcome

	// Err, when set, is returned by Publish after recording the outcome.
	Err error
}

// Publish records the outcome.
func (n *MemoryNotifier) Publish(ctx context.Context, outcome model.Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return n.Err
}

// Outcomes returns everything published so far.
func (n *MemoryNotifier) Outcomes() []model.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Outcome(nil), n.outcomes...)
}

// MemoryUploads fakes the upload-area intake for ingestion tests.
type MemoryUploads struct {
	mu       sync.Mutex
	objects  map[string][]byte
	accepted map[string]string // mediaKey -> uploadKey

	// AcceptErr, when set, is returned by Accept.
	AcceptErr error
}

// NewMemoryUploads builds an upload fake from key -> content.
func NewMemoryUploads(objects map[string][]byte) *MemoryUploads {
	if objects == nil {
		objects = make(map[string][]byte)
	}
	return &MemoryUploads{objects: objects, accepted: make(map[string]string)}
}

// Size returns the object's length.
func (u *MemoryUploads) Size(ctx context.Context, key string) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[key]
	if !ok {
		return 0, fmt.Errorf("no object %s", key)
	}
	return int64(len(data)), nil
}

// Peek returns the leading n bytes.
func (u *MemoryUploads) Peek(ctx context.Context, key string, n int64) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	if int64(len(data)) < n {
		n = int64(len(data))
	}
	return append([]byte(nil), data[:n]...), nil
}

// Hash returns the content SHA-256.
func (u *MemoryUploads) Hash(ctx context.Context, key string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[key]
	if !ok {
		return "", fmt.Errorf("no object %s", key)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Accept records the copy into the media area.
func (u *MemoryUploads) Accept(ctx context.Context, uploadKey, mediaKey, trackID, filename, fileHash string) error {
	if u.AcceptErr != nil {
		return u.AcceptErr
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.accepted[mediaKey] = uploadKey
	return nil
}

// MediaURL returns a deterministic locator.
func (u *MemoryUploads) MediaURL(key string) string {
	return "https://media.test/" + key
}

// Accepted returns the mediaKey -> uploadKey copies.
func (u *MemoryUploads) Accepted() map[string]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]string, len(u.accepted))
	for k, v := range u.accepted {
		out[k] = v
	}
	return out
}

// MemoryEnrichQueue records enrichment requests.
type MemoryEnrichQueue struct {
	mu      sync.Mutex
	entries []string
}

// EnqueueEnrich records the request as "trackID objectKey".
func (q *MemoryEnrichQueue) EnqueueEnrich(ctx context.Context, trackID, objectKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, trackID+" "+objectKey)
	return nil
}

// Entries returns the recorded requests.
func (q *MemoryEnrichQueue) Entries() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.entries...)
}
