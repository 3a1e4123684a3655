// Package repository wraps all SQL used by the pipeline and the browse API.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voislab/soundflow/internal/model"
)

// ErrNotFound is returned when a track id does not exist in this store.
var ErrNotFound = errors.New("track not found")

// TrackRepository gives typed access to one environment's metadata store.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// NewTrackRepository constructs a repository over an open pool.
func NewTrackRepository(pool *pgxpool.Pool) *TrackRepository {
	return &TrackRepository{pool: pool}
}

const trackColumns = `id, created_date, title, artist, genre, description, tags,
	filename, file_url, file_size, duration, bitrate, status, thumbnail_url,
	file_hash, promoted_at, updated_at`

// Create inserts the initial record written by the ingestion handler.
func (r *TrackRepository) Create(ctx context.Context, t *model.Track) error {
	now := time.Now().UTC()
	t.UpdatedAt = now
	if t.Genre == "" {
		t.Genre = model.GenreUnknown
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracks (`+trackColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, t.ID, t.CreatedDate, t.Title, t.Artist, t.Genre, t.Description, t.Tags,
		t.Filename, t.FileURL, t.FileSize, t.Duration, t.Bitrate, t.Status,
		t.ThumbnailURL, t.FileHash, t.PromotedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	return nil
}

// GetByID returns the track with the given id. Ids are unique per store, so a
// single-row lookup over the composite key space is safe.
func (r *TrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+trackColumns+`
		FROM tracks WHERE id=$1
		LIMIT 1
	`, id)
	return scanTrack(row)
}

// Exists reports whether a record with this id is present. The promoter uses
// it against the target store for its idempotence check.
func (r *TrackRepository) Exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tracks WHERE id=$1)`, id).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("track exists: %w", err)
	}
	return found, nil
}

// Upsert writes a full record, overwriting any existing row with the same
// composite key. Used for the target-environment write during promotion;
// repeated promotions converge on the same row.
func (r *TrackRepository) Upsert(ctx context.Context, t *model.Track) error {
	t.UpdatedAt = time.Now().UTC()
	if t.Tags == nil {
		t.Tags = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracks (`+trackColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id, created_date) DO UPDATE SET
			title=EXCLUDED.title, artist=EXCLUDED.artist, genre=EXCLUDED.genre,
			description=EXCLUDED.description, tags=EXCLUDED.tags,
			filename=EXCLUDED.filename, file_url=EXCLUDED.file_url,
			file_size=EXCLUDED.file_size, duration=EXCLUDED.duration,
			bitrate=EXCLUDED.bitrate, status=EXCLUDED.status,
			thumbnail_url=EXCLUDED.thumbnail_url, file_hash=EXCLUDED.file_hash,
			promoted_at=EXCLUDED.promoted_at, updated_at=EXCLUDED.updated_at
	`, t.ID, t.CreatedDate, t.Title, t.Artist, t.Genre, t.Description, t.Tags,
		t.Filename, t.FileURL, t.FileSize, t.Duration, t.Bitrate, t.Status,
		t.ThumbnailURL, t.FileHash, t.PromotedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	return nil
}

// UpdateEnrichment applies enricher output and moves the record to enhanced.
// Zero-valued fields leave the stored value untouched, so a file with sparse
// embedded tags does not blank out ingestion-derived metadata. A record that
// already reached promoted or rejected is left alone: a late or retried
// enrichment must never reverse a terminal status.
func (r *TrackRepository) UpdateEnrichment(ctx context.Context, id string, created time.Time, e model.Enrichment) error {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE tracks SET
			title = CASE WHEN $3 <> '' THEN $3 ELSE title END,
			artist = CASE WHEN $4 <> '' THEN $4 ELSE artist END,
			genre = CASE WHEN $5 <> '' THEN $5 ELSE genre END,
			description = CASE WHEN $6 <> '' THEN $6 ELSE description END,
			tags = CASE WHEN cardinality($7::text[]) > 0 THEN $7 ELSE tags END,
			duration = CASE WHEN $8 > 0 THEN $8 ELSE duration END,
			bitrate = CASE WHEN $9 > 0 THEN $9 ELSE bitrate END,
			thumbnail_url = CASE WHEN $10 <> '' THEN $10 ELSE thumbnail_url END,
			status = $11,
			updated_at = $12
		WHERE id=$1 AND created_date=$2
		  AND status NOT IN ('promoted', 'rejected')
	`, id, created, e.Title, e.Artist, e.Genre, e.Description, tags,
		e.Duration, e.Bitrate, e.ThumbnailURL, model.StatusEnhanced, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			// Terminal record; the enrichment quietly does not apply.
			return nil
		}
		return ErrNotFound
	}
	return nil
}

// MarkPromoted records the terminal source-side transition. Only the promoter
// calls this.
func (r *TrackRepository) MarkPromoted(ctx context.Context, id string, created time.Time, at time.Time) error {
	return r.markStatus(ctx, id, created, model.StatusPromoted, &at)
}

// MarkRejected flags a track that permanently failed validation.
func (r *TrackRepository) MarkRejected(ctx context.Context, id string, created time.Time) error {
	return r.markStatus(ctx, id, created, model.StatusRejected, nil)
}

func (r *TrackRepository) markStatus(ctx context.Context, id string, created time.Time, status model.Status, promotedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tracks SET status=$3, promoted_at=COALESCE($4, promoted_at), updated_at=$5
		WHERE id=$1 AND created_date=$2
	`, id, created, status, promotedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatuses returns up to limit tracks in any of the given statuses,
// oldest first. Backed by the (status, created_date) index.
func (r *TrackRepository) ListByStatuses(ctx context.Context, statuses []model.Status, limit int) ([]*model.Track, error) {
	vals := make([]string, len(statuses))
	for i, s := range statuses {
		vals[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+trackColumns+`
		FROM tracks WHERE status = ANY($1)
		ORDER BY created_date ASC
		LIMIT $2
	`, vals, limit)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()
	return scanTracks(rows)
}

// ListByGenre serves the browse API via the (genre, created_date) index.
func (r *TrackRepository) ListByGenre(ctx context.Context, genre string, limit int) ([]*model.Track, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+trackColumns+`
		FROM tracks WHERE genre=$1
		ORDER BY created_date DESC
		LIMIT $2
	`, genre, limit)
	if err != nil {
		return nil, fmt.Errorf("list by genre: %w", err)
	}
	defer rows.Close()
	return scanTracks(rows)
}

// RecordFailure durably notes an ingestion abort so blob listings can be
// reconciled against the store later.
func (r *TrackRepository) RecordFailure(ctx context.Context, objectKey, msg string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processing_failures (id, object_key, error_message, created_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), objectKey, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func scanTrack(row pgx.Row) (*model.Track, error) {
	var t model.Track
	err := row.Scan(&t.ID, &t.CreatedDate, &t.Title, &t.Artist, &t.Genre,
		&t.Description, &t.Tags, &t.Filename, &t.FileURL, &t.FileSize,
		&t.Duration, &t.Bitrate, &t.Status, &t.ThumbnailURL, &t.FileHash,
		&t.PromotedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan track: %w", err)
	}
	return &t, nil
}

func scanTracks(rows pgx.Rows) ([]*model.Track, error) {
	var out []*model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return out, nil
}
