// Package database owns pgx pool construction and schema bootstrap for one
// environment's metadata store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the tracks and processing_failures tables if needed.
// Keeping the migration in code lets a fresh environment pair bootstrap with
// nothing but credentials.
//
// (id, created_date) is the composite key; the two secondary indexes back the
// orchestrator's candidate scan and the browse API's genre filter.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS tracks (
	id TEXT NOT NULL,
	created_date TIMESTAMPTZ NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	genre TEXT NOT NULL DEFAULT 'unknown',
	description TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	filename TEXT NOT NULL,
	file_url TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	duration INT NOT NULL DEFAULT 0,
	bitrate INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	file_hash TEXT NOT NULL DEFAULT '',
	promoted_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (id, created_date)
);
CREATE INDEX IF NOT EXISTS idx_tracks_status_created ON tracks(status, created_date);
CREATE INDEX IF NOT EXISTS idx_tracks_genre_created ON tracks(genre, created_date);
CREATE TABLE IF NOT EXISTS processing_failures (
	id TEXT PRIMARY KEY,
	object_key TEXT NOT NULL,
	error_message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
