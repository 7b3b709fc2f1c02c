// Package store owns all durable state: pages, links, crawl jobs, the crawl
// queue, browser sessions, the action log, and schema metadata. It is backed
// by an embedded SQLite database in WAL mode.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"webx/pkg/logging"
)

var ErrNotFound = errors.New("record not found")

const schemaVersion = "1"

// Store wraps the embedded database. The engine is in-process and
// single-writer; the pool is capped at one connection so that in-memory test
// databases and WAL writers behave identically.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path and runs migrations.
// Pass ":memory:" for an ephemeral store.
func Open(path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the schema. It is idempotent and records the schema version
// in schema_meta.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			id                TEXT PRIMARY KEY,
			url               TEXT NOT NULL,
			canonical_url     TEXT,
			title             TEXT NOT NULL,
			fetched_at        TEXT NOT NULL,
			content_hash      TEXT,
			extractor_version TEXT NOT NULL,
			mode              TEXT NOT NULL,
			source            TEXT NOT NULL,
			page_json         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_url ON pages (url)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages (fetched_at DESC)`,
		`CREATE TABLE IF NOT EXISTS links (
			from_page_id TEXT NOT NULL REFERENCES pages (id) ON DELETE CASCADE,
			to_url       TEXT NOT NULL,
			text         TEXT NOT NULL,
			rel          TEXT,
			is_internal  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (from_page_id, to_url)
		)`,
		`CREATE TABLE IF NOT EXISTS crawl_jobs (
			id            TEXT PRIMARY KEY,
			status        TEXT NOT NULL,
			seed_url_json TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			finished_at   TEXT,
			options_json  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS crawl_queue (
			id            TEXT PRIMARY KEY,
			job_id        TEXT NOT NULL REFERENCES crawl_jobs (id) ON DELETE CASCADE,
			url           TEXT NOT NULL,
			depth         INTEGER NOT NULL,
			priority      INTEGER NOT NULL,
			next_fetch_at INTEGER NOT NULL,
			domain        TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			retries       INTEGER NOT NULL DEFAULT 0,
			last_error    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_job_status ON crawl_queue (job_id, status, next_fetch_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_job_url ON crawl_queue (job_id, url)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			name               TEXT PRIMARY KEY,
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL,
			storage_state_path TEXT NOT NULL,
			notes              TEXT,
			headed             INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS actions_log (
			id           TEXT PRIMARY KEY,
			session_name TEXT NOT NULL,
			url          TEXT NOT NULL,
			action_json  TEXT NOT NULL,
			result_json  TEXT NOT NULL,
			created_at   TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return s.SetMeta(ctx, "db_schema_version", schemaVersion)
}

// SetMeta upserts a schema_meta key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta reads a schema_meta key, ErrNotFound when absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

// RecordSuccess stamps last_success_<kind> with the current time. Kinds in
// use: search, open, action, crawl.
func (s *Store) RecordSuccess(ctx context.Context, kind string) error {
	return s.SetMeta(ctx, "last_success_"+kind, time.Now().UTC().Format(time.RFC3339))
}

// hash16 returns the first 16 hex chars of sha-256(s), the shared id
// derivation for jobs and queue items.
func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
