package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"webx/internal/extract"
)

// PageHit is a query result with its position-derived relevance score.
type PageHit struct {
	Page  *extract.Page `json:"page"`
	Score float64       `json:"score"`
}

// SavePage upserts a page and replaces its outgoing link set in one
// transaction.
func (s *Store) SavePage(ctx context.Context, page *extract.Page) error {
	pageJSON, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save page: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pages (id, url, canonical_url, title, fetched_at, content_hash,
			extractor_version, mode, source, page_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			url = excluded.url,
			canonical_url = excluded.canonical_url,
			title = excluded.title,
			fetched_at = excluded.fetched_at,
			content_hash = excluded.content_hash,
			extractor_version = excluded.extractor_version,
			mode = excluded.mode,
			source = excluded.source,
			page_json = excluded.page_json
	`, page.ID, page.URL, nullable(page.CanonicalURL), page.Title, page.FetchedAt,
		nullable(page.ContentHash), page.ExtractorVersion, string(page.Mode),
		string(page.Source), string(pageJSON))
	if err != nil {
		return fmt.Errorf("upsert page %s: %w", page.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE from_page_id = ?`, page.ID); err != nil {
		return fmt.Errorf("clear links for %s: %w", page.ID, err)
	}
	for _, link := range page.Links {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO links (from_page_id, to_url, text, rel, is_internal)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (from_page_id, to_url) DO UPDATE SET
				text = excluded.text,
				rel = excluded.rel,
				is_internal = excluded.is_internal
		`, page.ID, link.URL, link.Text, nullable(link.Rel), boolToInt(link.IsInternal))
		if err != nil {
			return fmt.Errorf("upsert link %s -> %s: %w", page.ID, link.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save page: %w", err)
	}
	return nil
}

// GetPageByID returns the stored page, ErrNotFound when absent.
func (s *Store) GetPageByID(ctx context.Context, id string) (*extract.Page, error) {
	var pageJSON string
	err := s.db.QueryRowContext(ctx, `SELECT page_json FROM pages WHERE id = ?`, id).Scan(&pageJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, err)
	}
	return unmarshalPage(pageJSON)
}

// GetLatestPageByURL returns the most recent snapshot of a URL.
func (s *Store) GetLatestPageByURL(ctx context.Context, url string) (*extract.Page, error) {
	var pageJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT page_json FROM pages WHERE url = ?
		ORDER BY fetched_at DESC LIMIT 1
	`, url).Scan(&pageJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest page %s: %w", url, err)
	}
	return unmarshalPage(pageJSON)
}

// QueryPages runs a substring search over titles and serialized pages,
// newest first. Scores decay linearly with rank.
func (s *Store) QueryPages(ctx context.Context, text string, limit int) ([]PageHit, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(text) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT page_json FROM pages
		WHERE title LIKE ? ESCAPE '\' OR page_json LIKE ? ESCAPE '\'
		ORDER BY fetched_at DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var hits []PageHit
	for rows.Next() {
		var pageJSON string
		if err := rows.Scan(&pageJSON); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page, err := unmarshalPage(pageJSON)
		if err != nil {
			return nil, err
		}
		score := 1 - 0.05*float64(len(hits))
		if score < 0 {
			score = 0
		}
		hits = append(hits, PageHit{Page: page, Score: score})
	}
	return hits, rows.Err()
}

func unmarshalPage(pageJSON string) (*extract.Page, error) {
	var page extract.Page
	if err := json.Unmarshal([]byte(pageJSON), &page); err != nil {
		return nil, fmt.Errorf("unmarshal page: %w", err)
	}
	return &page, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
