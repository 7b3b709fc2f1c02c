package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"webx/internal/extract"
)

// Crawl job statuses.
const (
	JobPending  = "pending"
	JobRunning  = "running"
	JobFinished = "finished"
	JobFailed   = "failed"
)

// Queue item statuses.
const (
	ItemPending    = "pending"
	ItemProcessing = "processing"
	ItemDone       = "done"
	ItemFailed     = "failed"
)

const maxItemRetries = 3

// CrawlJob is a durable crawl request.
type CrawlJob struct {
	ID         string
	Status     string
	SeedURLs   []string
	CreatedAt  time.Time
	FinishedAt *time.Time
	Options    json.RawMessage
}

// QueueStats aggregates queue rows per status for one job.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// CrawlJobStatus is the user-facing view of a job.
type CrawlJobStatus struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	SeedURLs   []string   `json:"seedUrls"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Stats      QueueStats `json:"stats"`
}

// QueueItem is one claimable crawl target.
type QueueItem struct {
	ID          string
	JobID       string
	URL         string
	Depth       int
	Priority    int
	NextFetchAt time.Time
	Domain      string
	Status      string
	Retries     int
	LastError   string
}

// CreateCrawlJob inserts a pending job. The id is derived from the seed set
// and creation time, so repeated starts with identical seeds stay distinct.
func (s *Store) CreateCrawlJob(ctx context.Context, seedURLs []string, options any) (string, error) {
	seedJSON, err := json.Marshal(seedURLs)
	if err != nil {
		return "", fmt.Errorf("marshal seeds: %w", err)
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}

	now := time.Now().UTC()
	id := hash16(strings.Join(seedURLs, "|") + ":" + now.Format(time.RFC3339Nano))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crawl_jobs (id, status, seed_url_json, created_at, options_json)
		VALUES (?, ?, ?, ?, ?)
	`, id, JobPending, string(seedJSON), now.Format(time.RFC3339Nano), string(optionsJSON))
	if err != nil {
		return "", fmt.Errorf("create crawl job: %w", err)
	}
	return id, nil
}

// GetCrawlJob returns the raw job row, ErrNotFound when absent.
func (s *Store) GetCrawlJob(ctx context.Context, id string) (*CrawlJob, error) {
	var (
		job         CrawlJob
		seedJSON    string
		optionsJSON string
		createdAt   string
		finishedAt  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, seed_url_json, created_at, finished_at, options_json
		FROM crawl_jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.Status, &seedJSON, &createdAt, &finishedAt, &optionsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crawl job %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(seedJSON), &job.SeedURLs); err != nil {
		return nil, fmt.Errorf("unmarshal seeds for %s: %w", id, err)
	}
	job.Options = json.RawMessage(optionsJSON)
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", id, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at for %s: %w", id, err)
		}
		job.FinishedAt = &t
	}
	return &job, nil
}

// SetCrawlJobStatus updates a job's status, stamping finished_at on terminal
// transitions.
func (s *Store) SetCrawlJobStatus(ctx context.Context, id, status string) error {
	var result sql.Result
	var err error
	if status == JobFinished || status == JobFailed {
		result, err = s.db.ExecContext(ctx, `
			UPDATE crawl_jobs SET status = ?, finished_at = ? WHERE id = ?
		`, status, time.Now().UTC().Format(time.RFC3339Nano), id)
	} else {
		result, err = s.db.ExecContext(ctx, `UPDATE crawl_jobs SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("set job %s status: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveCrawlJobs returns pending and running jobs, oldest first.
func (s *Store) ListActiveCrawlJobs(ctx context.Context) ([]*CrawlJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM crawl_jobs WHERE status IN (?, ?) ORDER BY created_at ASC
	`, JobPending, JobRunning)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]*CrawlJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetCrawlJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// EnqueueURL adds a crawl target. Re-enqueueing the same URL for a job is a
// no-op; the (job_id, url) unique index makes insert-or-ignore the contract.
func (s *Store) EnqueueURL(ctx context.Context, jobID, rawURL string, depth, priority int) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse queue url %s: %w", rawURL, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO crawl_queue
			(id, job_id, url, depth, priority, next_fetch_at, domain, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, hash16(jobID+":"+rawURL), jobID, rawURL, depth, priority,
		time.Now().UTC().UnixMilli(), parsed.Host, ItemPending)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", rawURL, err)
	}
	return nil
}

// ClaimNextQueueItem atomically marks the best due pending item as
// processing and returns it. ErrNotFound when nothing is claimable.
func (s *Store) ClaimNextQueueItem(ctx context.Context, jobID string) (*QueueItem, error) {
	var (
		item        QueueItem
		nextFetchAt int64
		lastError   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		UPDATE crawl_queue SET status = ?
		WHERE id = (
			SELECT id FROM crawl_queue
			WHERE job_id = ? AND status = ? AND next_fetch_at <= ?
			ORDER BY priority DESC, depth ASC, next_fetch_at ASC, rowid ASC
			LIMIT 1
		)
		RETURNING id, job_id, url, depth, priority, next_fetch_at, domain, status, retries, last_error
	`, ItemProcessing, jobID, ItemPending, time.Now().UTC().UnixMilli()).Scan(
		&item.ID, &item.JobID, &item.URL, &item.Depth, &item.Priority,
		&nextFetchAt, &item.Domain, &item.Status, &item.Retries, &lastError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim queue item: %w", err)
	}
	item.NextFetchAt = time.UnixMilli(nextFetchAt).UTC()
	item.LastError = lastError.String
	return &item, nil
}

// CompleteQueueItem flips a processing item to done.
func (s *Store) CompleteQueueItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE crawl_queue SET status = ? WHERE id = ?
	`, ItemDone, id)
	if err != nil {
		return fmt.Errorf("complete queue item %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// FailQueueItem records a failure. Items retry with linear backoff until the
// retry budget is exhausted, then stay failed.
func (s *Store) FailQueueItem(ctx context.Context, id, errMsg string, retryDelay time.Duration) error {
	if retryDelay <= 0 {
		retryDelay = 1500 * time.Millisecond
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE crawl_queue SET
			retries = retries + 1,
			last_error = ?,
			status = CASE WHEN retries + 1 >= ? THEN ? ELSE ? END,
			next_fetch_at = CASE WHEN retries + 1 >= ? THEN next_fetch_at
				ELSE ? + (retries + 1) * ? END
		WHERE id = ?
	`, errMsg, maxItemRetries, ItemFailed, ItemPending,
		maxItemRetries, time.Now().UTC().UnixMilli(), retryDelay.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("fail queue item %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCrawlJobStatus returns the job with its per-status queue counts.
func (s *Store) GetCrawlJobStatus(ctx context.Context, id string) (*CrawlJobStatus, error) {
	job, err := s.GetCrawlJob(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM crawl_queue WHERE job_id = ? GROUP BY status
	`, id)
	if err != nil {
		return nil, fmt.Errorf("count queue for %s: %w", id, err)
	}
	defer rows.Close()

	status := &CrawlJobStatus{
		ID:         job.ID,
		Status:     job.Status,
		SeedURLs:   job.SeedURLs,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	for rows.Next() {
		var itemStatus string
		var count int
		if err := rows.Scan(&itemStatus, &count); err != nil {
			return nil, fmt.Errorf("scan queue counts: %w", err)
		}
		switch itemStatus {
		case ItemPending:
			status.Stats.Pending = count
		case ItemProcessing:
			status.Stats.Processing = count
		case ItemDone:
			status.Stats.Done = count
		case ItemFailed:
			status.Stats.Failed = count
		}
	}
	return status, rows.Err()
}

// GetCrawlPages returns pages fetched for a job's completed queue items,
// newest first.
func (s *Store) GetCrawlPages(ctx context.Context, jobID string, limit int) ([]*extract.Page, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.page_json
		FROM crawl_queue q
		JOIN pages p ON p.url = q.url
		WHERE q.job_id = ? AND q.status = ?
		ORDER BY p.fetched_at DESC
		LIMIT ?
	`, jobID, ItemDone, limit)
	if err != nil {
		return nil, fmt.Errorf("get crawl pages for %s: %w", jobID, err)
	}
	defer rows.Close()

	var pages []*extract.Page
	for rows.Next() {
		var pageJSON string
		if err := rows.Scan(&pageJSON); err != nil {
			return nil, fmt.Errorf("scan crawl page: %w", err)
		}
		page, err := unmarshalPage(pageJSON)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
