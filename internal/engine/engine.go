// Package engine schedules crawl jobs: it seeds queues, claims items with
// politeness and robots checks, fetches and extracts pages, and discovers
// follow-up links. Durable state lives in internal/store; the engine owns
// only in-memory scheduler caches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"webx/internal/extract"
	"webx/internal/fetch"
	"webx/internal/robots"
	"webx/internal/store"
	"webx/internal/urlutil"
	"webx/pkg/cache"
	"webx/pkg/logging"
)

var (
	ErrNoValidSeeds = errors.New("no valid seed urls")
	ErrUnknownJob   = errors.New("unknown crawl job")
)

const (
	seedPriorityBase    = 140
	sitemapPriority     = 120
	sitemapOriginLimit  = 6
	sitemapCacheTTL     = 6 * time.Hour
	jobFailureThreshold = 25
	retryDelay          = 1500 * time.Millisecond
	perfSampleCap       = 50
)

// domainPerformance tracks a running mean fetch latency per host, capped at
// perfSampleCap samples so recent behavior keeps weight.
type domainPerformance struct {
	avgLatencyMs int
	samples      int
}

// Engine drives all active crawl jobs. One ProcessActiveJobsOnce call runs at
// most one queue item per job.
type Engine struct {
	store   *store.Store
	fetcher *fetch.Fetcher
	robots  *robots.Client
	logger  logging.Logger

	mu              sync.Mutex
	domainLastFetch map[string]time.Time
	domainPerf      map[string]*domainPerformance
	initializedJobs map[string]bool

	sitemaps *cache.Cache
}

func New(s *store.Store, fetcher *fetch.Fetcher, robotsClient *robots.Client, logger logging.Logger) *Engine {
	return &Engine{
		store:           s,
		fetcher:         fetcher,
		robots:          robotsClient,
		logger:          logger,
		domainLastFetch: make(map[string]time.Time),
		domainPerf:      make(map[string]*domainPerformance),
		initializedJobs: make(map[string]bool),
		sitemaps:        cache.New(cache.Options{TTL: sitemapCacheTTL, MaxEntries: 256}, cache.PrometheusHooks("sitemaps")),
	}
}

// Start validates and normalizes seeds, creates the job, and enqueues the
// seeds at depth 0. Seed priority decreases with position so earlier seeds
// are crawled first.
func (e *Engine) Start(ctx context.Context, seedURLs []string, input *OptionsInput) (string, error) {
	seeds := normalizeSeeds(seedURLs)
	if len(seeds) == 0 {
		return "", ErrNoValidSeeds
	}

	opts := input.normalize()
	jobID, err := e.store.CreateCrawlJob(ctx, seeds, opts)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	for i, seed := range seeds {
		priority := seedPriorityBase - i
		if priority < 1 {
			priority = 1
		}
		if err := e.store.EnqueueURL(ctx, jobID, seed, 0, priority); err != nil {
			return "", fmt.Errorf("enqueue seed %s: %w", seed, err)
		}
	}

	if err := e.store.SetCrawlJobStatus(ctx, jobID, store.JobRunning); err != nil {
		return "", fmt.Errorf("mark job running: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"job_id":    jobID,
		"seeds":     len(seeds),
		"max_pages": opts.MaxPages,
		"max_depth": opts.MaxDepth,
	}).Info("Crawl job started")
	return jobID, nil
}

// Status returns the job with queue counts, ErrUnknownJob when absent.
func (e *Engine) Status(ctx context.Context, jobID string) (*store.CrawlJobStatus, error) {
	status, err := e.store.GetCrawlJobStatus(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownJob
	}
	return status, err
}

// Next returns pages already fetched for a job, newest first.
func (e *Engine) Next(ctx context.Context, jobID string, limit int) ([]*extract.Page, error) {
	if _, err := e.store.GetCrawlJob(ctx, jobID); errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownJob
	} else if err != nil {
		return nil, err
	}
	return e.store.GetCrawlPages(ctx, jobID, limit)
}

// ProcessActiveJobsOnce runs one scheduling step for every active job.
// Per-job errors are logged, never propagated, so one broken job cannot
// starve the rest.
func (e *Engine) ProcessActiveJobsOnce(ctx context.Context) {
	jobs, err := e.store.ListActiveCrawlJobs(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to list active crawl jobs")
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := e.processJobOnce(ctx, job); err != nil {
			e.logger.WithError(err).WithField("job_id", job.ID).Error("Crawl step failed")
		}
	}
}

func (e *Engine) processJobOnce(ctx context.Context, job *store.CrawlJob) error {
	opts := optionsFromSnapshot(job.Options)

	status, err := e.store.GetCrawlJobStatus(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("job status: %w", err)
	}
	if status.Stats.Done >= opts.MaxPages {
		return e.store.SetCrawlJobStatus(ctx, job.ID, store.JobFinished)
	}

	e.initializeJobFromSitemaps(ctx, job, opts)

	item, err := e.store.ClaimNextQueueItem(ctx, job.ID)
	if errors.Is(err, store.ErrNotFound) {
		status, err := e.store.GetCrawlJobStatus(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("job status: %w", err)
		}
		if status.Stats.Pending == 0 && status.Stats.Processing == 0 {
			return e.store.SetCrawlJobStatus(ctx, job.ID, store.JobFinished)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	queueClaims.Inc()

	if item.Depth > opts.MaxDepth {
		return e.store.CompleteQueueItem(ctx, item.ID)
	}

	if err := e.processItem(ctx, job, opts, item); err != nil {
		if failErr := e.store.FailQueueItem(ctx, item.ID, err.Error(), retryDelay); failErr != nil {
			return fmt.Errorf("fail item after %v: %w", err, failErr)
		}
		pagesFetched.WithLabelValues("error").Inc()
		e.logger.WithError(err).WithFields(logging.Fields{
			"job_id": job.ID,
			"url":    item.URL,
		}).Warn("Queue item failed")

		status, statusErr := e.store.GetCrawlJobStatus(ctx, job.ID)
		if statusErr != nil {
			return fmt.Errorf("job status after failure: %w", statusErr)
		}
		if status.Stats.Failed > jobFailureThreshold && status.Stats.Done == 0 {
			return e.store.SetCrawlJobStatus(ctx, job.ID, store.JobFailed)
		}
	}
	return nil
}

// processItem runs the fetch pipeline for one claimed item. Any returned
// error sends the item through the retry path.
func (e *Engine) processItem(ctx context.Context, job *store.CrawlJob, opts Options, item *store.QueueItem) error {
	normalized, ok := urlutil.Normalize(item.URL, nil)
	if !ok || !e.shouldQueue(normalized, opts, job.SeedURLs) {
		return e.store.CompleteQueueItem(ctx, item.ID)
	}

	var rules *robots.Rules
	if opts.RespectRobots {
		rules = e.robots.Rules(ctx, originOf(normalized))
		if !robots.CanCrawl(normalized, rules) {
			robotsBlocked.Inc()
			return e.store.CompleteQueueItem(ctx, item.ID)
		}
	}

	domain := hostOf(normalized)
	if err := e.politenessWait(ctx, domain, opts, rules); err != nil {
		return err
	}

	started := time.Now()
	result, err := e.fetcher.Get(ctx, normalized)
	latency := time.Since(started)
	fetchDuration.Observe(latency.Seconds())
	if err != nil {
		return err
	}
	e.recordLatency(domain, latency)

	page, err := extract.PageFromHTML(extract.Input{
		URL:    result.FinalURL,
		HTML:   result.Body,
		Mode:   opts.Mode,
		Source: extract.SourceStatic,
	})
	if err != nil {
		return fmt.Errorf("extract %s: %w", result.FinalURL, err)
	}

	if e.isUnchanged(ctx, page, item.URL) {
		unchangedSkips.Inc()
	} else if err := e.store.SavePage(ctx, page); err != nil {
		return err
	}

	if err := e.store.CompleteQueueItem(ctx, item.ID); err != nil {
		return err
	}
	pagesFetched.WithLabelValues("ok").Inc()

	e.mu.Lock()
	e.domainLastFetch[domain] = time.Now()
	e.mu.Unlock()

	e.discoverLinks(ctx, job, opts, item, page)
	return nil
}

// isUnchanged reports whether the freshly extracted page matches the stored
// snapshot's content hash. The response URL wins; the requested URL is the
// fallback for redirect chains.
func (e *Engine) isUnchanged(ctx context.Context, page *extract.Page, requestedURL string) bool {
	previous, err := e.store.GetLatestPageByURL(ctx, page.URL)
	if errors.Is(err, store.ErrNotFound) && page.URL != requestedURL {
		previous, err = e.store.GetLatestPageByURL(ctx, requestedURL)
	}
	if err != nil {
		return false
	}
	return previous.ContentHash != "" && previous.ContentHash == page.ContentHash
}

// discoverLinks enqueues the page's outgoing links scored by relevance.
// Enqueue failures are logged and skipped; discovery must not fail the item
// that already completed.
func (e *Engine) discoverLinks(ctx context.Context, job *store.CrawlJob, opts Options, item *store.QueueItem, page *extract.Page) {
	nextDepth := item.Depth + 1
	if nextDepth > opts.MaxDepth || len(job.SeedURLs) == 0 {
		return
	}

	seedHost := hostOf(job.SeedURLs[0])
	seedKeywords := urlutil.ExtractSeedKeywords(job.SeedURLs)

	for _, link := range page.Links {
		normalized, ok := urlutil.Normalize(link.URL, nil)
		if !ok || !e.shouldQueue(normalized, opts, job.SeedURLs) {
			continue
		}
		priority := urlutil.ScoreDiscoveredURL(normalized, nextDepth, seedHost, seedKeywords)
		if err := e.store.EnqueueURL(ctx, job.ID, normalized, nextDepth, priority); err != nil {
			e.logger.WithError(err).WithField("url", normalized).Warn("Failed to enqueue discovered link")
			continue
		}
		linksDiscovered.Inc()
	}
}

// initializeJobFromSitemaps seeds the queue from sitemap URLs for the first
// origins of a job. Runs at most once per job per process; all failures are
// swallowed.
func (e *Engine) initializeJobFromSitemaps(ctx context.Context, job *store.CrawlJob, opts Options) {
	if !opts.SeedFromSitemaps {
		return
	}
	e.mu.Lock()
	if e.initializedJobs[job.ID] {
		e.mu.Unlock()
		return
	}
	e.initializedJobs[job.ID] = true
	e.mu.Unlock()

	seen := make(map[string]bool)
	var origins []string
	for _, seed := range job.SeedURLs {
		if len(origins) >= sitemapOriginLimit {
			break
		}
		origin := originOf(seed)
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true
		origins = append(origins, origin)
	}

	// Discovery hits the network per origin; run origins in parallel and
	// enqueue serially afterwards (the store is single-writer).
	discovered := make([][]string, len(origins))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, origin := range origins {
		group.Go(func() error {
			discovered[i] = e.sitemapURLs(groupCtx, origin, opts)
			return nil
		})
	}
	_ = group.Wait()

	for _, urls := range discovered {
		for _, sitemapURL := range urls {
			normalized, ok := urlutil.Normalize(sitemapURL, nil)
			if !ok || !e.shouldQueue(normalized, opts, job.SeedURLs) {
				continue
			}
			if err := e.store.EnqueueURL(ctx, job.ID, normalized, 0, sitemapPriority); err != nil {
				e.logger.WithError(err).WithField("url", normalized).Debug("Sitemap enqueue failed")
			}
		}
	}
}

// sitemapURLs discovers page URLs for an origin, cached for 6 hours.
func (e *Engine) sitemapURLs(ctx context.Context, origin string, opts Options) []string {
	value, _, err := e.sitemaps.Get(ctx, origin, func(ctx context.Context, key string) (interface{}, bool, error) {
		var rules *robots.Rules
		if opts.RespectRobots {
			rules = e.robots.Rules(ctx, key)
		}
		return e.robots.DiscoverSitemapURLs(ctx, rules, key, opts.MaxSitemapURLs), true, nil
	})
	if err != nil {
		return nil
	}
	urls, _ := value.([]string)
	if len(urls) > opts.MaxSitemapURLs {
		urls = urls[:opts.MaxSitemapURLs]
	}
	return urls
}

// politenessWait sleeps the remaining per-domain delay. The sleep aborts on
// context cancellation so worker shutdown stays prompt.
func (e *Engine) politenessWait(ctx context.Context, domain string, opts Options, rules *robots.Rules) error {
	base := time.Duration(opts.PerDomainDelayMs) * time.Millisecond
	delay := robots.SuggestedDelay(base, rules, e.avgLatency(domain), opts.AdaptiveDelay)

	e.mu.Lock()
	lastFetch := e.domainLastFetch[domain]
	e.mu.Unlock()

	if lastFetch.IsZero() {
		return nil
	}
	wait := delay - time.Since(lastFetch)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) avgLatency(domain string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	perf, ok := e.domainPerf[domain]
	if !ok {
		return 0
	}
	return time.Duration(perf.avgLatencyMs) * time.Millisecond
}

// recordLatency folds a fetch latency into the capped running mean.
func (e *Engine) recordLatency(domain string, latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	perf, ok := e.domainPerf[domain]
	if !ok {
		perf = &domainPerformance{}
		e.domainPerf[domain] = perf
	}
	n := perf.samples
	latencyMs := int(latency.Milliseconds())
	perf.avgLatencyMs = (perf.avgLatencyMs*n + latencyMs + (n+1)/2) / (n + 1)
	if perf.samples < perfSampleCap {
		perf.samples++
	}
}

// shouldQueue applies crawlability, nuisance, and domain policy checks.
func (e *Engine) shouldQueue(rawURL string, opts Options, seedURLs []string) bool {
	if !urlutil.IsLikelyCrawlable(rawURL) || urlutil.IsNuisance(rawURL) {
		return false
	}
	host := hostOf(rawURL)
	if host == "" {
		return false
	}

	allowed := opts.AllowDomains
	if len(allowed) == 0 {
		for _, seed := range seedURLs {
			if seedHost := hostOf(seed); seedHost != "" {
				allowed = append(allowed, seedHost)
			}
		}
	}
	if !containsHost(allowed, host) {
		return false
	}
	return !containsHost(opts.DenyDomains, host)
}

func normalizeSeeds(seedURLs []string) []string {
	var seeds []string
	seen := make(map[string]bool)
	for _, raw := range seedURLs {
		normalized, ok := urlutil.Normalize(raw, nil)
		if !ok || seen[normalized] {
			continue
		}
		seen[normalized] = true
		seeds = append(seeds, normalized)
	}
	return seeds
}

func containsHost(hosts []string, host string) bool {
	for _, candidate := range hosts {
		if strings.EqualFold(candidate, host) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

func originOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
