package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webx/internal/fetch"
	"webx/internal/robots"
	"webx/internal/store"
	"webx/pkg/logging"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	logger := logging.NewLoggerWithService("engine-test")
	s, err := store.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fetcher := fetch.NewFetcher(nil, "WebxBot/1.0 (test)", logger)
	robotsClient := robots.NewClient(nil, "WebxBot/1.0 (test)", logger)
	return New(s, fetcher, robotsClient, logger), s
}

func fastOptions() *OptionsInput {
	return &OptionsInput{
		PerDomainDelayMs: intPtr(0),
		AdaptiveDelay:    boolPtr(false),
		SeedFromSitemaps: boolPtr(false),
	}
}

func drainJob(t *testing.T, e *Engine, jobID string) *store.CrawlJobStatus {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		e.ProcessActiveJobsOnce(ctx)
		status, err := e.Status(ctx, jobID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if status.Status != store.JobRunning && status.Status != store.JobPending {
			return status
		}
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestStartNormalizesAndDedupesSeeds(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	jobID, err := e.Start(ctx, []string{
		"https://Example.com/docs/",
		"https://example.com/docs",
		"ftp://example.com/skip",
	}, fastOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status, err := e.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != store.JobRunning {
		t.Fatalf("job should be running after start, got %q", status.Status)
	}
	if len(status.SeedURLs) != 1 || status.SeedURLs[0] != "https://example.com/docs" {
		t.Fatalf("seeds not normalized and deduped: %v", status.SeedURLs)
	}
	if status.Stats.Pending != 1 {
		t.Fatalf("expected one queued seed, got %+v", status.Stats)
	}
}

func TestStartNoValidSeeds(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Start(context.Background(), []string{"ftp://nope", "not a url"}, nil); !errors.Is(err, ErrNoValidSeeds) {
		t.Fatalf("expected ErrNoValidSeeds, got %v", err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Status(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
	if _, err := e.Next(context.Background(), "missing", 10); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob from Next, got %v", err)
	}
}

func TestCrawlFollowsLinksToDepthLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/":
			fmt.Fprint(w, `<html><title>Root</title><body>
				<a href="/a">Alpha section</a>
				<a href="/b">Beta section</a>
			</body></html>`)
		case "/a":
			fmt.Fprint(w, `<html><title>Alpha</title><body><a href="/a/deeper">Deeper page</a></body></html>`)
		case "/b":
			fmt.Fprint(w, `<html><title>Beta</title><body><p>Beta body text that is long enough to count as a key paragraph.</p></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	e, _ := newTestEngine(t)
	ctx := context.Background()

	opts := fastOptions()
	opts.MaxDepth = intPtr(1)
	jobID, err := e.Start(ctx, []string{server.URL + "/"}, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := drainJob(t, e, jobID)
	if status.Status != store.JobFinished {
		t.Fatalf("expected finished, got %q", status.Status)
	}
	// Root plus its two links; /a/deeper would be depth 2.
	if status.Stats.Done != 3 {
		t.Fatalf("expected 3 done items, got %+v", status.Stats)
	}

	pages, err := e.Next(ctx, jobID, 10)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 stored pages, got %d", len(pages))
	}
	titles := make(map[string]bool)
	for _, page := range pages {
		titles[page.Title] = true
	}
	for _, want := range []string{"Root", "Alpha", "Beta"} {
		if !titles[want] {
			t.Fatalf("missing page %q in %v", want, titles)
		}
	}
}

func TestRobotsBlockedItemCompletesSilently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		fmt.Fprint(w, `<html><title>Secret</title></html>`)
	}))
	defer server.Close()

	e, _ := newTestEngine(t)
	ctx := context.Background()

	jobID, err := e.Start(ctx, []string{server.URL + "/private/page"}, fastOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := drainJob(t, e, jobID)
	if status.Status != store.JobFinished {
		t.Fatalf("expected finished, got %q", status.Status)
	}
	if status.Stats.Done != 1 || status.Stats.Failed != 0 {
		t.Fatalf("robots block should complete the item: %+v", status.Stats)
	}
	pages, err := e.Next(ctx, jobID, 10)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("blocked url must not be fetched, got %d pages", len(pages))
	}
}

func TestUnchangedContentHashSkipsPersistence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><title>Stable</title><body><p>The page content never changes between fetches in this fixture server.</p></body></html>`)
	}))
	defer server.Close()

	e, s := newTestEngine(t)
	ctx := context.Background()

	opts := fastOptions()
	opts.MaxDepth = intPtr(0)

	for i := 0; i < 2; i++ {
		jobID, err := e.Start(ctx, []string{server.URL + "/page"}, opts)
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if status := drainJob(t, e, jobID); status.Status != store.JobFinished {
			t.Fatalf("run %d: expected finished, got %q", i, status.Status)
		}
	}

	hits, err := s.QueryPages(ctx, "Stable", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("unchanged content must not create new page rows, got %d", len(hits))
	}
}

func TestFetchFailureRetriesItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "flaky", http.StatusInternalServerError)
	}))
	defer server.Close()

	e, _ := newTestEngine(t)
	ctx := context.Background()

	jobID, err := e.Start(ctx, []string{server.URL + "/broken"}, fastOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	e.ProcessActiveJobsOnce(ctx)

	status, err := e.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != store.JobRunning {
		t.Fatalf("one failure should not end the job, got %q", status.Status)
	}
	if status.Stats.Pending != 1 || status.Stats.Failed != 0 {
		t.Fatalf("failed fetch should return item to pending with backoff: %+v", status.Stats)
	}
}

func TestSitemapSeedingEnqueuesPages(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "User-agent: *\nSitemap: %s/sitemap.xml\n", server.URL)
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><urlset>
				<url><loc>%s/from-map-one</loc></url>
				<url><loc>%s/from-map-two</loc></url>
			</urlset>`, server.URL, server.URL)
		default:
			fmt.Fprintf(w, `<html><title>%s</title></html>`, r.URL.Path)
		}
	}))
	defer server.Close()

	e, _ := newTestEngine(t)
	ctx := context.Background()

	opts := fastOptions()
	opts.SeedFromSitemaps = boolPtr(true)
	opts.MaxDepth = intPtr(0)
	jobID, err := e.Start(ctx, []string{server.URL + "/"}, opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := drainJob(t, e, jobID)
	if status.Status != store.JobFinished {
		t.Fatalf("expected finished, got %q", status.Status)
	}
	// Seed plus two sitemap-discovered pages.
	if status.Stats.Done != 3 {
		t.Fatalf("sitemap urls not crawled: %+v", status.Stats)
	}
}

func TestShouldQueueDomainPolicy(t *testing.T) {
	e, _ := newTestEngine(t)
	seeds := []string{"https://example.com/docs"}

	opts := defaultOptions()
	if !e.shouldQueue("https://example.com/docs/page", opts, seeds) {
		t.Fatal("same-host url should queue")
	}
	if e.shouldQueue("https://other.org/docs", opts, seeds) {
		t.Fatal("off-host url should not queue without allowDomains")
	}

	opts.AllowDomains = []string{"other.org"}
	if !e.shouldQueue("https://other.org/docs", opts, seeds) {
		t.Fatal("allowDomains should override the seed host set")
	}
	if e.shouldQueue("https://example.com/docs/page", opts, seeds) {
		t.Fatal("allowDomains replaces, not extends, the seed host set")
	}

	opts = defaultOptions()
	opts.DenyDomains = []string{"example.com"}
	if e.shouldQueue("https://example.com/docs/page", opts, seeds) {
		t.Fatal("denied host should not queue")
	}
}

func TestRecordLatencyRunningMean(t *testing.T) {
	e, _ := newTestEngine(t)

	e.recordLatency("example.com", 100*time.Millisecond)
	e.recordLatency("example.com", 200*time.Millisecond)

	if avg := e.avgLatency("example.com"); avg != 150*time.Millisecond {
		t.Fatalf("expected 150ms running mean, got %v", avg)
	}
	if avg := e.avgLatency("unseen.com"); avg != 0 {
		t.Fatalf("unseen domains have no latency, got %v", avg)
	}
}
