package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"webx/internal/engine"
	"webx/internal/fetch"
	"webx/internal/robots"
	"webx/internal/search"
	"webx/internal/store"
	"webx/pkg/logging"
)

type fakeProvider struct {
	results []search.Result
	err     error
}

func (f *fakeProvider) Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error) {
	return f.results, f.err
}

func newTestAPI(t *testing.T, provider search.Provider) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewLoggerWithService("api-test")
	s, err := store.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fetcher := fetch.NewFetcher(nil, "WebxBot/1.0 (test)", logger)
	robotsClient := robots.NewClient(nil, "WebxBot/1.0 (test)", logger)
	eng := engine.New(s, fetcher, robotsClient, logger)

	router := gin.New()
	NewAPI(s, eng, fetcher, provider, nil, logger).RegisterRoutes(router)
	return router, s
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCrawlStartAndStatus(t *testing.T) {
	router, _ := newTestAPI(t, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/crawl", `{"seedUrls":["https://example.com/docs"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.JobID == "" || started.Status != "running" {
		t.Fatalf("unexpected start response: %+v", started)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/crawl/"+started.JobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var status store.CrawlJobStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != store.JobRunning || status.Stats.Pending != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCrawlStartRejectsBadRequests(t *testing.T) {
	router, _ := newTestAPI(t, nil)

	if w := doRequest(router, http.MethodPost, "/api/v1/crawl", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing seeds should be 400, got %d", w.Code)
	}
	if w := doRequest(router, http.MethodPost, "/api/v1/crawl", `{"seedUrls":["ftp://nope"]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid seeds should be 400, got %d", w.Code)
	}
}

func TestCrawlStatusUnknownJob(t *testing.T) {
	router, _ := newTestAPI(t, nil)

	if w := doRequest(router, http.MethodGet, "/api/v1/crawl/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown job should be 404, got %d", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/api/v1/crawl/nope/pages", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown job pages should be 404, got %d", w.Code)
	}
}

func TestOpenPersistsPage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><title>Docs Home</title><body><h1>Docs Home</h1></body></html>`)
	}))
	defer upstream.Close()

	router, s := newTestAPI(t, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/open", fmt.Sprintf(`{"url":%q}`, upstream.URL+"/docs"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := s.GetLatestPageByURL(context.Background(), upstream.URL+"/docs")
	if err != nil {
		t.Fatalf("page not persisted: %v", err)
	}
	if stored.Title != "Docs Home" {
		t.Fatalf("unexpected stored title %q", stored.Title)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/pages/"+stored.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for stored page, got %d", w.Code)
	}
}

func TestOpenUpstreamFailureIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	router, _ := newTestAPI(t, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/open", fmt.Sprintf(`{"url":%q}`, upstream.URL+"/gone"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusNotFound {
		t.Fatalf("expected upstream status 404, got %d", body.Status)
	}
}

func TestQueryPagesRequiresQ(t *testing.T) {
	router, _ := newTestAPI(t, nil)

	if w := doRequest(router, http.MethodGet, "/api/v1/pages", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("missing q should be 400, got %d", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/api/v1/pages?q=nothing", ""); w.Code != http.StatusOK {
		t.Fatalf("valid query should be 200, got %d", w.Code)
	}
}

func TestGetPageNotFound(t *testing.T) {
	router, _ := newTestAPI(t, nil)

	if w := doRequest(router, http.MethodGet, "/api/v1/pages/deadbeefdeadbeef", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown page should be 404, got %d", w.Code)
	}
}

func TestSearchWithoutProvider(t *testing.T) {
	router, _ := newTestAPI(t, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/search", `{"query":"anything"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestSearchReturnsProviderResults(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{{Title: "Hit", URL: "https://example.com"}}}
	router, s := newTestAPI(t, provider)

	w := doRequest(router, http.MethodPost, "/api/v1/search", `{"query":"example"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Results []search.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Title != "Hit" {
		t.Fatalf("unexpected results: %+v", body.Results)
	}

	if _, err := s.GetMeta(context.Background(), "last_success_search"); err != nil {
		t.Fatalf("last_success_search not recorded: %v", err)
	}
}

func TestSessionRoutesWithoutManager(t *testing.T) {
	router, _ := newTestAPI(t, nil)

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/v1/sessions", `{"name":"x"}`},
		{http.MethodPost, "/api/v1/sessions/x/open", `{"url":"https://example.com"}`},
		{http.MethodGet, "/api/v1/sessions/x/actions", ""},
		{http.MethodPost, "/api/v1/sessions/x/execute", `{"actionId":"y"}`},
		{http.MethodPost, "/api/v1/sessions/x/save", ""},
	}
	for _, tc := range cases {
		if w := doRequest(router, tc.method, tc.path, tc.body); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s should be 503, got %d", tc.method, tc.path, w.Code)
		}
	}

	// Listing reads the store directly and works without a browser.
	if w := doRequest(router, http.MethodGet, "/api/v1/sessions", ""); w.Code != http.StatusOK {
		t.Fatalf("session list should be 200, got %d", w.Code)
	}
}
