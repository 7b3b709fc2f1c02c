// Package fetch retrieves pages over plain HTTP and hands them to the
// extractor. Browser-based retrieval lives in internal/session.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"webx/internal/extract"
	"webx/pkg/logging"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 10 << 20
)

// FetchError reports a non-2xx response. Callers distinguish it from
// transport failures with errors.As.
type FetchError struct {
	Status     int
	StatusText string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed: %d %s", e.Status, e.StatusText)
}

// Result is one successful static fetch. FinalURL reflects redirects.
type Result struct {
	FinalURL string
	Body     string
	Status   int
}

// Fetcher is the static HTTP page retriever used by the crawl engine and the
// open operation.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	logger     logging.Logger
}

func NewFetcher(httpClient *http.Client, userAgent string, logger logging.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Get retrieves rawURL following redirects. Non-2xx statuses return a
// *FetchError.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		FinalURL: finalURL,
		Body:     string(body),
		Status:   resp.StatusCode,
	}, nil
}

// OpenStatic fetches a URL and extracts it in one step. The page URL is the
// redirect-final URL, not the one requested.
func (f *Fetcher) OpenStatic(ctx context.Context, rawURL string, mode extract.Mode) (*extract.Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("url is required")
	}

	result, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page, err := extract.PageFromHTML(extract.Input{
		URL:    result.FinalURL,
		HTML:   result.Body,
		Mode:   mode,
		Source: extract.SourceStatic,
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", result.FinalURL, err)
	}
	return page, nil
}
