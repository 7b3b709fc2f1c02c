// Package search wraps external web-search providers behind one interface.
// SearXNG is the default; Brave and Tavily are available for hosted setups.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider defines the interface for web search providers.
type Provider interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error)
}

// Result represents a single search result.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// SearchOptions controls search behavior across providers. Engines,
// Categories, and Language are SearXNG refinements; providers ignore what
// they cannot express.
type SearchOptions struct {
	Limit       int
	Engines     []string
	Categories  []string
	Language    string
	SearchDepth string
}

const requestTimeout = 15 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// decodeResults checks the response status and decodes the provider payload.
// It closes the body.
func decodeResults(resp *http.Response, provider string, v interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s request failed with status %d", provider, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}

// makeResult normalizes one provider row into the shared Result shape.
func makeResult(title, rawURL, content string, score float64) Result {
	return Result{
		Title:   title,
		URL:     rawURL,
		Content: strings.TrimSpace(content),
		Score:   score,
	}
}

// trimToLimit enforces the caller's limit. Not every provider honors a
// result-count parameter server-side.
func trimToLimit(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
