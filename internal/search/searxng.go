package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"webx/pkg/logging"
)

// SearxngProvider queries a self-hosted SearXNG instance over its JSON API.
type SearxngProvider struct {
	apiURL string
	client *http.Client
	logger logging.Logger
}

// NewSearxngProvider creates a SearXNG provider.
func NewSearxngProvider(apiURL string, logger logging.Logger) (*SearxngProvider, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("searxng api url is required")
	}
	return &SearxngProvider{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: newHTTPClient(),
		logger: logger,
	}, nil
}

type searxngResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

// Search executes a query against a SearXNG instance.
func (p *SearxngProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	endpoint, err := url.Parse(p.apiURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("parse searxng url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("format", "json")
	if opts.Limit > 0 {
		q.Set("count", fmt.Sprintf("%d", opts.Limit))
	}
	if len(opts.Engines) > 0 {
		q.Set("engines", strings.Join(opts.Engines, ","))
	}
	if len(opts.Categories) > 0 {
		q.Set("categories", strings.Join(opts.Categories, ","))
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create searxng request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request failed: %w", err)
	}

	var decoded searxngResponse
	if err := decodeResults(resp, "searxng", &decoded); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		results = append(results, makeResult(item.Title, item.URL, item.Content, item.Score))
	}
	p.logger.WithFields(logging.Fields{
		"provider": "searxng",
		"results":  len(results),
	}).Debug("Search completed")
	return trimToLimit(results, opts.Limit), nil
}
