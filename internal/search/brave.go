package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"webx/pkg/logging"
)

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// BraveProvider queries the Brave Search web API. The subscription token
// travels in a header, not the query string.
type BraveProvider struct {
	apiKey string
	apiURL string
	client *http.Client
	logger logging.Logger
}

// NewBraveProvider creates a Brave search provider.
func NewBraveProvider(apiKey, apiURL string, logger logging.Logger) (*BraveProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("brave api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultBraveURL
	}
	return &BraveProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		client: newHTTPClient(),
		logger: logger,
	}, nil
}

type braveResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

// Search executes a query against the Brave Search API.
func (p *BraveProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	endpoint, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse brave url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	if opts.Limit > 0 {
		q.Set("count", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Language != "" {
		q.Set("search_lang", opts.Language)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request failed: %w", err)
	}

	var decoded braveResponse
	if err := decodeResults(resp, "brave", &decoded); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(decoded.Web.Results))
	for _, item := range decoded.Web.Results {
		results = append(results, makeResult(item.Title, item.URL, item.Description, item.Score))
	}
	p.logger.WithFields(logging.Fields{
		"provider": "brave",
		"results":  len(results),
	}).Debug("Search completed")
	return trimToLimit(results, opts.Limit), nil
}
