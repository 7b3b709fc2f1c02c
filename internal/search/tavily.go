package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"webx/pkg/logging"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyProvider queries the Tavily Search API. Raw page content is
// requested so results carry more than a snippet.
type TavilyProvider struct {
	apiKey string
	apiURL string
	client *http.Client
	logger logging.Logger
}

// NewTavilyProvider creates a Tavily search provider.
func NewTavilyProvider(apiKey, apiURL string, logger logging.Logger) (*TavilyProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("tavily api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultTavilyURL
	}
	return &TavilyProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		client: newHTTPClient(),
		logger: logger,
	}, nil
}

type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth,omitempty"`
	MaxResults        int    `json:"max_results,omitempty"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// content prefers the raw page text over the snippet when present.
func (r tavilyResult) content() string {
	if strings.TrimSpace(r.RawContent) != "" {
		return r.RawContent
	}
	return r.Content
}

// Search executes a query against the Tavily Search API.
func (p *TavilyProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	payload, err := json.Marshal(tavilyRequest{
		APIKey:            p.apiKey,
		Query:             query,
		SearchDepth:       opts.SearchDepth,
		MaxResults:        opts.Limit,
		IncludeRawContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}

	var decoded tavilyResponse
	if err := decodeResults(resp, "tavily", &decoded); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		results = append(results, makeResult(item.Title, item.URL, item.content(), item.Score))
	}
	p.logger.WithFields(logging.Fields{
		"provider": "tavily",
		"results":  len(results),
	}).Debug("Search completed")
	return trimToLimit(results, opts.Limit), nil
}
