package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"webx/pkg/logging"
)

func TestBraveSearch(t *testing.T) {
	t.Parallel()

	errCh := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "brave-key" {
			errCh <- fmt.Errorf("missing brave api key")
			return
		}
		q := r.URL.Query()
		if got := q.Get("q"); got != "local web automation" {
			errCh <- fmt.Errorf("unexpected query %q", got)
			return
		}
		if got := q.Get("count"); got != "2" {
			errCh <- fmt.Errorf("expected count 2, got %q", got)
			return
		}
		if got := q.Get("search_lang"); got != "en" {
			errCh <- fmt.Errorf("expected search_lang en, got %q", got)
			return
		}
		resp := braveResponse{}
		resp.Web.Results = []braveResult{
			{Title: "First", URL: "https://first.example", Description: " snippet one ", Score: 0.9},
			{Title: "Second", URL: "https://second.example", Description: "snippet two", Score: 0.7},
			{Title: "Third", URL: "https://third.example", Description: "snippet three", Score: 0.5},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			errCh <- fmt.Errorf("encode response: %w", err)
		}
	}))
	defer server.Close()

	provider, err := NewBraveProvider("brave-key", server.URL, logging.NewLogger())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	results, err := provider.Search(context.Background(), "local web automation", SearchOptions{Limit: 2, Language: "en"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("handler error: %v", err)
	default:
	}
	if len(results) != 2 {
		t.Fatalf("limit should trim results, got %d", len(results))
	}
	if results[0].URL != "https://first.example" {
		t.Fatalf("unexpected url %q", results[0].URL)
	}
	if results[0].Content != "snippet one" {
		t.Fatalf("description should be trimmed, got %q", results[0].Content)
	}
}

func TestBraveSearchRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider, err := NewBraveProvider("brave-key", server.URL, logging.NewLogger())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Search(context.Background(), "anything", SearchOptions{}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestBraveProviderRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewBraveProvider("", "", logging.NewLogger()); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
