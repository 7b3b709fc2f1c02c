package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestClientFetchesAndCachesRules(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	}))
	defer server.Close()

	client := NewClient(server.Client(), "WebxBot/1.0", nil)

	rules := client.Rules(context.Background(), server.URL)
	if len(rules.Disallow) != 1 || rules.Disallow[0] != "/private" {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	client.Rules(context.Background(), server.URL)
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected a single robots.txt fetch, got %d", hits)
	}
}

func TestClientDegradesToEmptyRulesOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.Client(), "WebxBot/1.0", nil)
	rules := client.Rules(context.Background(), server.URL)
	if len(rules.Allow) != 0 || len(rules.Disallow) != 0 || rules.CrawlDelayMs != 0 {
		t.Fatalf("expected empty ruleset on 500, got %+v", rules)
	}

	client = NewClient(nil, "WebxBot/1.0", nil)
	rules = client.Rules(context.Background(), "http://127.0.0.1:1")
	if len(rules.Disallow) != 0 {
		t.Fatalf("expected empty ruleset on connection failure, got %+v", rules)
	}
}

func TestDiscoverSitemapURLsExpandsIndex(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-pages.xml</loc></sitemap>
</sitemapindex>`, server.URL)
		case "/sitemap-pages.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/docs/a</loc></url>
  <url><loc>%s/docs/b</loc></url>
  <url><loc>%s/docs/c</loc></url>
</urlset>`, server.URL, server.URL, server.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.Client(), "WebxBot/1.0", nil)
	urls := client.DiscoverSitemapURLs(context.Background(), &Rules{}, server.URL, 200)

	if len(urls) != 3 {
		t.Fatalf("expected 3 page URLs, got %d: %v", len(urls), urls)
	}
	if urls[0] != server.URL+"/docs/a" {
		t.Fatalf("unexpected first URL: %s", urls[0])
	}
}

func TestDiscoverSitemapURLsHonorsLimit(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><urlset>`)
		for i := 0; i < 50; i++ {
			fmt.Fprintf(w, "<url><loc>%s/page-%d</loc></url>", server.URL, i)
		}
		fmt.Fprint(w, `</urlset>`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), "WebxBot/1.0", nil)
	urls := client.DiscoverSitemapURLs(context.Background(), &Rules{}, server.URL, 10)
	if len(urls) != 10 {
		t.Fatalf("expected limit of 10 URLs, got %d", len(urls))
	}
}

func TestDiscoverSitemapURLsPrefersRulesSitemaps(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/custom-map.xml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<urlset><url><loc>%s/only</loc></url></urlset>`, server.URL)
	}))
	defer server.Close()

	rules := &Rules{Sitemaps: []string{server.URL + "/custom-map.xml"}}
	client := NewClient(server.Client(), "WebxBot/1.0", nil)
	urls := client.DiscoverSitemapURLs(context.Background(), rules, server.URL, 200)
	if len(urls) != 1 || urls[0] != server.URL+"/only" {
		t.Fatalf("expected the advertised sitemap to be used, got %v", urls)
	}
}
