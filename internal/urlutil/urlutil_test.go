package urlutil

import (
	"net/url"
	"strings"
	"testing"
)

func TestNormalizeStripsTrackingAndSortsQuery(t *testing.T) {
	got, ok := Normalize("https://Example.com/docs/page/?utm_source=x&b=2&a=1#section", nil)
	if !ok {
		t.Fatal("expected URL to normalize")
	}
	if got != "https://example.com/docs/page?a=1&b=2" {
		t.Fatalf("unexpected normalized URL: %q", got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"https://Example.com//a//b/?z=1&a=2&utm_campaign=x",
		"http://example.com:80/",
		"https://example.com:443/path/",
		"https://example.com/?fbclid=abc&gclid=def",
	}
	for _, input := range inputs {
		once, ok := Normalize(input, nil)
		if !ok {
			t.Fatalf("normalize(%q) failed", input)
		}
		twice, ok := Normalize(once, nil)
		if !ok {
			t.Fatalf("normalize(normalize(%q)) failed", input)
		}
		if once != twice {
			t.Fatalf("normalize not idempotent for %q: %q != %q", input, once, twice)
		}
		if strings.Contains(twice, "utm_") {
			t.Fatalf("tracking params survived normalization: %q", twice)
		}
	}
}

func TestNormalizeRejectsNonHTTP(t *testing.T) {
	for _, input := range []string{"ftp://example.com/file", "mailto:x@example.com", "javascript:void(0)", "://bad"} {
		if _, ok := Normalize(input, nil); ok {
			t.Fatalf("expected %q to be rejected", input)
		}
	}
}

func TestNormalizeDropsDefaultPorts(t *testing.T) {
	got, _ := Normalize("http://example.com:80/a", nil)
	if got != "http://example.com/a" {
		t.Fatalf("expected default port dropped, got %q", got)
	}
	got, _ = Normalize("https://example.com:443/a", nil)
	if got != "https://example.com/a" {
		t.Fatalf("expected default port dropped, got %q", got)
	}
	got, _ = Normalize("https://example.com:8443/a", nil)
	if got != "https://example.com:8443/a" {
		t.Fatalf("expected non-default port kept, got %q", got)
	}
}

func TestNormalizeResolvesAgainstBase(t *testing.T) {
	base, _ := url.Parse("https://example.com/docs/page")
	got, ok := Normalize("../guide", base)
	if !ok || got != "https://example.com/guide" {
		t.Fatalf("unexpected resolution: %q ok=%v", got, ok)
	}
}

func TestIsLikelyCrawlable(t *testing.T) {
	if IsLikelyCrawlable("https://example.com/file.pdf") {
		t.Fatal("pdf should not be crawlable")
	}
	if IsLikelyCrawlable("https://example.com/logo.PNG") {
		t.Fatal("image should not be crawlable")
	}
	if !IsLikelyCrawlable("https://example.com/docs/guide") {
		t.Fatal("docs page should be crawlable")
	}
	if IsLikelyCrawlable("ftp://example.com/docs") {
		t.Fatal("non-http scheme should not be crawlable")
	}
}

func TestIsNuisance(t *testing.T) {
	nuisance := []string{
		"https://example.com/robots.txt",
		"https://example.com/sitemap.xml",
		"https://example.com/ads.txt",
		"https://example.com/wp-json/wp/v2/posts",
		"https://example.com/api/v1/users",
		"https://example.com/cart",
		"https://example.com/checkout/step-1",
		"https://example.com/admin/dashboard",
	}
	for _, u := range nuisance {
		if !IsNuisance(u) {
			t.Fatalf("expected %q to be nuisance", u)
		}
	}
	if IsNuisance("https://example.com/docs/guide") {
		t.Fatal("docs page should not be nuisance")
	}
}

func TestExtractSeedKeywords(t *testing.T) {
	keywords := ExtractSeedKeywords([]string{"https://example.com/docs/platform"})
	want := map[string]bool{"docs": false, "platform": false, "example": false}
	for _, kw := range keywords {
		if _, ok := want[kw]; ok {
			want[kw] = true
		}
		if keywordStopwords[kw] {
			t.Fatalf("stopword %q leaked into keywords", kw)
		}
	}
	for kw, found := range want {
		if !found {
			t.Fatalf("expected keyword %q in %v", kw, keywords)
		}
	}
}

func TestExtractSeedKeywordsCap(t *testing.T) {
	seeds := []string{
		"https://alpha.example.com/one/two/three/four/five/six/seven/eight",
		"https://beta.example.org/nine/ten/eleven/twelve/thirteen/fourteen",
		"https://gamma.example.net/fifteen/sixteen/seventeen/eighteen/nineteen",
		"https://delta.example.io/twenty/twentyone/twentytwo/twentythree",
		"https://epsilon.example.dev/twentyfour/twentyfive/twentysix/twentyseven",
		"https://zeta.example.app/twentyeight/twentynine/thirty/thirtyone/thirtytwo",
	}
	keywords := ExtractSeedKeywords(seeds)
	if len(keywords) > maxSeedKeywords {
		t.Fatalf("keyword cap exceeded: %d", len(keywords))
	}
}

func TestScoreDiscoveredURLPrefersSeedTopic(t *testing.T) {
	keywords := ExtractSeedKeywords([]string{"https://example.com/docs/platform"})
	onTopic := ScoreDiscoveredURL("https://example.com/docs/platform/setup", 1, "example.com", keywords)
	offTopic := ScoreDiscoveredURL("https://example.com/random/path", 1, "example.com", keywords)
	if onTopic <= offTopic {
		t.Fatalf("expected on-topic link to outscore off-topic: %d <= %d", onTopic, offTopic)
	}
}

func TestScoreDiscoveredURLBounds(t *testing.T) {
	cases := []struct {
		url   string
		depth int
	}{
		{"https://example.com/", 0},
		{"https://other.org/a/b/c/d/e/f/g/h/i/j?x=1", 10},
		{"https://example.com/docs", 0},
		{"::::not-a-url", 3},
	}
	for _, tc := range cases {
		score := ScoreDiscoveredURL(tc.url, tc.depth, "example.com", []string{"docs"})
		if score < 1 || score > 150 {
			t.Fatalf("score out of bounds for %q depth %d: %d", tc.url, tc.depth, score)
		}
	}
}

func TestScoreDiscoveredURLPenalties(t *testing.T) {
	base := ScoreDiscoveredURL("https://example.com/a", 1, "example.com", nil)
	offHost := ScoreDiscoveredURL("https://other.org/a", 1, "example.com", nil)
	if base-offHost != 25 {
		t.Fatalf("expected 25-point off-host penalty, got %d", base-offHost)
	}
	withQuery := ScoreDiscoveredURL("https://example.com/a?x=1", 1, "example.com", nil)
	if base-withQuery != 8 {
		t.Fatalf("expected 8-point query penalty, got %d", base-withQuery)
	}
	deeper := ScoreDiscoveredURL("https://example.com/a", 2, "example.com", nil)
	if base-deeper != 7 {
		t.Fatalf("expected 7-point depth penalty, got %d", base-deeper)
	}
}
