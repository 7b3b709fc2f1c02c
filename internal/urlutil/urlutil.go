// Package urlutil normalizes, classifies, and scores URLs for the crawl engine.
package urlutil

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParams are query keys stripped during normalization in addition to
// any key with the utm_ prefix.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"ref_src": true,
	"source":  true,
	"spm":     true,
}

// assetExtensions are path suffixes that never yield crawlable HTML.
var assetExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico", ".bmp", ".avif",
	".zip", ".tar", ".gz", ".tgz", ".rar", ".7z", ".bz2",
	".mp3", ".mp4", ".m4a", ".avi", ".mov", ".wmv", ".webm", ".mkv", ".wav", ".flac", ".ogg",
	".css", ".js", ".mjs",
	".woff", ".woff2", ".ttf", ".eot",
	".exe", ".dmg", ".apk", ".iso", ".bin",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".pdf", ".json", ".xml", ".rss", ".atom",
}

// nuisancePathFragments mark infrastructure and account surfaces that waste
// crawl budget.
var nuisancePathFragments = []string{
	"/wp-json/", "/api/", "/graphql", "/cdn-cgi/",
	"/cart", "/checkout", "/login", "/signin", "/account", "/admin",
}

var nuisanceExactPaths = map[string]bool{
	"/robots.txt":  true,
	"/sitemap.xml": true,
	"/ads.txt":     true,
}

var keywordStopwords = map[string]bool{
	"www":   true,
	"http":  true,
	"https": true,
	"index": true,
	"html":  true,
	"php":   true,
}

var (
	repeatedSlashes = regexp.MustCompile(`/{2,}`)
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	valuablePath    = regexp.MustCompile(`(?i)(docs|guide|blog|article|help|support|reference)`)
)

const maxSeedKeywords = 30

// Normalize canonicalizes a URL for queue dedupe and host comparison.
// It lowercases the host, strips default ports, fragments, tracking query
// parameters, repeated slashes, and trailing slashes, and sorts the remaining
// query keys. Returns ok=false for anything that is not absolute http(s),
// optionally resolving input against base first.
func Normalize(input string, base *url.URL) (string, bool) {
	var u *url.URL
	var err error
	if base != nil {
		u, err = base.Parse(strings.TrimSpace(input))
	} else {
		u, err = url.Parse(strings.TrimSpace(input))
	}
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	if host == "" {
		return "", false
	}
	u.Host = host

	u.Fragment = ""
	u.RawFragment = ""

	path := repeatedSlashes.ReplaceAllString(u.Path, "/")
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	u.Path = path
	u.RawPath = ""

	u.RawQuery = normalizeQuery(u.RawQuery)

	return u.String(), true
}

func normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, value := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

// IsLikelyCrawlable reports whether a URL plausibly points at an HTML page.
func IsLikelyCrawlable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}

// IsNuisance reports whether a URL points at infrastructure, API, or account
// surfaces that should never enter the crawl queue. An unparseable URL is
// treated as nuisance.
func IsNuisance(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := strings.ToLower(u.Path)
	if nuisanceExactPaths[path] {
		return true
	}
	for _, fragment := range nuisancePathFragments {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

// ExtractSeedKeywords tokenizes seed host+path segments into a keyword list
// used to bias link scoring toward topically related pages.
func ExtractSeedKeywords(seedURLs []string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, seed := range seedURLs {
		u, err := url.Parse(seed)
		if err != nil {
			continue
		}
		haystack := strings.ToLower(u.Host + u.Path)
		for _, token := range nonAlphanumeric.Split(haystack, -1) {
			if len(token) < 3 || keywordStopwords[token] || seen[token] {
				continue
			}
			seen[token] = true
			keywords = append(keywords, token)
			if len(keywords) >= maxSeedKeywords {
				return keywords
			}
		}
	}
	return keywords
}

// ScoreDiscoveredURL computes a queue priority in [1, 150] for a link found
// during extraction. Higher scores are claimed first.
func ScoreDiscoveredURL(rawURL string, nextDepth int, seedHost string, seedKeywords []string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}

	score := 100
	if !strings.EqualFold(u.Host, seedHost) {
		score -= 25
	}
	score -= 3 * countPathSegments(u.Path)
	score -= 7 * nextDepth
	if u.RawQuery != "" {
		score -= 8
	}

	haystack := strings.ToLower(u.Host + u.Path)
	bonus := 0
	for _, keyword := range seedKeywords {
		if strings.Contains(haystack, keyword) {
			bonus += 4
		}
	}
	if bonus > 20 {
		bonus = 20
	}
	score += bonus

	if valuablePath.MatchString(u.Path) {
		score += 6
	}

	if score < 1 {
		score = 1
	}
	if score > 150 {
		score = 150
	}
	return score
}

func countPathSegments(path string) int {
	segments := 0
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			segments++
		}
	}
	return segments
}
