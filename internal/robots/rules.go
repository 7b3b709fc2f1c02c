// Package robots fetches and evaluates robots.txt rules and expands sitemap
// indexes for the crawl engine.
package robots

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"webx/internal/urlutil"
)

// Rules holds the directives collected from the groups of a robots.txt file
// that apply to the crawler's user agent.
type Rules struct {
	Allow        []string
	Disallow     []string
	CrawlDelayMs int
	Sitemaps     []string
}

// Parse extracts the rules applying to userAgent from a robots.txt body.
// A group is active when its User-agent token equals the crawler's user agent
// (case-insensitive) or is "*". Sitemap directives are global.
func Parse(body, userAgent string) *Rules {
	rules := &Rules{}

	var currentAgents []string
	var lastDirective string

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		directive := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch directive {
		case "user-agent":
			// Consecutive user-agent lines form a single group (RFC 9309).
			if lastDirective == "user-agent" {
				currentAgents = append(currentAgents, value)
			} else {
				currentAgents = []string{value}
			}
		case "allow":
			if groupActive(currentAgents, userAgent) && value != "" {
				rules.Allow = append(rules.Allow, ensureLeadingSlash(value))
			}
		case "disallow":
			if groupActive(currentAgents, userAgent) && value != "" {
				rules.Disallow = append(rules.Disallow, ensureLeadingSlash(value))
			}
		case "crawl-delay":
			if groupActive(currentAgents, userAgent) {
				if delay := parseCrawlDelayMs(value); delay > 0 {
					rules.CrawlDelayMs = delay
				}
			}
		case "sitemap":
			if normalized, ok := urlutil.Normalize(value, nil); ok {
				rules.Sitemaps = append(rules.Sitemaps, normalized)
			}
		}
		lastDirective = directive
	}

	return rules
}

func groupActive(agents []string, userAgent string) bool {
	for _, agent := range agents {
		if agent == "*" || strings.EqualFold(agent, userAgent) {
			return true
		}
	}
	return false
}

func ensureLeadingSlash(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

// parseCrawlDelayMs converts a crawl-delay value in seconds to milliseconds.
// Negative, NaN, or unparseable values yield 0.
func parseCrawlDelayMs(value string) int {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	return int(math.Round(seconds * 1000))
}

// CanCrawl decides whether rules permit fetching rawURL using longest-match
// semantics: the longer of the best-matching allow and disallow prefixes wins,
// with ties going to allow. The bare "/" rule is ignored.
func CanCrawl(rawURL string, rules *Rules) bool {
	if rules == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	allowLen := longestMatch(path, rules.Allow)
	disallowLen := longestMatch(path, rules.Disallow)
	if allowLen == 0 && disallowLen == 0 {
		return true
	}
	return allowLen >= disallowLen
}

func longestMatch(path string, prefixes []string) int {
	longest := 0
	for _, prefix := range prefixes {
		if prefix == "/" {
			continue
		}
		if strings.HasPrefix(path, prefix) && len(prefix) > longest {
			longest = len(prefix)
		}
	}
	return longest
}
