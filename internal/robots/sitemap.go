package robots

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	sitemapFetchWindow   = 10 * time.Second
	sitemapFetchLimit    = 10 << 20 // 10 MB
	maxSitemapExpansions = 12
	maxSitemapQueue      = 30
)

// DiscoverSitemapURLs expands the sitemaps advertised by rules (falling back
// to {origin}/sitemap.xml) into page URLs. Sitemap index documents are
// followed breadth-first, bounded by a fixed expansion budget.
func (c *Client) DiscoverSitemapURLs(ctx context.Context, rules *Rules, origin string, limit int) []string {
	queue := make([]string, 0, maxSitemapQueue)
	if rules != nil && len(rules.Sitemaps) > 0 {
		queue = append(queue, rules.Sitemaps...)
	} else {
		queue = append(queue, origin+"/sitemap.xml")
	}

	visited := make(map[string]bool)
	var pageURLs []string

	for expansions := 0; len(queue) > 0 && expansions < maxSitemapExpansions; expansions++ {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		data, err := c.fetchSitemap(ctx, current)
		if err != nil {
			if c.logger != nil {
				c.logger.WithField("sitemap", current).WithError(err).Debug("Sitemap fetch failed, continuing")
			}
			continue
		}

		isIndex := bytes.Contains(data, []byte("<sitemapindex"))
		for _, loc := range extractLocValues(data) {
			if isIndex || strings.Contains(loc, "sitemap") {
				if len(queue) < maxSitemapQueue {
					queue = append(queue, loc)
				}
				continue
			}
			pageURLs = append(pageURLs, loc)
			if limit > 0 && len(pageURLs) >= limit {
				return pageURLs
			}
		}
	}

	return pageURLs
}

func (c *Client) fetchSitemap(ctx context.Context, sitemapURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, sitemapFetchWindow)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &statusError{status: resp.Status}
	}
	return io.ReadAll(io.LimitReader(resp.Body, sitemapFetchLimit))
}

type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return "unexpected status " + e.status
}

// extractLocValues collects the text of every <loc> element. It tolerates
// both <urlset> and <sitemapindex> documents and ignores malformed trailing
// content.
func extractLocValues(data []byte) []string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var locs []string
	var inLoc bool
	var text strings.Builder

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "loc" {
				inLoc = true
				text.Reset()
			}
		case xml.CharData:
			if inLoc {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "loc" {
				inLoc = false
				if loc := strings.TrimSpace(text.String()); loc != "" {
					locs = append(locs, loc)
				}
			}
		}
	}
	return locs
}
