package robots

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"webx/pkg/cache"
	"webx/pkg/logging"
)

const (
	rulesCacheTTL     = 6 * time.Hour
	robotsFetchLimit  = 1 << 20 // 1 MB
	robotsFetchWindow = 8 * time.Second
)

// Client fetches robots.txt per origin with a 6-hour TTL cache. Fetch failures
// and non-2xx responses yield an empty, permissive ruleset.
type Client struct {
	httpClient *http.Client
	userAgent  string
	cache      *cache.Cache
	logger     logging.Logger
}

func NewClient(httpClient *http.Client, userAgent string, logger logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      cache.New(cache.Options{TTL: rulesCacheTTL, MaxEntries: 1024}, cache.PrometheusHooks("robots")),
		logger:     logger,
	}
}

// Rules returns the cached robots rules for an origin ("scheme://host"),
// fetching {origin}/robots.txt on a cache miss. It never fails: any fetch
// problem degrades to an empty ruleset.
func (c *Client) Rules(ctx context.Context, origin string) *Rules {
	value, ok, err := c.cache.Get(ctx, origin, func(ctx context.Context, key string) (interface{}, bool, error) {
		return c.fetch(ctx, key), true, nil
	})
	if err != nil || !ok {
		return &Rules{}
	}
	rules, ok := value.(*Rules)
	if !ok {
		return &Rules{}
	}
	return rules
}

func (c *Client) fetch(ctx context.Context, origin string) *Rules {
	ctx, cancel := context.WithTimeout(ctx, robotsFetchWindow)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return &Rules{}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.WithField("origin", origin).WithError(err).Debug("robots.txt fetch failed, treating as permissive")
		}
		return &Rules{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &Rules{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsFetchLimit))
	if err != nil {
		return &Rules{}
	}
	return Parse(string(body), c.userAgent)
}

// SuggestedDelay computes the per-host politeness delay: the maximum of the
// configured base delay, the robots crawl-delay, and (when adaptive) 1.4x the
// observed mean latency for the host.
func SuggestedDelay(base time.Duration, rules *Rules, avgLatency time.Duration, adaptive bool) time.Duration {
	delay := base
	if rules != nil {
		if robotsDelay := time.Duration(rules.CrawlDelayMs) * time.Millisecond; robotsDelay > delay {
			delay = robotsDelay
		}
	}
	if adaptive && avgLatency > 0 {
		adaptiveDelay := time.Duration(math.Round(float64(avgLatency) * 1.4))
		if adaptiveDelay > delay {
			delay = adaptiveDelay
		}
	}
	return delay
}
