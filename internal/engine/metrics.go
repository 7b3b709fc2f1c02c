package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webx",
		Subsystem: "crawler",
		Name:      "pages_fetched_total",
		Help:      "Pages fetched by the crawl engine, labeled by outcome",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "webx",
		Subsystem: "crawler",
		Name:      "fetch_duration_seconds",
		Help:      "Static page fetch latency",
		Buckets:   prometheus.DefBuckets,
	})

	linksDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webx",
		Subsystem: "crawler",
		Name:      "links_discovered_total",
		Help:      "Links enqueued from extracted pages",
	})

	robotsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webx",
		Subsystem: "crawler",
		Name:      "robots_blocked_total",
		Help:      "Queue items completed silently because robots rules forbid them",
	})

	queueClaims = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webx",
		Subsystem: "crawler",
		Name:      "queue_claims_total",
		Help:      "Queue items claimed for processing",
	})

	unchangedSkips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webx",
		Subsystem: "crawler",
		Name:      "unchanged_skips_total",
		Help:      "Fetches whose content hash matched the stored snapshot",
	})
)
