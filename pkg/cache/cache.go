// Package cache provides a small in-memory TTL cache with singleflight
// loading. The robots ruleset cache and the sitemap cache are built on it.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL        time.Duration
	MaxEntries int
}

// MetricsHooks observes cache traffic. Hooks are optional; the zero value
// disables them.
type MetricsHooks struct {
	OnHit   func()
	OnMiss  func()
	OnStore func()
}

var cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "webx",
	Subsystem: "cache",
	Name:      "ops_total",
	Help:      "Cache operations, labeled by cache name and operation",
}, []string{"cache", "op"})

// PrometheusHooks returns hooks that count hits, misses, and stores for a
// named cache on the default registry.
func PrometheusHooks(name string) MetricsHooks {
	return MetricsHooks{
		OnHit:   func() { cacheOps.WithLabelValues(name, "hit").Inc() },
		OnMiss:  func() { cacheOps.WithLabelValues(name, "miss").Inc() },
		OnStore: func() { cacheOps.WithLabelValues(name, "store").Inc() },
	}
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

type Cache struct {
	mu      sync.Mutex
	items   map[string]*entry
	order   []string
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
}

func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		items:   make(map[string]*entry),
		order:   make([]string, 0, 128),
		opts:    opts,
		metrics: hooks,
	}
}

// Loader fills a cache miss. Returning ok=false means the value could not be
// produced; such results are never cached.
type Loader func(ctx context.Context, key string) (interface{}, bool, error)

type loadResult struct {
	val interface{}
	ok  bool
	err error
}

// Get returns the cached value for key, invoking the loader on a miss.
// Concurrent misses for the same key share one loader call.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, bool, error) {
	now := time.Now()
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			c.mu.Unlock()
			if c.metrics.OnHit != nil {
				c.metrics.OnHit()
			}
			return e.value, true, nil
		}
		delete(c.items, key)
		c.removeFromOrder(key)
	}
	c.mu.Unlock()

	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss()
	}
	result, _, _ := c.sf.Do(key, func() (interface{}, error) {
		val, ok, err := loader(ctx, key)
		if ok && err == nil {
			c.store(key, val)
		}
		return loadResult{val: val, ok: ok, err: err}, nil
	})
	res := result.(loadResult)
	if !res.ok {
		return nil, false, res.err
	}
	return res.val, true, nil
}

func (c *Cache) store(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = &entry{value: val, expiresAt: time.Now().Add(c.opts.TTL)}
	c.evictIfNeeded()
	if c.metrics.OnStore != nil {
		c.metrics.OnStore()
	}
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// FIFO eviction; entries are small and TTLs short enough that LRU is not
// worth the bookkeeping.
func (c *Cache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
