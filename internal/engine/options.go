package engine

import (
	"encoding/json"

	"webx/internal/extract"
)

// Option defaults and bounds.
const (
	defaultMaxPages       = 100
	maxPagesUpper         = 10000
	defaultMaxDepth       = 2
	maxDepthUpper         = 10
	defaultDomainDelayMs  = 500
	defaultMaxSitemapURLs = 200
)

// Options is the normalized runtime option snapshot persisted with each job.
// All fields are concrete; defaults have already been applied.
type Options struct {
	MaxPages         int          `json:"maxPages"`
	MaxDepth         int          `json:"maxDepth"`
	Mode             extract.Mode `json:"mode"`
	AllowDomains     []string     `json:"allowDomains,omitempty"`
	DenyDomains      []string     `json:"denyDomains,omitempty"`
	RespectRobots    bool         `json:"respectRobots"`
	PerDomainDelayMs int          `json:"perDomainDelayMs"`
	SeedFromSitemaps bool         `json:"seedFromSitemaps"`
	MaxSitemapURLs   int          `json:"maxSitemapUrls"`
	AdaptiveDelay    bool         `json:"adaptiveDelay"`
}

// OptionsInput is the caller-facing partial option set. Absent fields take
// their defaults; out-of-bound values are clamped.
type OptionsInput struct {
	MaxPages         *int     `json:"maxPages,omitempty"`
	MaxDepth         *int     `json:"maxDepth,omitempty"`
	Mode             string   `json:"mode,omitempty"`
	AllowDomains     []string `json:"allowDomains,omitempty"`
	DenyDomains      []string `json:"denyDomains,omitempty"`
	RespectRobots    *bool    `json:"respectRobots,omitempty"`
	PerDomainDelayMs *int     `json:"perDomainDelayMs,omitempty"`
	SeedFromSitemaps *bool    `json:"seedFromSitemaps,omitempty"`
	MaxSitemapURLs   *int     `json:"maxSitemapUrls,omitempty"`
	AdaptiveDelay    *bool    `json:"adaptiveDelay,omitempty"`
}

func defaultOptions() Options {
	return Options{
		MaxPages:         defaultMaxPages,
		MaxDepth:         defaultMaxDepth,
		Mode:             extract.ModeCompact,
		RespectRobots:    true,
		PerDomainDelayMs: defaultDomainDelayMs,
		SeedFromSitemaps: true,
		MaxSitemapURLs:   defaultMaxSitemapURLs,
		AdaptiveDelay:    true,
	}
}

// normalize resolves an input (possibly nil) into a full option snapshot.
func (in *OptionsInput) normalize() Options {
	opts := defaultOptions()
	if in == nil {
		return opts
	}

	if in.MaxPages != nil {
		opts.MaxPages = clamp(*in.MaxPages, 1, maxPagesUpper)
	}
	if in.MaxDepth != nil {
		opts.MaxDepth = clamp(*in.MaxDepth, 0, maxDepthUpper)
	}
	if in.Mode == string(extract.ModeFull) {
		opts.Mode = extract.ModeFull
	}
	opts.AllowDomains = in.AllowDomains
	opts.DenyDomains = in.DenyDomains
	if in.RespectRobots != nil {
		opts.RespectRobots = *in.RespectRobots
	}
	if in.PerDomainDelayMs != nil && *in.PerDomainDelayMs >= 0 {
		opts.PerDomainDelayMs = *in.PerDomainDelayMs
	}
	if in.SeedFromSitemaps != nil {
		opts.SeedFromSitemaps = *in.SeedFromSitemaps
	}
	if in.MaxSitemapURLs != nil && *in.MaxSitemapURLs > 0 {
		opts.MaxSitemapURLs = *in.MaxSitemapURLs
	}
	if in.AdaptiveDelay != nil {
		opts.AdaptiveDelay = *in.AdaptiveDelay
	}
	return opts
}

// optionsFromSnapshot restores a persisted snapshot, falling back to defaults
// when the stored JSON is unreadable.
func optionsFromSnapshot(raw json.RawMessage) Options {
	opts := defaultOptions()
	if len(raw) == 0 {
		return opts
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return defaultOptions()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.Mode != extract.ModeFull {
		opts.Mode = extract.ModeCompact
	}
	return opts
}

func clamp(v, lower, upper int) int {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
