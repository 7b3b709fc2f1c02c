package search

import (
	"fmt"

	"webx/pkg/config"
	"webx/pkg/logging"
)

const (
	providerTavily  = "tavily"
	providerBrave   = "brave"
	providerSearxng = "searxng"
)

// Config holds environment configuration for search providers.
type Config struct {
	Provider string
	APIKey   string
	APIURL   string
}

// LoadConfig loads search configuration from the environment. SEARXNG_URL is
// the local-first shorthand; SEARCH_API_URL covers the hosted providers.
func LoadConfig() Config {
	apiURL := config.GetEnv("SEARXNG_URL", "")
	if apiURL == "" {
		apiURL = config.GetEnv("SEARCH_API_URL", "")
	}
	return Config{
		Provider: config.GetEnv("SEARCH_PROVIDER", providerSearxng),
		APIKey:   config.GetEnv("SEARCH_API_KEY", ""),
		APIURL:   apiURL,
	}
}

// NewProvider creates a search provider from configuration.
func NewProvider(cfg Config, logger logging.Logger) (Provider, error) {
	switch cfg.Provider {
	case providerTavily:
		return NewTavilyProvider(cfg.APIKey, cfg.APIURL, logger)
	case providerBrave:
		return NewBraveProvider(cfg.APIKey, cfg.APIURL, logger)
	case providerSearxng:
		return NewSearxngProvider(cfg.APIURL, logger)
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}
