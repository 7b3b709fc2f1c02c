// Package config stores environment configuration for the webx service.
package config

import (
	"time"

	"webx/pkg/config"
)

// Config holds the service's environment-derived settings.
type Config struct {
	Port           string
	DBPath         string
	PollInterval   time.Duration
	CrawlerUA      string
	SessionsDir    string
	BrowserHeaded  bool
	BrowserBinPath string
}

// LoadConfig loads the webx configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:           config.GetEnv("PORT", "18080"),
		DBPath:         config.GetEnv("WEBX_DB_PATH", "data/webx.sqlite"),
		PollInterval:   config.GetEnvDuration("CRAWLER_POLL_MS", time.Second),
		CrawlerUA:      config.GetEnv("CRAWLER_USER_AGENT", "WebxBot/1.0"),
		SessionsDir:    config.GetEnv("BROWSER_SESSIONS_DIR", "data/sessions"),
		BrowserHeaded:  config.GetEnvBool("BROWSER_HEADED", false),
		BrowserBinPath: config.GetEnv("BROWSER_BIN_PATH", ""),
	}
}
