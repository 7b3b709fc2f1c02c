package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"webx/internal/api"
	webxconfig "webx/internal/config"
	"webx/internal/engine"
	"webx/internal/fetch"
	"webx/internal/mcptools"
	"webx/internal/robots"
	"webx/internal/search"
	"webx/internal/session"
	"webx/internal/store"
	"webx/pkg/config"
	"webx/pkg/logging"
	"webx/pkg/monitoring"
	"webx/pkg/server"
	"webx/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("webx")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Webx (Web Automation Backend)")

	cfg := webxconfig.LoadConfig()

	// Open the embedded database
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.WithError(err).Fatal("Failed to create data directory")
		}
	}
	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer func() { _ = st.Close() }()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("webx", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("webx", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(st.DB()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"WEBX_DB_PATH": cfg.DBPath,
	}))

	// Crawl engine and its background worker
	fetcher := fetch.NewFetcher(nil, cfg.CrawlerUA, logger)
	robotsClient := robots.NewClient(nil, cfg.CrawlerUA, logger)
	crawlEngine := engine.New(st, fetcher, robotsClient, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go engine.NewWorker(crawlEngine, cfg.PollInterval, logger).Run(workerCtx)

	// Meta-search is optional; the service runs without it
	var searchProvider search.Provider
	if provider, err := search.NewProvider(search.LoadConfig(), logger); err != nil {
		logger.WithError(err).Warn("Search provider not configured - search disabled")
	} else {
		searchProvider = provider
	}

	// Browser sessions
	sessionManager := session.NewManager(st, cfg.SessionsDir, cfg.BrowserHeaded, cfg.BrowserBinPath, logger)
	defer sessionManager.Close()

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "webx", healthChecker, metricsCollector)

	// REST surface
	api.NewAPI(st, crawlEngine, fetcher, searchProvider, sessionManager, logger).RegisterRoutes(router)

	// MCP surface for LLM agents
	mcpServer := mcptools.NewServer(mcptools.Config{
		Store:    st,
		Engine:   crawlEngine,
		Fetcher:  fetcher,
		Search:   searchProvider,
		Sessions: sessionManager,
		Logger:   logger,
	})
	router.Any("/mcp", gin.WrapH(mcpServer.HTTPHandler()))

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("webx", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
