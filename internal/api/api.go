// Package api exposes the webx backend over a plain REST surface for
// callers that do not speak MCP.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"webx/internal/engine"
	"webx/internal/fetch"
	"webx/internal/search"
	"webx/internal/session"
	"webx/internal/store"
	"webx/pkg/logging"
)

// API holds the collaborators the REST handlers operate on. Search and
// Sessions may be nil; their routes then answer 503.
type API struct {
	store    *store.Store
	engine   *engine.Engine
	fetcher  *fetch.Fetcher
	search   search.Provider
	sessions *session.Manager
	logger   logging.Logger
}

func NewAPI(s *store.Store, eng *engine.Engine, fetcher *fetch.Fetcher, provider search.Provider, sessions *session.Manager, logger logging.Logger) *API {
	return &API{
		store:    s,
		engine:   eng,
		fetcher:  fetcher,
		search:   provider,
		sessions: sessions,
		logger:   logger,
	}
}

func (a *API) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/v1")

	group.POST("/search", a.handleSearch)
	group.POST("/open", a.handleOpen)

	group.POST("/crawl", a.handleCrawlStart)
	group.GET("/crawl/:id", a.handleCrawlStatus)
	group.GET("/crawl/:id/pages", a.handleCrawlPages)

	group.GET("/pages", a.handleQueryPages)
	group.GET("/pages/:id", a.handleGetPage)

	group.POST("/sessions", a.handleSessionCreate)
	group.GET("/sessions", a.handleSessionList)
	group.POST("/sessions/:name/open", a.handleSessionOpen)
	group.GET("/sessions/:name/actions", a.handleSessionActions)
	group.POST("/sessions/:name/execute", a.handleSessionExecute)
	group.POST("/sessions/:name/save", a.handleSessionSave)
	group.GET("/sessions/:name/log", a.handleSessionLog)
}

func (a *API) recordSuccess(ctx context.Context, kind string) {
	if err := a.store.RecordSuccess(ctx, kind); err != nil {
		a.logger.WithError(err).WithField("kind", kind).Warn("Failed to record success timestamp")
	}
}
