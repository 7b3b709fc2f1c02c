// Package mcptools exposes the webx backend as a Model Context Protocol
// server so LLM agents can search, open, crawl, and drive browser sessions
// over one streamable HTTP endpoint.
package mcptools

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"webx/internal/engine"
	"webx/internal/fetch"
	"webx/internal/search"
	"webx/internal/session"
	"webx/internal/store"
	"webx/pkg/logging"
)

const serverVersion = "1.0.0"

// Server wraps the MCP server with the webx tool set.
type Server struct {
	mcpServer *mcp.Server
	store     *store.Store
	engine    *engine.Engine
	fetcher   *fetch.Fetcher
	search    search.Provider
	sessions  *session.Manager
	logger    logging.Logger
}

// Config holds the collaborators the tools operate on. Search and Sessions
// may be nil; their tools then report unavailability instead of failing the
// whole server.
type Config struct {
	Store    *store.Store
	Engine   *engine.Engine
	Fetcher  *fetch.Fetcher
	Search   search.Provider
	Sessions *session.Manager
	Logger   logging.Logger
}

// NewServer creates an MCP server with all webx tools registered.
func NewServer(cfg Config) *Server {
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    "webx",
			Version: serverVersion,
		}, nil),
		store:    cfg.Store,
		engine:   cfg.Engine,
		fetcher:  cfg.Fetcher,
		search:   cfg.Search,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s
}

// HTTPHandler returns the streamable HTTP endpoint for the MCP server.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return s.mcpServer
		},
		&mcp.StreamableHTTPOptions{},
	)
}
