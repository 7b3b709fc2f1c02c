package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"webx/internal/engine"
	"webx/internal/extract"
	"webx/internal/search"
)

// SearchInput represents input for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"required" jsonschema_description:"Free-text search query"`
	Limit      int      `json:"limit,omitempty" jsonschema_description:"Maximum results to return (default 10)"`
	Engines    []string `json:"engines,omitempty" jsonschema_description:"Restrict to specific meta-search engines"`
	Categories []string `json:"categories,omitempty" jsonschema_description:"Search categories, e.g. general or news"`
	Language   string   `json:"language,omitempty" jsonschema_description:"Result language code, e.g. en"`
}

// OpenInput represents input for the open tool.
type OpenInput struct {
	URL  string `json:"url" jsonschema:"required" jsonschema_description:"Absolute http(s) URL to fetch"`
	Mode string `json:"mode,omitempty" jsonschema_description:"Extraction mode: compact (default) or full"`
}

// CrawlStartInput represents input for the crawl_start tool.
type CrawlStartInput struct {
	SeedURLs []string             `json:"seedUrls" jsonschema:"required" jsonschema_description:"Seed URLs establishing the crawl frontier and allowed hosts"`
	Options  *engine.OptionsInput `json:"options,omitempty" jsonschema_description:"Crawl options (maxPages, maxDepth, mode, domain filters, politeness)"`
}

// CrawlJobInput identifies an existing crawl job.
type CrawlJobInput struct {
	JobID string `json:"jobId" jsonschema:"required" jsonschema_description:"Crawl job id returned by crawl_start"`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum pages to return (default 20)"`
}

// QueryPagesInput represents input for the query_pages tool.
type QueryPagesInput struct {
	Text  string `json:"text" jsonschema:"required" jsonschema_description:"Substring to match against stored page titles and bodies"`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum hits to return (default 10)"`
}

// SessionCreateInput represents input for the session_create tool.
type SessionCreateInput struct {
	Name  string `json:"name" jsonschema:"required" jsonschema_description:"Session name, e.g. github"`
	Notes string `json:"notes,omitempty" jsonschema_description:"Free-form notes about the session"`
}

// SessionOpenInput represents input for the session_open tool.
type SessionOpenInput struct {
	Session string `json:"session" jsonschema:"required" jsonschema_description:"Session name"`
	URL     string `json:"url" jsonschema:"required" jsonschema_description:"URL to open in the session's browser tab"`
	Mode    string `json:"mode,omitempty" jsonschema_description:"Extraction mode: compact (default) or full"`
}

// SessionInput identifies an existing session.
type SessionInput struct {
	Session string `json:"session" jsonschema:"required" jsonschema_description:"Session name"`
}

// SessionExecuteInput represents input for the session_execute tool.
type SessionExecuteInput struct {
	Session  string            `json:"session" jsonschema:"required" jsonschema_description:"Session name"`
	ActionID string            `json:"actionId" jsonschema:"required" jsonschema_description:"Action id from the page's actions list"`
	Params   map[string]string `json:"params,omitempty" jsonschema_description:"Action parameters, e.g. {\"value\": \"hello\"}"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "search",
			Description: "Search the web via the configured meta-search provider. Returns titles, URLs, and snippets.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args SearchInput) (*mcp.CallToolResult, any, error) {
			return s.handleSearch(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "open",
			Description: "Fetch a URL without JavaScript and return its structured extraction: headings, paragraphs, links, forms, actions.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args OpenInput) (*mcp.CallToolResult, any, error) {
			return s.handleOpen(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "crawl_start",
			Description: "Start a polite background crawl from seed URLs. Returns a job id to poll with crawl_status.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args CrawlStartInput) (*mcp.CallToolResult, any, error) {
			return s.handleCrawlStart(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "crawl_status",
			Description: "Get a crawl job's status and per-state queue counts.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args CrawlJobInput) (*mcp.CallToolResult, any, error) {
			return s.handleCrawlStatus(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "crawl_pages",
			Description: "Return pages fetched by a crawl job, newest first.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args CrawlJobInput) (*mcp.CallToolResult, any, error) {
			return s.handleCrawlPages(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "query_pages",
			Description: "Substring-search previously stored pages, newest first with rank-decayed scores.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args QueryPagesInput) (*mcp.CallToolResult, any, error) {
			return s.handleQueryPages(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "session_create",
			Description: "Create or refresh a named browser session with persistent cookies.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args SessionCreateInput) (*mcp.CallToolResult, any, error) {
			return s.handleSessionCreate(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "session_open",
			Description: "Open a URL in a session's browser tab, wait for the DOM to settle, and return the structured extraction.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args SessionOpenInput) (*mcp.CallToolResult, any, error) {
			return s.handleSessionOpen(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "session_actions",
			Description: "List the executable actions on a session's current page.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args SessionInput) (*mcp.CallToolResult, any, error) {
			return s.handleSessionActions(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "session_execute",
			Description: "Execute an action (click, fill, select, submit, navigate) on a session's current page by action id.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args SessionExecuteInput) (*mcp.CallToolResult, any, error) {
			return s.handleSessionExecute(ctx, args)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "session_save",
			Description: "Persist a session's cookies so logins survive restarts.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args SessionInput) (*mcp.CallToolResult, any, error) {
			return s.handleSessionSave(ctx, args)
		},
	)
}

func (s *Server) handleSearch(ctx context.Context, args SearchInput) (*mcp.CallToolResult, any, error) {
	if s.search == nil {
		return toolError("No search provider configured. Set SEARXNG_URL or SEARCH_PROVIDER.")
	}
	if args.Query == "" {
		return toolError("Query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.search.Search(ctx, args.Query, search.SearchOptions{
		Limit:      limit,
		Engines:    args.Engines,
		Categories: args.Categories,
		Language:   args.Language,
	})
	if err != nil {
		s.logger.WithError(err).Warn("Search failed")
		return toolError(fmt.Sprintf("Search failed: %v", err))
	}

	s.recordSuccess(ctx, "search")
	return toolSuccess(results)
}

func (s *Server) handleOpen(ctx context.Context, args OpenInput) (*mcp.CallToolResult, any, error) {
	if args.URL == "" {
		return toolError("URL is required")
	}

	page, err := s.fetcher.OpenStatic(ctx, args.URL, parseMode(args.Mode))
	if err != nil {
		return toolError(fmt.Sprintf("Failed to open %s: %v", args.URL, err))
	}
	if err := s.store.SavePage(ctx, page); err != nil {
		s.logger.WithError(err).Warn("Failed to persist opened page")
	}

	s.recordSuccess(ctx, "open")
	return toolSuccess(page)
}

func (s *Server) handleCrawlStart(ctx context.Context, args CrawlStartInput) (*mcp.CallToolResult, any, error) {
	jobID, err := s.engine.Start(ctx, args.SeedURLs, args.Options)
	if errors.Is(err, engine.ErrNoValidSeeds) {
		return toolError("No valid seed URLs. Seeds must be absolute http(s) URLs.")
	}
	if err != nil {
		return toolError(fmt.Sprintf("Failed to start crawl: %v", err))
	}

	s.recordSuccess(ctx, "crawl")
	return toolSuccess(map[string]string{"jobId": jobID, "status": "running"})
}

func (s *Server) handleCrawlStatus(ctx context.Context, args CrawlJobInput) (*mcp.CallToolResult, any, error) {
	status, err := s.engine.Status(ctx, args.JobID)
	if errors.Is(err, engine.ErrUnknownJob) {
		return toolError(fmt.Sprintf("Unknown crawl job %q", args.JobID))
	}
	if err != nil {
		return toolError(fmt.Sprintf("Failed to get status: %v", err))
	}
	return toolSuccess(status)
}

func (s *Server) handleCrawlPages(ctx context.Context, args CrawlJobInput) (*mcp.CallToolResult, any, error) {
	pages, err := s.engine.Next(ctx, args.JobID, args.Limit)
	if errors.Is(err, engine.ErrUnknownJob) {
		return toolError(fmt.Sprintf("Unknown crawl job %q", args.JobID))
	}
	if err != nil {
		return toolError(fmt.Sprintf("Failed to get pages: %v", err))
	}
	return toolSuccess(pages)
}

func (s *Server) handleQueryPages(ctx context.Context, args QueryPagesInput) (*mcp.CallToolResult, any, error) {
	if args.Text == "" {
		return toolError("Text is required")
	}
	hits, err := s.store.QueryPages(ctx, args.Text, args.Limit)
	if err != nil {
		return toolError(fmt.Sprintf("Query failed: %v", err))
	}
	return toolSuccess(hits)
}

func (s *Server) handleSessionCreate(ctx context.Context, args SessionCreateInput) (*mcp.CallToolResult, any, error) {
	if s.sessions == nil {
		return toolError("Browser sessions are not available on this host")
	}
	info, err := s.sessions.CreateSession(ctx, args.Name, args.Notes)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to create session: %v", err))
	}
	return toolSuccess(info)
}

func (s *Server) handleSessionOpen(ctx context.Context, args SessionOpenInput) (*mcp.CallToolResult, any, error) {
	if s.sessions == nil {
		return toolError("Browser sessions are not available on this host")
	}
	page, err := s.sessions.OpenInSession(ctx, args.Session, args.URL, parseMode(args.Mode))
	if err != nil {
		return toolError(fmt.Sprintf("Failed to open in session: %v", err))
	}
	if err := s.store.SavePage(ctx, page); err != nil {
		s.logger.WithError(err).Warn("Failed to persist session page")
	}

	s.recordSuccess(ctx, "open")
	return toolSuccess(page)
}

func (s *Server) handleSessionActions(ctx context.Context, args SessionInput) (*mcp.CallToolResult, any, error) {
	if s.sessions == nil {
		return toolError("Browser sessions are not available on this host")
	}
	actions, err := s.sessions.ListActions(ctx, args.Session)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to list actions: %v", err))
	}
	return toolSuccess(actions)
}

func (s *Server) handleSessionExecute(ctx context.Context, args SessionExecuteInput) (*mcp.CallToolResult, any, error) {
	if s.sessions == nil {
		return toolError("Browser sessions are not available on this host")
	}
	result, err := s.sessions.ExecuteAction(ctx, args.Session, args.ActionID, args.Params)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to execute action: %v", err))
	}

	s.recordSuccess(ctx, "action")
	return toolSuccess(result)
}

func (s *Server) handleSessionSave(ctx context.Context, args SessionInput) (*mcp.CallToolResult, any, error) {
	if s.sessions == nil {
		return toolError("Browser sessions are not available on this host")
	}
	info, err := s.sessions.SaveSession(ctx, args.Session)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to save session: %v", err))
	}
	return toolSuccess(info)
}

func (s *Server) recordSuccess(ctx context.Context, kind string) {
	if err := s.store.RecordSuccess(ctx, kind); err != nil {
		s.logger.WithError(err).WithField("kind", kind).Warn("Failed to record success timestamp")
	}
}

func parseMode(mode string) extract.Mode {
	if mode == string(extract.ModeFull) {
		return extract.ModeFull
	}
	return extract.ModeCompact
}

// toolError returns an error result for a tool call.
func toolError(message string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}, nil, nil
}

// toolSuccess returns a success result with the JSON rendering as text.
func toolSuccess(result any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, result, nil
}
