package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webx/internal/search"
)

type searchRequest struct {
	Query      string   `json:"query" binding:"required"`
	Limit      int      `json:"limit"`
	Engines    []string `json:"engines"`
	Categories []string `json:"categories"`
	Language   string   `json:"language"`
}

func (a *API) handleSearch(c *gin.Context) {
	if a.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search provider not configured"})
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := a.search.Search(c.Request.Context(), req.Query, search.SearchOptions{
		Limit:      limit,
		Engines:    req.Engines,
		Categories: req.Categories,
		Language:   req.Language,
	})
	if err != nil {
		a.logger.WithError(err).Warn("Search failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "search failed"})
		return
	}

	a.recordSuccess(c.Request.Context(), "search")
	c.JSON(http.StatusOK, gin.H{"results": results})
}
