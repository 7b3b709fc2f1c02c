package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"webx/internal/extract"
	"webx/internal/fetch"
	"webx/internal/store"
)

type openRequest struct {
	URL  string `json:"url" binding:"required"`
	Mode string `json:"mode"`
}

func (a *API) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	page, err := a.fetcher.OpenStatic(c.Request.Context(), req.URL, parseMode(req.Mode))
	if err != nil {
		var fetchErr *fetch.FetchError
		if errors.As(err, &fetchErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed", "status": fetchErr.Status})
			return
		}
		a.logger.WithError(err).WithField("url", req.URL).Warn("Open failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to open url"})
		return
	}

	if err := a.store.SavePage(c.Request.Context(), page); err != nil {
		a.logger.WithError(err).Warn("Failed to persist opened page")
	}

	a.recordSuccess(c.Request.Context(), "open")
	c.JSON(http.StatusOK, gin.H{"page": page})
}

func (a *API) handleQueryPages(c *gin.Context) {
	text := c.Query("q")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	hits, err := a.store.QueryPages(c.Request.Context(), text, limit)
	if err != nil {
		a.logger.WithError(err).Error("Failed to query pages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query pages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func (a *API) handleGetPage(c *gin.Context) {
	page, err := a.store.GetPageByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
		return
	}
	if err != nil {
		a.logger.WithError(err).Error("Failed to get page")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get page"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"page": page})
}

func parseMode(mode string) extract.Mode {
	if mode == string(extract.ModeFull) {
		return extract.ModeFull
	}
	return extract.ModeCompact
}
