package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"webx/internal/engine"
)

type crawlStartRequest struct {
	SeedURLs []string             `json:"seedUrls" binding:"required"`
	Options  *engine.OptionsInput `json:"options"`
}

func (a *API) handleCrawlStart(c *gin.Context) {
	var req crawlStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	jobID, err := a.engine.Start(c.Request.Context(), req.SeedURLs, req.Options)
	if errors.Is(err, engine.ErrNoValidSeeds) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid seed URLs; seeds must be absolute http(s) URLs"})
		return
	}
	if err != nil {
		a.logger.WithError(err).Error("Failed to start crawl")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start crawl"})
		return
	}

	a.recordSuccess(c.Request.Context(), "crawl")
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "status": "running"})
}

func (a *API) handleCrawlStatus(c *gin.Context) {
	status, err := a.engine.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, engine.ErrUnknownJob) {
		c.JSON(http.StatusNotFound, gin.H{"error": "crawl job not found"})
		return
	}
	if err != nil {
		a.logger.WithError(err).Error("Failed to get crawl status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get crawl status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (a *API) handleCrawlPages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	pages, err := a.engine.Next(c.Request.Context(), c.Param("id"), limit)
	if errors.Is(err, engine.ErrUnknownJob) {
		c.JSON(http.StatusNotFound, gin.H{"error": "crawl job not found"})
		return
	}
	if err != nil {
		a.logger.WithError(err).Error("Failed to get crawl pages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get crawl pages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"pages": pages})
}
