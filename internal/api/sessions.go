package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"webx/internal/session"
	"webx/internal/store"
)

type sessionCreateRequest struct {
	Name  string `json:"name" binding:"required"`
	Notes string `json:"notes"`
}

type sessionOpenRequest struct {
	URL  string `json:"url" binding:"required"`
	Mode string `json:"mode"`
}

type sessionExecuteRequest struct {
	ActionID string            `json:"actionId" binding:"required"`
	Params   map[string]string `json:"params"`
}

func (a *API) sessionsAvailable(c *gin.Context) bool {
	if a.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "browser sessions not available"})
		return false
	}
	return true
}

func (a *API) handleSessionCreate(c *gin.Context) {
	if !a.sessionsAvailable(c) {
		return
	}
	var req sessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	info, err := a.sessions.CreateSession(c.Request.Context(), req.Name, req.Notes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": info})
}

func (a *API) handleSessionList(c *gin.Context) {
	sessions, err := a.store.ListSessions(c.Request.Context())
	if err != nil {
		a.logger.WithError(err).Error("Failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a *API) handleSessionOpen(c *gin.Context) {
	if !a.sessionsAvailable(c) {
		return
	}
	var req sessionOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	page, err := a.sessions.OpenInSession(c.Request.Context(), c.Param("name"), req.URL, parseMode(req.Mode))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		a.logger.WithError(err).WithField("url", req.URL).Warn("Session open failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to open url in session"})
		return
	}

	if err := a.store.SavePage(c.Request.Context(), page); err != nil {
		a.logger.WithError(err).Warn("Failed to persist session page")
	}

	a.recordSuccess(c.Request.Context(), "open")
	c.JSON(http.StatusOK, gin.H{"page": page})
}

func (a *API) handleSessionActions(c *gin.Context) {
	if !a.sessionsAvailable(c) {
		return
	}

	actions, err := a.sessions.ListActions(c.Request.Context(), c.Param("name"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if errors.Is(err, session.ErrNoActivePage) {
		c.JSON(http.StatusConflict, gin.H{"error": "session has no open page"})
		return
	}
	if err != nil {
		a.logger.WithError(err).Warn("Failed to list actions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list actions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (a *API) handleSessionExecute(c *gin.Context) {
	if !a.sessionsAvailable(c) {
		return
	}
	var req sessionExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actionId is required"})
		return
	}

	result, err := a.sessions.ExecuteAction(c.Request.Context(), c.Param("name"), req.ActionID, req.Params)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if errors.Is(err, session.ErrNoActivePage) {
		c.JSON(http.StatusConflict, gin.H{"error": "session has no open page"})
		return
	}
	if errors.Is(err, session.ErrActionGone) {
		c.JSON(http.StatusNotFound, gin.H{"error": "action not present on current page"})
		return
	}
	if err != nil {
		a.logger.WithError(err).Warn("Failed to execute action")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to execute action"})
		return
	}

	a.recordSuccess(c.Request.Context(), "action")
	c.JSON(http.StatusOK, result)
}

func (a *API) handleSessionSave(c *gin.Context) {
	if !a.sessionsAvailable(c) {
		return
	}

	info, err := a.sessions.SaveSession(c.Request.Context(), c.Param("name"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		a.logger.WithError(err).Warn("Failed to save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": info})
}

func (a *API) handleSessionLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	entries, err := a.store.ListActionLog(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		a.logger.WithError(err).Error("Failed to list action log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list action log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
