package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/middleware"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/playback"
)

type openSessionRequest struct {
	ViewerID string                    `json:"viewer_id"`
	Hints    *playback.CapabilityHints `json:"capabilities"`
}

type switchLanguageRequest struct {
	Language string `json:"language" binding:"required"`
}

// listTracksHandler returns the language menu of a section without opening
// a session
// GET /api/v1/sections/:id/tracks
func (api *API) listTracksHandler(c *gin.Context) {
	sectionID := c.Param("id")

	tracks, err := api.catalog.Build(c.Request.Context(), sectionID, nil)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"section_id": sectionID,
		"tracks":     tracks,
	})
}

// openSessionHandler starts playback of a section
// POST /api/v1/sections/:id/sessions
func (api *API) openSessionHandler(c *gin.Context) {
	var req openSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	viewerID := req.ViewerID
	if userID, ok := middleware.GetUserID(c); ok && userID != "" {
		viewerID = userID
	}

	session, err := api.sessions.Open(c.Request.Context(), playback.OpenRequest{
		SectionID: c.Param("id"),
		ViewerID:  viewerID,
		UserAgent: c.Request.UserAgent(),
		Hints:     req.Hints,
	})
	if err != nil {
		status, code := statusForError(err)
		body := gin.H{"error": err.Error(), "code": code}
		if session.ID != "" {
			body["session"] = session
		}
		c.AbortWithStatusJSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// getSessionHandler returns a session snapshot
// GET /api/v1/sessions/:id
func (api *API) getSessionHandler(c *gin.Context) {
	session, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// switchLanguageHandler changes the audio language of a session
// POST /api/v1/sessions/:id/language
func (api *API) switchLanguageHandler(c *gin.Context) {
	var req switchLanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	session, err := api.sessions.Switch(c.Request.Context(), c.Param("id"), req.Language)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// closeSessionHandler tears a session down
// DELETE /api/v1/sessions/:id
func (api *API) closeSessionHandler(c *gin.Context) {
	if err := api.sessions.Close(c.Param("id")); err != nil {
		api.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
