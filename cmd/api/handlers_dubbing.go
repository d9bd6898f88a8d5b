package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubbing"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/middleware"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/webhook"
)

const maxCallbackBody = 1 << 20

type submitDubbingRequest struct {
	Languages      []string `json:"languages" binding:"required,min=1"`
	SourceLocation string   `json:"source_location"`
	CallbackURL    string   `json:"callback_url" binding:"omitempty,url"`
}

// submitDubbingHandler requests dubs of a section into one or more languages
// POST /api/v1/sections/:id/dubbing
func (api *API) submitDubbingHandler(c *gin.Context) {
	sectionID := c.Param("id")

	var req submitDubbingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := c.Request.Context()

	source := req.SourceLocation
	if source == "" {
		url, err := api.sources.SourceURL(ctx, sectionID)
		if err != nil {
			api.respondError(c, fmt.Errorf("failed to locate section source: %w", err))
			return
		}
		source = url
	}

	userID, _ := middleware.GetUserID(c)

	result, err := api.dubbing.Submit(ctx, dubbing.SubmitInput{
		SectionID:      sectionID,
		SourceLocation: source,
		Languages:      req.Languages,
		RequestedBy:    userID,
		CallbackURL:    req.CallbackURL,
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(submitStatus(result), result)
}

// submitStatus is 202 when any language was accepted, otherwise the status
// of the most telling per-language failure
func submitStatus(result *dubbing.SubmitResult) int {
	if result.Accepted {
		return http.StatusAccepted
	}

	var rejected, invalid bool
	for _, r := range result.Results {
		switch {
		case errors.Is(r.Err, dubbing.ErrSubmissionRejected):
			rejected = true
		case errors.Is(r.Err, dubbing.ErrInvalidLanguage):
			invalid = true
		}
	}

	switch {
	case rejected:
		return http.StatusConflict
	case invalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// dubbingStatusHandler reports the latest dub job per language of a section
// GET /api/v1/sections/:id/dubbing
func (api *API) dubbingStatusHandler(c *gin.Context) {
	sectionID := c.Param("id")

	statuses, err := api.dubbing.JobStatus(c.Request.Context(), sectionID)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"section_id": sectionID,
		"languages":  statuses,
	})
}

// getDubJobHandler returns one dub job
// GET /api/v1/dubbing/jobs/:id
func (api *API) getDubJobHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		api.respondError(c, fmt.Errorf("%w: %s", dubbing.ErrJobNotFound, id))
		return
	}

	job, err := api.dubbing.GetJob(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// dubbingCallbackHandler receives state reports from the dubbing service
// POST /api/v1/dubbing/callback
func (api *API) dubbingCallbackHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "invalid_payload", "failed to read body")
		return
	}

	if err := api.verifier.Verify(body, c.GetHeader(webhook.SignatureHeader)); err != nil {
		api.respondError(c, err)
		return
	}

	cb, err := webhook.DecodeCallback(body)
	if err != nil {
		api.respondError(c, err)
		return
	}

	job, err := api.dubbing.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		api.logger.WithField("job_handle", cb.JobHandle).WithError(err).Warn("Dubbing callback not applied")
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"state":  job.State,
	})
}
