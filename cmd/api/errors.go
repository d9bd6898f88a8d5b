package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubbing"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/middleware"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/playback"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/resolver"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/webhook"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{webhook.ErrMissingSignature, http.StatusUnauthorized, "invalid_signature"},
	{webhook.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{webhook.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{dubbing.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{dubbing.ErrInvalidLanguage, http.StatusUnprocessableEntity, "invalid_language"},
	{dubbing.ErrSubmissionRejected, http.StatusConflict, "submission_rejected"},
	{dubbing.ErrRemoteSubmissionFailed, http.StatusBadGateway, "remote_submission_failed"},
	{dubbing.ErrJobNotFound, http.StatusNotFound, "job_not_found"},
	{dubbing.ErrTerminalState, http.StatusConflict, "terminal_state"},
	{dubbing.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
	{playback.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{playback.ErrSessionClosed, http.StatusGone, "session_closed"},
	{playback.ErrSwitchInProgress, http.StatusConflict, "switch_in_progress"},
	{playback.ErrSessionNotReady, http.StatusConflict, "session_not_ready"},
	{resolver.ErrTrackUnresolved, http.StatusUnprocessableEntity, "track_unresolved"},
	{playback.ErrEngineUnsupported, http.StatusNotImplemented, "engine_unsupported"},
	{playback.ErrManifestLoadFailed, http.StatusServiceUnavailable, "manifest_load_failed"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func statusForError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError maps err to a status and writes the standard error body
func (api *API) respondError(c *gin.Context, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		api.logger.WithRequestID(middleware.GetRequestID(c)).ErrorWithErr("request failed", err)
	}
	middleware.AbortWithError(c, status, code, err.Error())
}
