package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
)

// Error codes returned in ErrorResponse.Error.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeValidationFailed   = "validation_failed"
	CodeNotFound           = "not_found"
	CodeForbidden          = "forbidden"
	CodeInvalidState       = "invalid_state"
	CodeConflict           = "conflict"
	CodeServiceUnavailable = "service_unavailable"
	CodeInternalError      = "internal_error"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrTransient), errors.Is(err, app.ErrNotificationsDisabled):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func errorBody(err error) (int, ErrorResponse) {
	status, code := classify(err)
	resp := ErrorResponse{Error: code, Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		resp.Message = "internal error"
	}
	return status, resp
}

func respondError(c *gin.Context, err error) {
	status, resp := errorBody(err)
	if status >= http.StatusInternalServerError {
		logger := logging.FromContext(c.Request.Context())
		logger.Error().Err(err).Str("code", resp.Error).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, resp)
}

func respondBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: CodeInvalidRequest, Message: err.Error()})
}
