package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Closed set of error kinds surfaced by the pipeline. Callers branch with
// errors.Is rather than inspecting messages.
var (
	ErrValidation          = errors.New("validation failed")
	ErrContentTooShort     = errors.New("content too short to index")
	ErrNoChunksProduced    = errors.New("no chunks produced from document")
	ErrUpstreamTimeout     = errors.New("upstream service timed out")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrPersistence         = errors.New("persistence operation failed")
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithPipelineError maps an error from the indexing/query pipeline to
// the HTTP status and error code for its kind.
func RespondWithPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrContentTooShort):
		RespondWithError(c, http.StatusBadRequest, "content_too_short", err.Error(), nil)
	case errors.Is(err, ErrNoChunksProduced):
		RespondWithError(c, http.StatusBadRequest, "no_chunks_produced", err.Error(), nil)
	case errors.Is(err, ErrValidation):
		RespondWithError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrUpstreamTimeout):
		RespondWithError(c, http.StatusGatewayTimeout, "upstream_timeout", err.Error(), nil)
	case errors.Is(err, ErrUpstreamUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, "upstream_unavailable", err.Error(), nil)
	case errors.Is(err, ErrDimensionMismatch):
		RespondWithError(c, http.StatusBadGateway, "dimension_mismatch", err.Error(), nil)
	case errors.Is(err, ErrPersistence):
		RespondWithError(c, http.StatusInternalServerError, "persistence_error", err.Error(), nil)
	default:
		RespondWithInternalError(c, err.Error(), nil)
	}
}
