package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

// RequestIDHeader is the header carrying the request ID
const RequestIDHeader = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(logger.RequestIDContextKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work queued in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, message)
}

// HandleError maps engine and scheduler errors onto HTTP responses.
// Unknown errors are reported as internal without leaking their text.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.handleErrorWithData(c, err, nil)
}

// handleErrorWithData is HandleError that still returns data to the caller,
// used when a sync failed as a whole but produced a per-store summary.
func (h *BaseHandler) handleErrorWithData(c *gin.Context, err error, data any) {
	if err == nil {
		return
	}
	code, message := classifyError(err)
	resp := dto.NewErrorResponseWithRequestID(code, message, getRequestID(c))
	resp.Data = data
	c.JSON(dto.GetHTTPStatus(code), resp)
}

func classifyError(err error) (code, message string) {
	switch {
	case errors.Is(err, integration.ErrInvalidTimeWindow):
		return dto.ErrCodeInvalidTimeWindow, err.Error()
	case errors.Is(err, integration.ErrUnsupportedMarketplace):
		return dto.ErrCodeUnsupportedMarketplace, err.Error()
	case errors.Is(err, integration.ErrInvalidSyncRequest),
		errors.Is(err, integration.ErrInvalidFilter),
		errors.Is(err, integration.ErrInvalidCredential):
		return dto.ErrCodeValidation, err.Error()
	case errors.Is(err, integration.ErrCredentialNotFound),
		errors.Is(err, scheduler.ErrJobNotFound):
		return dto.ErrCodeNotFound, err.Error()
	case errors.Is(err, scheduler.ErrSyncAlreadyInProgress):
		return dto.ErrCodeConflict, err.Error()
	case errors.Is(err, scheduler.ErrJobQueueFull),
		errors.Is(err, scheduler.ErrSchedulerNotRunning):
		return dto.ErrCodeUnavailable, err.Error()
	case errors.Is(err, integration.ErrUnauthenticated):
		return dto.ErrCodeUnauthorized, err.Error()
	case errors.Is(err, integration.ErrForbidden):
		return dto.ErrCodeForbidden, err.Error()
	case errors.Is(err, integration.ErrRateLimited):
		return dto.ErrCodeRateLimited, err.Error()
	case errors.Is(err, integration.ErrTimeout):
		return dto.ErrCodeUpstreamTimeout, err.Error()
	case errors.Is(err, integration.ErrUpstream):
		return dto.ErrCodeUpstream, err.Error()
	default:
		return dto.ErrCodeInternal, "An unexpected error occurred"
	}
}
