package errorx

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorHandler writes errors as APIError responses.
type ErrorHandler struct {
	logger   *zap.Logger
	mappings []mapping
}

type mapping struct {
	target error
	api    *APIError
}

// NewErrorHandler creates an error handler.
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger.Named("errorx")}
}

// Map makes errors matching target (errors.Is) surface as api.
func (h *ErrorHandler) Map(target error, api *APIError) *ErrorHandler {
	h.mappings = append(h.mappings, mapping{target: target, api: api})
	return h
}

// HandleError aborts the request with the APIError for err.
func (h *ErrorHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	resp := *h.ConvertToAPIError(err)
	resp.TraceID = uuid.NewString()
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	fields := []zap.Field{
		zap.String("code", resp.Code),
		zap.String("trace_id", resp.TraceID),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	}
	if resp.HTTPStatus >= 500 {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}

	c.AbortWithStatusJSON(resp.HTTPStatus, gin.H{"error": &resp})
}

// ConvertToAPIError returns the APIError describing err.
func (h *ErrorHandler) ConvertToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range h.mappings {
		if errors.Is(err, m.target) {
			return m.api
		}
	}
	return ErrInternalServer
}
