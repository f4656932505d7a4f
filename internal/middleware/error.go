package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler translates errors attached via c.Error into a JSON
// response. AppError codes map to HTTP statuses; everything else is a
// 500 with a generic message so internals never leak.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error(e.Err, "request error",
				"request_id", requestID,
				"path", c.Request.URL.Path,
				"method", c.Request.Method)
		}

		lastErr := c.Errors.Last().Err
		status := http.StatusInternalServerError
		message := "internal server error"

		var appErr *apperrors.AppError
		if errors.As(lastErr, &appErr) {
			status = httpStatus(appErr.Code)
			message = appErr.Message
		}

		c.JSON(status, ErrorResponse{
			Code:    status,
			Message: message,
			TraceID: requestID,
		})
	}
}

func httpStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrNotFound, apperrors.ErrOrderNotFound, apperrors.ErrStoreNotFound:
		return http.StatusNotFound
	case apperrors.ErrBadRequest, apperrors.ErrInvalidTransition:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized, apperrors.ErrCredentialDecrypt:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	case apperrors.ErrCarrierRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
