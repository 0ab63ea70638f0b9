package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/zeltra/pkg/apperror"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError turns a categorized error into a status and a stable error.type.
func mapError(err error) (int, errorPayload) {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    string(apperror.KindValidation),
			Message: "validation error",
			Code:    causeCode(err),
		}
	case apperror.KindNotAuthenticated:
		return http.StatusUnauthorized, errorPayload{
			Type:    string(apperror.KindNotAuthenticated),
			Message: "owner not authenticated",
		}
	case apperror.KindPersistence:
		return http.StatusInternalServerError, errorPayload{
			Type:    string(apperror.KindPersistence),
			Message: "storage unavailable",
		}
	case apperror.KindProfileUnavailable:
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    string(apperror.KindProfileUnavailable),
			Message: "profile unavailable",
			Code:    causeCode(err),
		}
	case apperror.KindNotFound:
		return http.StatusNotFound, errorPayload{
			Type:    string(apperror.KindNotFound),
			Message: "not found",
			Code:    causeCode(err),
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    string(apperror.KindValidation),
			Message: "invalid request",
			Code:    ErrInvalidRequest.Error(),
		}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    string(apperror.KindNotFound),
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func causeCode(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return ""
}

func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}
