// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint. Errors
// always use the ErrorResponse envelope with a stable code; fail() records
// the code for the access log and metrics and logs 5xx responses with the
// request-scoped logger.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "replay_detected",
//	  "message": "replay detected"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/zk-paygate/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"replay_detected"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"replay detected"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	c.Set(middleware.ErrorCodeKey, code)

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps err with errStatus. Classified errors carry client-safe
// messages; anything else is logged in full and answered generically.
func failErr(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Abort()
		return
	}
	status, code, known := errStatus(err)
	if !known {
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, status, code, "internal server error")
		return
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Str("code", code).Msg("dependency error")
		switch code {
		case ErrCodeUpstream:
			msg = "upstream service unavailable"
		case ErrCodeConfiguration:
			msg = "service is not configured to verify this request"
		}
	}
	fail(c, status, code, msg)
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
