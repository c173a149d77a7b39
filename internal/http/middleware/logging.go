// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides request correlation, client identification, panic
// recovery and access to the request-scoped logger:
//
//   - RequestID() reuses a well-formed inbound X-Request-ID or mints a UUID.
//   - ClientID() names the caller for rate limiting and idempotency: the
//     X-Client-ID header when it is well formed, otherwise the client IP.
//   - Recovery() converts panics into the standard JSON 500 envelope.
//   - LoggerFrom() returns the request-scoped zerolog.Logger attached by
//     RedactingLogger. The same logger rides on the request context, so
//     services reach it through log.Ctx(ctx).
//
// Recommended order: RequestID, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key of the request-scoped logger.
	loggerKey = "logger"

	// HeaderClientID lets API clients name themselves for rate limiting and
	// idempotency scoping.
	HeaderClientID = "X-Client-ID"
)

// tokenRE bounds caller-supplied identifiers that end up in logs and keys.
var tokenRE = regexp.MustCompile(`^[A-Za-z0-9._~:\-]{1,64}$`)

// RequestID attaches (or propagates) a correlation identifier per request.
// Inbound IDs that are too long or carry unexpected characters are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !tokenRE.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// ClientID returns "client:<X-Client-ID>" when the header is well formed and
// "ip:<client ip>" otherwise.
func ClientID(c *gin.Context) string {
	if h := c.GetHeader(HeaderClientID); tokenRE.MatchString(h) {
		return "client:" + h
	}
	return "ip:" + c.ClientIP()
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500 error.
// Only writes the envelope when nothing has been written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// attachLogger builds the request-scoped logger and installs it on both the
// Gin context and the request context.
func attachLogger(c *gin.Context, path string) *zerolog.Logger {
	rid, _ := c.Get(requestIDKey)
	l := log.With().
		Str("request_id", asString(rid)).
		Str("method", c.Request.Method).
		Str("path", path).
		Logger()
	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	return &l
}

// LoggerFrom returns the request-scoped zerolog.Logger, or a fallback
// without request fields. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
