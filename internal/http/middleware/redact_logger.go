// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It attaches the
// request-scoped logger and, once the handler returns, emits one structured
// line per request with identifiers scrubbed:
//
//   - session ids (UUIDs) become [REDACTED:id]
//   - 64-hex values (nullifiers, message hashes, keys) become [REDACTED:hex]
//   - 0x-prefixed account addresses become [REDACTED:addr]
//   - Authorization, Cookie, Set-Cookie and X-Admin-Token values, plus any
//     extra headers configured, are replaced entirely
//
// Bodies are never logged.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// maxQueryLogLength caps the number of bytes of the raw query string logged.
const maxQueryLogLength = 2048

var (
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	hexRE  = regexp.MustCompile(`(?i)\b(?:0x)?[0-9a-f]{64}\b`)
	addrRE = regexp.MustCompile(`(?i)\b0x[0-9a-f]{40}\b`)
)

// Redact scrubs identifiers from s. Longer hex runs are replaced before
// addresses so a hash is never half-matched as an address.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = hexRE.ReplaceAllString(s, "[REDACTED:hex]")
	s = addrRE.ReplaceAllString(s, "[REDACTED:addr]")
	return s
}

// RedactOptions configures additional header masking.
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns the access-log middleware. Level is INFO, WARN
// for 4xx and ERROR for 5xx or when handlers recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"x-admin-token": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		// Route templates carry no identifiers; raw paths of unmatched
		// routes might.
		path := c.FullPath()
		if path == "" {
			path = Redact(c.Request.URL.Path)
		}
		lg := attachLogger(c, path)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}
		query := truncate(Redact(c.Request.URL.RawQuery), maxQueryLogLength)
		client := Redact(ClientID(c))

		c.Next()

		status := c.Writer.Status()
		ev := lg.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}
		if code, ok := c.Get(ErrorCodeKey); ok {
			ev = ev.Str("code", asString(code))
		}

		ev.
			Str("client", client).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
