// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements AccessLog, the structured access logger. It never
// logs bodies and scrubs what it does log:
//
//   - credential headers (Authorization, Cookie, Set-Cookie, plus extras) are
//     replaced with "[REDACTED]"
//   - credential query parameters (the websocket handshake's token) are
//     masked by name
//   - emails, phone numbers and UUIDs inside query strings and header values
//     are replaced with typed placeholders
//
// AccessLog also builds the request-scoped logger returned by LoggerFrom.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrubbing.
type RedactOptions struct {
	// MaskHeaders are extra header names whose values are fully masked.
	MaskHeaders []string
	// MaskParams are extra query parameter names whose values are masked.
	MaskParams []string
}

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, v := range append(base, extra...) {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// redactQuery masks named parameters and scrubs PII from the rest. A query
// that does not parse is scrubbed as a whole.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redactPII(raw)
	}
	for k, vv := range vals {
		_, secret := mask[strings.ToLower(k)]
		for i := range vv {
			if secret {
				vv[i] = "[REDACTED]"
			} else {
				vv[i] = redactPII(vv[i])
			}
		}
	}
	// Encode escapes the brackets; unescape for readable logs.
	out, err := url.QueryUnescape(vals.Encode())
	if err != nil {
		return vals.Encode()
	}
	return out
}

// AccessLog returns the access-logging middleware. Level is info for 2xx/3xx,
// warn for 4xx and error for 5xx or when handlers recorded gin errors.
func AccessLog(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"token", "access_token", "refreshtoken"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		query := truncate(redactQuery(c.Request.URL.RawQuery, maskParams), maxQueryLogLength)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redactPII(strings.Join(vv, ", "))
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		attachLogger(c, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = l.Warn()
		}
		if id, ok := UserIDFrom(c); ok {
			ev = ev.Uint("user_id", id)
		}
		ev.Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
