package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// headerValueLimit caps a single header value. Anything longer is hostile or
// broken; either way it is rejected before reaching a handler.
const headerValueLimit = 8192

var (
	// Logged as a warning only: parameterized queries are the real defense.
	sqlInjectionRe = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	// Rejected outright.
	scriptInjectionRe = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal sequences, null bytes,
// header injection, or script fragments. Suspected SQL injection in query
// parameters is logged, not blocked.
func Sanitize() echo.MiddlewareFunc {
	return SanitizeWithLogger(zerolog.Nop())
}

// SanitizeWithLogger is Sanitize with a logger for the SQL injection warnings.
func SanitizeWithLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if reason := inspectPath(req); reason != "" {
				return reject(c, reason)
			}
			if reason := inspectHeaders(req); reason != "" {
				return reject(c, reason)
			}
			if reason := inspectQuery(c, logger); reason != "" {
				return reject(c, reason)
			}
			return next(c)
		}
	}
}

// inspectPath looks at both the decoded and the raw request path, so encoded
// attacks cannot hide behind URL decoding.
func inspectPath(req *http.Request) string {
	paths := []string{req.URL.Path}
	if req.URL.RawPath != "" {
		paths = append(paths, req.URL.RawPath)
	}
	for _, p := range paths {
		if hasTraversal(p) {
			return "Path traversal detected"
		}
		if hasNullByte(p) {
			return "Null byte injection detected"
		}
	}
	return ""
}

func inspectHeaders(req *http.Request) string {
	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > headerValueLimit {
				return "Header value exceeds maximum size: " + name
			}
			if strings.ContainsAny(v, "\r\n") {
				return "Header injection detected: " + name
			}
		}
	}
	return ""
}

func inspectQuery(c echo.Context, logger zerolog.Logger) string {
	req := c.Request()
	for key, values := range req.URL.Query() {
		for _, v := range values {
			if hasNullByte(v) || hasNullByte(key) {
				return "Null byte injection detected in query parameter"
			}
			if sqlInjectionRe.MatchString(v) {
				logger.Warn().
					Str("param", key).
					Str("path", req.URL.Path).
					Str("remote_ip", c.RealIP()).
					Msg("query parameter matches a SQL injection pattern")
			}
			if scriptInjectionRe.MatchString(v) || scriptInjectionRe.MatchString(key) {
				return "Script injection detected in query parameter"
			}
		}
	}
	return ""
}

// hasTraversal catches dot-dot sequences in plain, percent-encoded, and
// double-encoded form.
func hasTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(strings.ToLower(s), "%00")
}

func reject(c echo.Context, reason string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"message": reason})
}

// SanitizeString strips null bytes and control characters (newline, carriage
// return, and tab survive) and trims surrounding whitespace. Handlers apply
// it to free-text input fields before persisting them.
func SanitizeString(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(cleaned)
}
