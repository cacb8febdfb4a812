package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// BodyLimit caps request body sizes. defaultLimit covers the regular CRUD
// surface; syncLimit covers the bulk sync POSTs, whose scrape batches run far
// larger. Sizes are strings like "512K", "1M", or "2G"; a bare number is
// bytes.
func BodyLimit(defaultLimit, syncLimit string) echo.MiddlewareFunc {
	defaultBytes := parseSize(defaultLimit)
	syncBytes := parseSize(syncLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/sync") {
				limit = syncBytes
			}

			// Content-Length gives an early out; the capped reader still
			// guards chunked uploads and lying clients.
			if req.ContentLength > limit {
				return errBodyTooLarge
			}
			req.Body = &cappedBody{rc: req.Body, left: limit}
			return next(c)
		}
	}
}

// cappedBody fails the read once more than its allowance is consumed.
type cappedBody struct {
	rc      io.ReadCloser
	left    int64
	tripped bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.tripped {
		return 0, errBodyTooLarge
	}
	// Read one byte past the cap so overflow is detectable.
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.rc.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.tripped = true
		return 0, errBodyTooLarge
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.rc.Close() }

// parseSize converts "512K", "1M", "2G" (optionally with a trailing B) into
// bytes. Unparseable input falls back to 1 MB rather than failing startup.
func parseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 1 << 20
	}

	multiplier := int64(1)
	s = strings.TrimSuffix(s, "B")
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "K")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 1 << 20
	}
	return n * multiplier
}
