package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// opsPathPrefix marks the operational trigger endpoints (manual scan,
// match and generate passes). Those may legitimately outlive an API call
// and are exempt from the request deadline.
const opsPathPrefix = "/ops/"

// RequestTimeout enforces a deadline on every API request. The handler
// runs on its own goroutine; when the deadline expires first the client
// gets a 504 and the handler's context is cancelled so it can bail out.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, opsPathPrefix) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			// Same shape as http.TimeoutHandler: panics are forwarded to
			// this goroutine so the recovery middleware still sees them.
			result := make(chan error, 1)
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				result <- next(c)
			}()

			select {
			case err := <-result:
				return err
			case p := <-panicked:
				panic(p)
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return timeoutResponse(c)
				}
				// Client disconnects and other cancellations pass through.
				return ctx.Err()
			}
		}
	}
}

// timeoutResponse writes the 504 unless the handler already committed a
// partial response, in which case there is nothing sensible left to send.
func timeoutResponse(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusGatewayTimeout, map[string]string{
		"message": "request processing exceeded the allowed time limit",
	})
}
