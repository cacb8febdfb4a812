package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// runWithTimeout sends one GET through RequestTimeout(d) into handler.
func runWithTimeout(t *testing.T, d time.Duration, path string, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := RequestTimeout(d)(handler)(c)
	return rec, err
}

func TestRequestTimeout_FastHandlerPasses(t *testing.T) {
	ran := false
	rec, err := runWithTimeout(t, 5*time.Second, "/api/v1/documents", func(c echo.Context) error {
		ran = true
		return c.String(http.StatusOK, "ok")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected the handler to run")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_Returns504OnExpiry(t *testing.T) {
	rec, err := runWithTimeout(t, 50*time.Millisecond, "/api/v1/documents", func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return c.String(http.StatusOK, "ok")
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	})

	// The middleware writes the 504 itself rather than returning an error.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal 504 body: %v", err)
	}
	if body["message"] == "" {
		t.Error("expected a message in the 504 body")
	}
}

func TestRequestTimeout_OpsPathsExempt(t *testing.T) {
	ran := false
	_, err := runWithTimeout(t, 50*time.Millisecond, "/ops/scan-documents", func(c echo.Context) error {
		ran = true
		if deadline, ok := c.Request().Context().Deadline(); ok && time.Until(deadline) < time.Second {
			t.Error("ops paths must not inherit the short request deadline")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected the handler to run for an ops path")
	}
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	_, err := runWithTimeout(t, 30*time.Second, "/api/v1/documents", func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected the request context to carry a deadline")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	_, err := runWithTimeout(t, 5*time.Second, "/api/v1/documents/123", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}

func TestRequestTimeout_ForwardsPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected the handler panic to surface on the caller goroutine")
		}
	}()
	_, _ = runWithTimeout(t, 5*time.Second, "/api/v1/documents", func(c echo.Context) error {
		panic("boom")
	})
}
