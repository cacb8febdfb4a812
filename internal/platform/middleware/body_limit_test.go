package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10M", 10 << 20},
		{"10MB", 10 << 20},
		{"512K", 512 << 10},
		{"512KB", 512 << 10},
		{"1G", 1 << 30},
		{"2GB", 2 << 30},
		{"1024", 1024},
		{"", 1 << 20},        // default
		{"invalid", 1 << 20}, // default on parse failure
	}
	for _, tc := range cases {
		if got := parseSize(tc.input); got != tc.want {
			t.Errorf("parseSize(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

// runBodyLimit pushes one request through BodyLimit(defaultLimit, syncLimit)
// into a handler that drains the body.
func runBodyLimit(t *testing.T, defaultLimit, syncLimit string, req *http.Request) (handlerRan bool, err error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		handlerRan = true
		if c.Request().Body == nil {
			return c.NoContent(http.StatusOK)
		}
		if _, readErr := io.ReadAll(c.Request().Body); readErr != nil {
			return readErr
		}
		return c.NoContent(http.StatusOK)
	}
	err = BodyLimit(defaultLimit, syncLimit)(handler)(c)
	return handlerRan, err
}

func want413(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error for an oversized body")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", httpErr.Code)
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents",
		strings.NewReader(`{"title":"invoice.pdf"}`))

	ran, err := runBodyLimit(t, "1M", "10M", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected the handler to run")
	}
}

func TestBodyLimit_RejectsOversizedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents",
		bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))

	ran, err := runBodyLimit(t, "1K", "10M", req)
	want413(t, err)
	if ran {
		t.Error("the handler must not run past the Content-Length check")
	}
}

func TestBodyLimit_SyncEndpointGetsLargerLimit(t *testing.T) {
	// 2K batch: over the 1K default, within the 10M sync limit.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraped-claims/sync",
		bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))

	ran, err := runBodyLimit(t, "1K", "10M", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected the sync endpoint to accept the batch")
	}
}

func TestBodyLimit_RejectsSyncOverLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraped-claims/sync",
		bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))

	_, err := runBodyLimit(t, "512", "1K", req)
	want413(t, err)
}

func TestBodyLimit_SkipsNilBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)

	ran, err := runBodyLimit(t, "1M", "10M", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected the handler to run for a bodyless GET")
	}
}

// Chunked uploads carry no Content-Length; the cap must trip mid-read.
func TestBodyLimit_EnforcesLimitDuringRead(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents",
		bytes.NewReader(bytes.Repeat([]byte("a"), 1024)))
	req.ContentLength = -1

	_, err := runBodyLimit(t, "512", "10M", req)
	want413(t, err)
}
