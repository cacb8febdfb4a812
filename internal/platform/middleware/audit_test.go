package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/recoup/recoup/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error // if set, RecordAccess returns this error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// newTestContext creates an echo context with optional request mutations.
func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func withAuth(userID string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
		*req = *req.WithContext(ctx)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// --- Tests ---

func TestAudit_DocumentRead(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}
	docID := uuid.New().String()

	c, _ := newTestContext(http.MethodGet,
		fmt.Sprintf("/api/v1/documents/%s", docID),
		withAuth("owner"),
	)
	c.Set("request_id", "req-abc")

	mw := Audit(logger, rec)
	h := mw(okHandler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.UserID != "owner" {
		t.Errorf("expected user_id 'owner', got %q", entry.UserID)
	}
	if entry.Resource != "documents" {
		t.Errorf("expected resource 'documents', got %q", entry.Resource)
	}
	if entry.ResourceID != docID {
		t.Errorf("expected resource_id %q, got %q", docID, entry.ResourceID)
	}
	if entry.Action != "read" {
		t.Errorf("expected action 'read', got %q", entry.Action)
	}
	if entry.RequestID != "req-abc" {
		t.Errorf("expected request_id 'req-abc', got %q", entry.RequestID)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.StatusCode)
	}
}

func TestAudit_MethodsMapToActions(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	tests := []struct {
		method string
		action string
	}{
		{http.MethodGet, "read"},
		{http.MethodPost, "create"},
		{http.MethodPatch, "update"},
		{http.MethodPut, "update"},
		{http.MethodDelete, "delete"},
	}

	for _, tt := range tests {
		rec := &mockRecorder{}
		c, _ := newTestContext(tt.method, "/api/v1/claims", withAuth("owner"))

		mw := Audit(logger, rec)
		if err := mw(okHandler)(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.method, err)
		}
		if rec.last().Action != tt.action {
			t.Errorf("%s: expected action %q, got %q", tt.method, tt.action, rec.last().Action)
		}
	}
}

func TestAudit_SkipsNonAPIRoutes(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodGet, "/healthz")

	mw := Audit(logger, rec)
	if err := mw(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected no audit entries for /healthz, got %d", rec.count())
	}
}

func TestAudit_CoversOpsRoutes(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodPost, "/ops/run-matching", withAuth("owner"))

	mw := Audit(logger, rec)
	if err := mw(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	if rec.last().Resource != "run-matching" {
		t.Errorf("expected resource 'run-matching', got %q", rec.last().Resource)
	}
}

func TestAudit_RecorderFailureDoesNotBlockRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{err: errors.New("sink unavailable")}

	c, httpRec := newTestContext(http.MethodGet, "/api/v1/claims", withAuth("owner"))

	mw := Audit(logger, rec)
	if err := mw(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if httpRec.Code != http.StatusOK {
		t.Errorf("expected request to succeed despite recorder failure, got %d", httpRec.Code)
	}
}

func TestAudit_PropagatesHandlerError(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodGet, "/api/v1/claims/missing", withAuth("owner"))

	failing := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	mw := Audit(logger, rec)
	err := mw(failing)(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if rec.count() != 1 {
		t.Errorf("expected audit entry even for failed request, got %d", rec.count())
	}
}

func TestExtractResource(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/documents", "documents"},
		{"/api/v1/documents/" + uuid.New().String(), "documents"},
		{"/api/v1/draft-claims", "draft-claims"},
		{"/ops/scan-documents", "scan-documents"},
		{"/api/v1/", "unknown"},
	}
	for _, tt := range tests {
		if got := extractResource(tt.path); got != tt.want {
			t.Errorf("extractResource(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExtractResourceID(t *testing.T) {
	id := uuid.New().String()
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/documents/" + id, id},
		{"/api/v1/documents/" + id + "/group", id},
		{"/api/v1/documents", ""},
		{"/api/v1/claims/not-a-uuid", ""},
		{"/ops/scan-documents", ""},
	}
	for _, tt := range tests {
		if got := extractResourceID(tt.path); got != tt.want {
			t.Errorf("extractResourceID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
