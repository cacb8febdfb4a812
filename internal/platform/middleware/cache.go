package middleware

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
)

// CacheConfig controls ETag and Cache-Control behavior on read endpoints.
type CacheConfig struct {
	MaxAge             int      // max-age seconds advertised on cacheable responses
	Private            bool     // claim data is for the owner only, so default private
	NoStore            bool     // forbid storing entirely; wins over MaxAge and Private
	VaryHeaders        []string // request headers the response representation depends on
	ETagEnabled        bool
	ConditionalEnabled bool     // answer If-None-Match revalidations with 304
	ExcludePaths       []string // exact paths left untouched, e.g. /healthz
}

// DefaultCacheConfig is tuned for the claims API: short-lived private caching
// with ETag revalidation.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:             300,
		Private:            true,
		VaryHeaders:        []string{"Accept", "Authorization"},
		ETagEnabled:        true,
		ConditionalEnabled: true,
	}
}

// cacheControl renders the Cache-Control value. no-store short-circuits the
// rest: a response that must not be stored gets no freshness hints.
func (cfg CacheConfig) cacheControl() string {
	if cfg.NoStore {
		return "no-store"
	}
	scope := "public"
	if cfg.Private {
		scope = "private"
	}
	return fmt.Sprintf("%s, max-age=%d", scope, cfg.MaxAge)
}

// CacheStore is the backend the response cache writes through.
type CacheStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	Clear()
}

// MemoryCacheStore backs CacheStore with an expiring in-process cache.
type MemoryCacheStore struct {
	entries *gocache.Cache
}

// NewMemoryCacheStore creates a store whose janitor evicts expired entries
// every cleanupInterval.
func NewMemoryCacheStore(defaultTTL, cleanupInterval time.Duration) *MemoryCacheStore {
	return &MemoryCacheStore{entries: gocache.New(defaultTTL, cleanupInterval)}
}

func (s *MemoryCacheStore) Get(key string) ([]byte, bool) {
	v, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (s *MemoryCacheStore) Set(key string, value []byte, ttl time.Duration) {
	s.entries.Set(key, value, ttl)
}

func (s *MemoryCacheStore) Delete(key string) { s.entries.Delete(key) }

func (s *MemoryCacheStore) Clear() { s.entries.Flush() }

// replayWriter holds the response body back until the middleware decides
// whether to send it, answer 304 instead, or copy it into the cache first.
type replayWriter struct {
	dst    http.ResponseWriter
	body   bytes.Buffer
	status int
}

func newReplayWriter(dst http.ResponseWriter) *replayWriter {
	return &replayWriter{dst: dst, status: http.StatusOK}
}

// Header exposes the real header map, so handlers and middleware see a single
// set of headers no matter who finishes the response.
func (w *replayWriter) Header() http.Header { return w.dst.Header() }

func (w *replayWriter) Write(p []byte) (int, error) { return w.body.Write(p) }

func (w *replayWriter) WriteHeader(status int) { w.status = status }

// Flush satisfies http.Flusher. The body is withheld, nothing to flush yet.
func (w *replayWriter) Flush() {}

// send replays the withheld status and body to the real writer.
func (w *replayWriter) send() error {
	w.dst.WriteHeader(w.status)
	if w.body.Len() == 0 {
		return nil
	}
	_, err := w.dst.Write(w.body.Bytes())
	return err
}

// intercept swaps the context's writer for a replayWriter. The restore func
// puts the original back and must run before the response is finished.
func intercept(c echo.Context) (*replayWriter, func()) {
	res := c.Response()
	orig := res.Writer
	rw := newReplayWriter(orig)
	res.Writer = rw
	return rw, func() { res.Writer = orig }
}

// ETagMiddleware stamps ETag, Cache-Control, and Vary on successful GET/HEAD
// responses and answers If-None-Match revalidations with 304 Not Modified.
func ETagMiddleware(cfg CacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if pathExcluded(req.URL.Path, cfg.ExcludePaths) {
				return next(c)
			}

			rw, restore := intercept(c)
			err := next(c)
			restore()
			if err != nil {
				return err
			}
			// Error responses are not cacheable representations.
			if rw.status >= 400 {
				return rw.send()
			}

			h := c.Response().Header()
			h.Set("Cache-Control", cfg.cacheControl())
			if len(cfg.VaryHeaders) > 0 {
				h.Set("Vary", strings.Join(cfg.VaryHeaders, ", "))
			}
			if cfg.ETagEnabled {
				tag := weakETag(rw.body.Bytes())
				h.Set("ETag", tag)
				if cfg.ConditionalEnabled && etagsMatch(req.Header.Get("If-None-Match"), tag) {
					rw.dst.WriteHeader(http.StatusNotModified)
					return nil
				}
			}
			return rw.send()
		}
	}
}

// ConditionalRequestMiddleware answers conditional requests against the
// headers the handler produced: If-Modified-Since and If-None-Match
// revalidations get 304, a failed If-Match precondition gets 412.
func ConditionalRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rw, restore := intercept(c)
			err := next(c)
			restore()
			if err != nil {
				return err
			}

			req := c.Request()
			h := c.Response().Header()

			if notModifiedSince(req.Header.Get("If-Modified-Since"), h.Get("Last-Modified")) {
				rw.dst.WriteHeader(http.StatusNotModified)
				return nil
			}
			if tag := h.Get("ETag"); tag != "" {
				if etagsMatch(req.Header.Get("If-None-Match"), tag) {
					rw.dst.WriteHeader(http.StatusNotModified)
					return nil
				}
				if im := req.Header.Get("If-Match"); im != "" && !etagsMatch(im, tag) {
					rw.dst.WriteHeader(http.StatusPreconditionFailed)
					return nil
				}
			}
			return rw.send()
		}
	}
}

// ResponseCacheMiddleware serves unauthenticated GET responses out of store,
// keyed by path and Accept header. Requests carrying Authorization bypass the
// cache entirely, so a private response is never replayed to another caller.
func ResponseCacheMiddleware(store CacheStore, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet {
				return next(c)
			}
			if req.Header.Get("Authorization") != "" {
				c.Response().Header().Set("X-Cache", "SKIP")
				return next(c)
			}

			key := responseCacheKey(req)
			if body, ok := store.Get(key); ok {
				res := c.Response()
				res.Header().Set("X-Cache", "HIT")
				res.Writer.WriteHeader(http.StatusOK)
				_, err := res.Writer.Write(body)
				return err
			}

			rw, restore := intercept(c)
			err := next(c)
			restore()
			if err != nil {
				return err
			}

			if rw.status < 400 {
				// Clone: the cached copy outlives this request's buffer.
				store.Set(key, bytes.Clone(rw.body.Bytes()), ttl)
			}
			c.Response().Header().Set("X-Cache", "MISS")
			return rw.send()
		}
	}
}

func responseCacheKey(req *http.Request) string {
	return strings.Join([]string{req.Method, req.URL.Path, req.Header.Get("Accept")}, ":")
}

// weakETag derives a weak validator from the body. MD5 is fine here: the tag
// guards revalidation, nothing cryptographic rides on it.
func weakETag(body []byte) string {
	return fmt.Sprintf(`W/"%x"`, md5.Sum(body))
}

func pathExcluded(path string, excluded []string) bool {
	for _, p := range excluded {
		if path == p {
			return true
		}
	}
	return false
}

// etagsMatch reports whether any candidate in an If-None-Match or If-Match
// header value matches tag. Comparison is weak: W/"x" and "x" name the same
// entity. A bare * matches anything.
func etagsMatch(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}

// notModifiedSince reports whether the resource's Last-Modified stamp is not
// newer than the client's If-Modified-Since stamp. Missing or unparseable
// stamps never match.
func notModifiedSince(since, lastModified string) bool {
	if since == "" || lastModified == "" {
		return false
	}
	clientTime, err := http.ParseTime(since)
	if err != nil {
		return false
	}
	resourceTime, err := http.ParseTime(lastModified)
	if err != nil {
		return false
	}
	return !resourceTime.After(clientTime)
}
