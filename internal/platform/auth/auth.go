package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

// UserIDKey is the request-context key carrying the authenticated subject.
const UserIDKey contextKey = "user_id"

// OwnerSubject is the JWT subject for the single account this service
// serves. There are no per-user accounts; whoever holds the owner
// password is the owner.
const OwnerSubject = "owner"

const defaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload issued and accepted by this service.
type Claims struct {
	jwt.RegisteredClaims
}

// Config holds token signing and validation settings.
type Config struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
}

// IssueToken signs a new HS256 token for the owner.
func IssueToken(cfg Config) (string, time.Time, error) {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   OwnerSubject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Middleware validates the Bearer token on every request and places the
// subject on the request context. Paths matched by PublicPath bypass
// validation.
func Middleware(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if PublicPath(c.Request().URL.Path) {
				return next(c)
			}

			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := verifyToken(cfg, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := context.WithValue(c.Request().Context(), UserIDKey, claims.Subject)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authorization required")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "expected a bearer token")
	}
	return strings.TrimSpace(token), nil
}

// verifyToken parses and validates a signed token against cfg.
func verifyToken(cfg Config, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// DevMiddleware is a permissive middleware for development that allows
// unauthenticated requests as the owner.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), UserIDKey, OwnerSubject)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// UserIDFromContext returns the authenticated subject, or "" when the
// request was not authenticated.
func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// PublicPath reports whether the given path is accessible without a
// bearer token: health probes and the token endpoint itself.
func PublicPath(path string) bool {
	switch path {
	case "/healthz", "/health/db", "/auth/token":
		return true
	}
	return false
}
