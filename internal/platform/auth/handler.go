package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler serves the token endpoint.
type Handler struct {
	cfg           Config
	ownerPassword string
}

func NewHandler(cfg Config, ownerPassword string) *Handler {
	return &Handler{cfg: cfg, ownerPassword: ownerPassword}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/token", h.Token)
}

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
}

// Token exchanges the owner password for a bearer token.
func (h *Handler) Token(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.ownerPassword == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "password login disabled")
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.ownerPassword)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
	}

	token, expiresAt, err := IssueToken(h.cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}
