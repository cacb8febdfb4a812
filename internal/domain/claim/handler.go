package claim

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/recoup/recoup/internal/platform/apperr"
	"github.com/recoup/recoup/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/scraped-claims", h.listScraped)
	api.GET("/scraped-claims/:id", h.getScraped)
	api.POST("/scraped-claims/sync", h.syncScraped)

	api.GET("/claims", h.list)
	api.POST("/claims", h.create)
	api.GET("/claims/:id", h.get)
	api.PATCH("/claims/:id", h.update)
	api.POST("/claims/:id/status", h.transition)
}

func (h *Handler) listScraped(c echo.Context) error {
	var status *ScrapedClaimStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := ScrapedClaimStatus(raw)
		status = &st
	}

	claims, err := h.svc.ListScraped(c.Request().Context(), status)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}

	pg := pagination.FromContext(c)
	lo, hi := pg.Window(len(claims))
	return c.JSON(http.StatusOK, pagination.NewResponse(claims[lo:hi], len(claims), pg.Limit, pg.Offset))
}

func (h *Handler) getScraped(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid scraped claim id")
	}

	sc, err := h.svc.GetScraped(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if sc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "scraped claim not found")
	}
	return c.JSON(http.StatusOK, sc)
}

type syncScrapedRequest struct {
	Claims []SyncScrapedClaimInput `json:"claims"`
}

func (h *Handler) syncScraped(c echo.Context) error {
	var req syncScrapedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.SyncScraped(c.Request().Context(), req.Claims)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) list(c echo.Context) error {
	var status *ClaimStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := ClaimStatus(raw)
		status = &st
	}

	claims, err := h.svc.List(c.Request().Context(), status)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}

	pg := pagination.FromContext(c)
	lo, hi := pg.Window(len(claims))
	return c.JSON(http.StatusOK, pagination.NewResponse(claims[lo:hi], len(claims), pg.Limit, pg.Offset))
}

func (h *Handler) create(c echo.Context) error {
	var input CreateClaimInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	claim, err := h.svc.Create(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, claim)
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}

	claim, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if claim == nil {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}

	var input UpdateClaimInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	claim, err := h.svc.Update(c.Request().Context(), id, input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, claim)
}

type transitionRequest struct {
	Status ClaimStatus `json:"status"`
}

func (h *Handler) transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	claim, err := h.svc.Transition(c.Request().Context(), id, req.Status)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, claim)
}
