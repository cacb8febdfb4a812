package illness

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/recoup/recoup/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/illnesses", h.list)
	api.POST("/illnesses", h.create)
	api.GET("/illnesses/:id", h.get)
	api.PATCH("/illnesses/:id", h.update)
	api.POST("/illnesses/:id/resolve", h.resolve)
	api.POST("/illnesses/:id/reopen", h.reopen)
}

func (h *Handler) list(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	illnesses, err := h.svc.List(c.Request().Context(), activeOnly)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, illnesses)
}

func (h *Handler) create(c echo.Context) error {
	var input CreateIllnessInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ill, err := h.svc.Create(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, ill)
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid illness id")
	}

	ill, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if ill == nil {
		return echo.NewHTTPError(http.StatusNotFound, "illness not found")
	}
	return c.JSON(http.StatusOK, ill)
}

func (h *Handler) update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid illness id")
	}

	var input UpdateIllnessInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ill, err := h.svc.Update(c.Request().Context(), id, input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, ill)
}

func (h *Handler) resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid illness id")
	}

	ill, err := h.svc.Resolve(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, ill)
}

func (h *Handler) reopen(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid illness id")
	}

	ill, err := h.svc.Reopen(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, ill)
}
