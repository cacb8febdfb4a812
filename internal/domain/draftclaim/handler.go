package draftclaim

import (
	"net/http"
	"time"

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
	api.GET("/draft-claims", h.list)
	api.POST("/draft-claims/generate", h.generate)
	api.POST("/draft-claims/promote", h.promote)
	api.GET("/draft-claims/:id", h.get)
	api.POST("/draft-claims/:id/accept", h.accept)
	api.POST("/draft-claims/:id/reject", h.reject)
	api.POST("/draft-claims/:id/convert", h.convert)
	api.POST("/draft-claims/:id/appointment", h.attachAppointment)
}

func (h *Handler) list(c echo.Context) error {
	var status *DraftStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := DraftStatus(raw)
		status = &st
	}

	drafts, err := h.svc.List(c.Request().Context(), status)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, drafts)
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid draft claim id")
	}

	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if d == nil {
		return echo.NewHTTPError(http.StatusNotFound, "draft claim not found")
	}
	return c.JSON(http.StatusOK, d)
}

type generateRequest struct {
	Window Window     `json:"window"`
	AsOf   *time.Time `json:"as_of,omitempty"`
}

func (h *Handler) generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Window == "" {
		req.Window = WindowForever
	}
	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	res, err := h.svc.Generate(c.Request().Context(), req.Window, asOf)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type promoteRequest struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func (h *Handler) promote(c echo.Context) error {
	var req promoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DocumentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document_id is required")
	}

	res, err := h.svc.Promote(c.Request().Context(), req.DocumentID)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

func (h *Handler) accept(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid draft claim id")
	}

	var input AcceptDraftInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := h.svc.Accept(c.Request().Context(), id, input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid draft claim id")
	}

	d, err := h.svc.Reject(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) convert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid draft claim id")
	}

	var input ConvertDraftInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, err := h.svc.ConvertToClaim(c.Request().Context(), id, input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

type attachAppointmentRequest struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func (h *Handler) attachAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid draft claim id")
	}

	var req attachAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DocumentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document_id is required")
	}

	d, err := h.svc.AttachAppointment(c.Request().Context(), id, req.DocumentID)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
