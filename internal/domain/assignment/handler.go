package assignment

import (
	"net/http"
	"strconv"

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
	api.GET("/assignments", h.list)
	api.POST("/assignments", h.createManual)
	api.GET("/assignments/stats", h.stats)
	api.GET("/assignments/high-confidence", h.highConfidence)
	api.GET("/assignments/:id", h.get)
	api.POST("/assignments/:id/confirm", h.confirm)
	api.POST("/assignments/:id/reject", h.reject)
	api.DELETE("/documents/:id/candidates", h.clearCandidates)
}

func (h *Handler) list(c echo.Context) error {
	var filter ListFilter
	if raw := c.QueryParam("status"); raw != "" {
		st := AssignmentStatus(raw)
		filter.Status = &st
	}
	if raw := c.QueryParam("document_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid document_id")
		}
		filter.DocumentID = &id
	}
	if raw := c.QueryParam("claim_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid claim_id")
		}
		filter.ClaimID = &id
	}

	assignments, err := h.svc.List(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, assignments)
}

func (h *Handler) createManual(c echo.Context) error {
	var input CreateManualAssignmentInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.CreateManual(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid assignment id")
	}

	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if a == nil {
		return echo.NewHTTPError(http.StatusNotFound, "assignment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) confirm(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid assignment id")
	}

	var input ConfirmAssignmentInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Confirm(c.Request().Context(), id, input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid assignment id")
	}

	var input RejectAssignmentInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Reject(c.Request().Context(), id, input)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) highConfidence(c echo.Context) error {
	minScore := h.svc.scorer.Thresholds().MinimumCandidateScore
	if raw := c.QueryParam("min_score"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "min_score must be between 0 and 100")
		}
		minScore = n
	}

	candidates, err := h.svc.HighConfidenceCandidates(c.Request().Context(), minScore)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, candidates)
}

func (h *Handler) stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) clearCandidates(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	cleared, err := h.svc.ClearCandidatesForDocument(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"cleared": cleared})
}
